package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/middleware"
	"github.com/hitoshi/connectin/internal/model"
)

// messageResponse はメッセージのみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, middleware.NewErrorResponseBody(apiErr))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials, model.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeNotProjectOwner, model.ErrCodeNotTeamAdmin, model.ErrCodeNotParticipant:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeProjectNotFound, model.ErrCodeApplicationNotFound,
		model.ErrCodeMemberNotFound, model.ErrCodeTeamNotFound, model.ErrCodePostNotFound,
		model.ErrCodeCommentNotFound, model.ErrCodeTodoNotFound, model.ErrCodeConversationNotFound,
		model.ErrCodeNotificationNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest, model.ErrCodeValidationFailed, model.ErrCodeAlreadyMember,
		model.ErrCodeAlreadyApplied, model.ErrCodeVoteConflict, model.ErrCodeInvalidDecision, model.ErrCodeDuplicateUser,
		model.ErrCodeOAuthEmailMissing, model.ErrCodeInvalidURL, model.ErrCodeSSRFBlocked:
		return http.StatusBadRequest
	case model.ErrCodeDuplicateName:
		return http.StatusConflict
	case model.ErrCodeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case model.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID はコンテキストから認証済みユーザーIDを取り出す。
// 取り出せない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// decodeJSON はリクエストボディをデコードする。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// uuidParam はUUID形式のURLパラメータを取り出す。
// 形式が不正な場合はnotFoundのエラーを書き込みfalseを返す。
func uuidParam(w http.ResponseWriter, r *http.Request, key string, notFound func(id string) *model.APIError) (string, bool) {
	id := chi.URLParam(r, key)
	if _, err := uuid.Parse(id); err != nil {
		apiErr := notFound(id)
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return "", false
	}
	return id, true
}

// userNotFound はuuidParam用にユーザー未検出エラーを返す。
func userNotFound(string) *model.APIError {
	return model.NewUserNotFoundError()
}
