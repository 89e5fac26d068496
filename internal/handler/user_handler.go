package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/connectin/internal/middleware"
	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/user"
)

// multipartOverhead はアップロード上限に加えて許容するマルチパートのヘッダー分のサイズ。
const multipartOverhead = 1 << 20

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
	ReplaceSkills(ctx context.Context, userID string, skillIDs []string) ([]model.Skill, error)
	UploadPhoto(ctx context.Context, userID, kind string, r io.Reader, size int64, contentType string) (*model.User, error)
	ImportPhoto(ctx context.Context, userID, kind, rawURL string) (*model.User, error)
	// Withdraw はアクセストークンを失効させた上でユーザーを削除する。
	// 所有データはCASCADEで削除される。
	Withdraw(ctx context.Context, userID, jti string, expiresAt time.Time) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service   UserServiceInterface
	maxUpload int64
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, maxUpload int64) *UserHandler {
	return &UserHandler{
		service:   service,
		maxUpload: maxUpload,
	}
}

// profileResponse はスキル付きの公開プロフィール。
type profileResponse struct {
	userResponse
	Skills []termResponse `json:"skills"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// 送信されなかった項目は変更しない。
type updateProfileRequest struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	City          *string `json:"city"`
	Position      *string `json:"position"`
	GitHub        *string `json:"github"`
	LinkedIn      *string `json:"linkedin"`
	Telegram      *string `json:"telegram"`
	AvatarURL     *string `json:"avatar_url"`
	CoverPhotoURL *string `json:"cover_photo_url"`
}

type replaceSkillsRequest struct {
	SkillIDs []string `json:"skill_ids"`
}

type importPhotoRequest struct {
	URL string `json:"url"`
}

// Search はユーザー名の前方一致でユーザーを検索する。
// GET /users?q=&limit=
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	users, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserSummaries(users))
}

// GetProfile は公開プロフィールを返す。
// GET /users/{id}
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "id", userNotFound)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		userResponse: toUserResponse(profile.User),
		Skills:       toTermResponses(profile.Skills),
	})
}

// UpdateProfile はプロフィールを部分更新する。
// PUT /users/me
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), userID, model.ProfileUpdate{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		City:          req.City,
		Position:      req.Position,
		GitHub:        req.GitHub,
		LinkedIn:      req.LinkedIn,
		Telegram:      req.Telegram,
		AvatarURL:     req.AvatarURL,
		CoverPhotoURL: req.CoverPhotoURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ReplaceSkills はユーザーのスキルを置き換える。
// PUT /users/me/skills
func (h *UserHandler) ReplaceSkills(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req replaceSkillsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	skills, err := h.service.ReplaceSkills(r.Context(), userID, req.SkillIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTermResponses(skills))
}

// UploadPhoto はマルチパートの file を保存してプロフィール画像を更新する。
// PUT /users/me/photos/{kind}
func (h *UserHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("file を添付してください"))
		return
	}
	defer file.Close()

	// Content-Typeはクライアントの申告ではなく先頭バイトから判定する
	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ファイルを読み込めません"))
		return
	}
	sniff = sniff[:n]
	contentType := http.DetectContentType(sniff)

	u, err := h.service.UploadPhoto(r.Context(), userID, chi.URLParam(r, "kind"),
		io.MultiReader(bytes.NewReader(sniff), file), header.Size, contentType)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ImportPhoto はURLの画像を取り込んでプロフィール画像を更新する。
// POST /users/me/photos/{kind}/import
func (h *UserHandler) ImportPhoto(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req importPhotoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	u, err := h.service.ImportPhoto(r.Context(), userID, chi.URLParam(r, "kind"), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var (
		jti       string
		expiresAt time.Time
	)
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		jti = claims.ID
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}

	if err := h.service.Withdraw(r.Context(), userID, jti, expiresAt); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
