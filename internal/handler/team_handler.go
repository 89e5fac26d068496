package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/connectin/internal/model"
)

// TeamServiceInterface はチームハンドラーが必要とするサービスインターフェース。
type TeamServiceInterface interface {
	Create(ctx context.Context, userID, name, description string) (*model.TeamDetail, error)
	List(ctx context.Context, userID string) ([]model.Team, error)
	Get(ctx context.Context, teamID string) (*model.TeamDetail, error)
	Update(ctx context.Context, userID, teamID string, name, description *string) (*model.TeamDetail, error)
	Delete(ctx context.Context, userID, teamID string) error
	AddMember(ctx context.Context, userID, teamID, memberID string, isAdmin bool) (*model.TeamDetail, error)
	RemoveMember(ctx context.Context, userID, teamID, memberID string) error
}

// TeamHandler はチーム管理のHTTPハンドラー。
type TeamHandler struct {
	service TeamServiceInterface
}

// NewTeamHandler はTeamHandlerを生成する。
func NewTeamHandler(service TeamServiceInterface) *TeamHandler {
	return &TeamHandler{service: service}
}

type createTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateTeamRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type addTeamMemberRequest struct {
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// Create はチームを作成する。作成者は管理者メンバーになる。
// POST /teams
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	team, err := h.service.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTeamDetailResponse(team))
}

// List は呼び出し元が所属するチームを返す。
// GET /teams
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	teams, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]teamResponse, 0, len(teams))
	for _, t := range teams {
		resp = append(resp, toTeamResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はメンバー付きのチームを返す。
// GET /teams/{id}
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "id", model.NewTeamNotFoundError)
	if !ok {
		return
	}

	team, err := h.service.Get(r.Context(), teamID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTeamDetailResponse(team))
}

// Update はチームを部分更新する。管理者のみ。
// PUT /teams/{id}
func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	teamID, ok := uuidParam(w, r, "id", model.NewTeamNotFoundError)
	if !ok {
		return
	}

	var req updateTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	team, err := h.service.Update(r.Context(), userID, teamID, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTeamDetailResponse(team))
}

// Delete はチームを削除する。管理者のみ。
// DELETE /teams/{id}
func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	teamID, ok := uuidParam(w, r, "id", model.NewTeamNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, teamID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddMember はメンバーを追加する。管理者のみ。
// POST /teams/{id}/members
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	teamID, ok := uuidParam(w, r, "id", model.NewTeamNotFoundError)
	if !ok {
		return
	}

	var req addTeamMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	team, err := h.service.AddMember(r.Context(), userID, teamID, req.UserID, req.IsAdmin)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTeamDetailResponse(team))
}

// RemoveMember はメンバーを外す。管理者または本人のみ。
// DELETE /teams/{id}/members/{userID}
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	teamID, ok := uuidParam(w, r, "id", model.NewTeamNotFoundError)
	if !ok {
		return
	}
	memberID, ok := uuidParam(w, r, "userID", func(string) *model.APIError {
		return model.NewMemberNotFoundError()
	})
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), userID, teamID, memberID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
