package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/project"
)

// 参加申請まわりのレスポンスメッセージ
const (
	msgApplicationSubmitted = "Application submitted"
	msgApplicationAccepted  = "Application accepted"
	msgApplicationRejected  = "Application rejected"
)

// ProjectServiceInterface はプロジェクトハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	Create(ctx context.Context, ownerID string, in project.CreateInput) (*model.ProjectDetail, error)
	List(ctx context.Context, filter model.ProjectFilter) ([]model.ProjectDetail, error)
	ListMine(ctx context.Context, userID string) ([]model.ProjectDetail, error)
	Get(ctx context.Context, projectID string) (*model.ProjectDetail, error)
	Update(ctx context.Context, userID, projectID string, update model.ProjectUpdate) (*model.ProjectDetail, error)
	Delete(ctx context.Context, userID, projectID string) error

	Apply(ctx context.Context, userID, projectID string) error
	ListMembers(ctx context.Context, projectID string) ([]model.UserSummary, error)
	ListApplications(ctx context.Context, userID, projectID string) ([]model.Application, error)
	Decide(ctx context.Context, ownerID, projectID, applicantID string, decision model.Decision) error
	RemoveMember(ctx context.Context, ownerID, projectID, memberID string) error
	Leave(ctx context.Context, userID, projectID string) error

	Vote(ctx context.Context, userID, projectID string, isUpvote bool) (*project.VoteResult, error)
	VoteStatus(ctx context.Context, userID, projectID string) (*project.VoteStatus, error)
	AddComment(ctx context.Context, userID, projectID, content string) (*model.Comment, error)
	ListComments(ctx context.Context, projectID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, userID, projectID, commentID string) error
}

// ProjectHandler はプロジェクトとその参加ワークフローのHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// createProjectRequest はプロジェクト作成リクエストのボディ。
type createProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	TagIDs      []string `json:"tag_ids"`
	SkillIDs    []string `json:"skill_ids"`
}

// updateProjectRequest はプロジェクト更新リクエストのボディ。
type updateProjectRequest struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Status      *string   `json:"status"`
	TagIDs      *[]string `json:"tag_ids"`
	SkillIDs    *[]string `json:"skill_ids"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

type voteRequest struct {
	IsUpvote *bool `json:"is_upvote"`
}

type voteResponse struct {
	Message   string `json:"message"`
	VoteCount int    `json:"vote_count"`
}

type voteStatusResponse struct {
	HasVoted bool  `json:"has_voted"`
	IsUpvote *bool `json:"is_upvote"`
}

type commentRequest struct {
	Content string `json:"content"`
}

// Create はプロジェクトを作成する。
// POST /projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), userID, project.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      model.ProjectStatus(req.Status),
		TagIDs:      req.TagIDs,
		SkillIDs:    req.SkillIDs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// List はプロジェクト一覧を返す。
// GET /projects?limit&offset&tag_id&skill_id&q
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	projects, err := h.service.List(r.Context(), model.ProjectFilter{
		TagID:   q.Get("tag_id"),
		SkillID: q.Get("skill_id"),
		Query:   q.Get("q"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponses(projects))
}

// ListMine は呼び出し元が所有または参加しているプロジェクトを返す。
// GET /projects/my
func (h *ProjectHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	projects, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponses(projects))
}

// Get はプロジェクト詳細を返す。
// GET /projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// Update はプロジェクトを部分更新する。
// PUT /projects/{id}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	var req updateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	update := model.ProjectUpdate{
		Name:        req.Name,
		Description: req.Description,
		TagIDs:      req.TagIDs,
		SkillIDs:    req.SkillIDs,
	}
	if req.Status != nil {
		status := model.ProjectStatus(*req.Status)
		update.Status = &status
	}

	p, err := h.service.Update(r.Context(), userID, projectID, update)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// Delete はプロジェクトを削除する。
// DELETE /projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, projectID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- 参加ワークフロー ---

// Apply はプロジェクトへ参加申請する。
// POST /projects/{id}/apply
func (h *ProjectHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Apply(r.Context(), userID, projectID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: msgApplicationSubmitted})
}

// ListMembers はプロジェクトメンバーを返す。
// GET /projects/{id}/members
func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserSummaries(members))
}

// ListApplications は未処理の参加申請を返す。オーナーのみ。
// GET /projects/{id}/applications
func (h *ProjectHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	apps, err := h.service.ListApplications(r.Context(), userID, projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		resp = append(resp, applicationResponse{
			UserID:    a.UserID,
			Username:  a.Username,
			CreatedAt: a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Decide は参加申請を承認または却下する。
// POST /projects/{id}/applications/{userID}/decision
func (h *ProjectHandler) Decide(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}
	applicantID, ok := uuidParam(w, r, "userID", func(string) *model.APIError {
		return model.NewApplicationNotFoundError()
	})
	if !ok {
		return
	}

	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	decision := model.Decision(req.Decision)
	if err := h.service.Decide(r.Context(), ownerID, projectID, applicantID, decision); err != nil {
		handleServiceError(w, err)
		return
	}

	msg := msgApplicationAccepted
	if decision == model.DecisionRejected {
		msg = msgApplicationRejected
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// RemoveMember はメンバーをプロジェクトから外す。オーナーのみ。
// DELETE /projects/{id}/members/{userID}
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}
	memberID, ok := uuidParam(w, r, "userID", func(string) *model.APIError {
		return model.NewMemberNotFoundError()
	})
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), ownerID, projectID, memberID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Leave は呼び出し元がプロジェクトから抜ける。
// POST /projects/{id}/leave
func (h *ProjectHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Leave(r.Context(), userID, projectID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- 投票・コメント ---

// Vote は投票をトグルする。
// POST /projects/{id}/vote
func (h *ProjectHandler) Vote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsUpvote == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("is_upvote を指定してください"))
		return
	}

	result, err := h.service.Vote(r.Context(), userID, projectID, *req.IsUpvote)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{Message: result.Message, VoteCount: result.VoteCount})
}

// VoteStatus は呼び出し元の投票状態を返す。
// GET /projects/{id}/vote_status
func (h *ProjectHandler) VoteStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	status, err := h.service.VoteStatus(r.Context(), userID, projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voteStatusResponse{HasVoted: status.HasVoted, IsUpvote: status.IsUpvote})
}

// AddComment はコメントを投稿する。
// POST /projects/{id}/comments
func (h *ProjectHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.AddComment(r.Context(), userID, projectID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

// ListComments はコメントを古い順に返す。
// GET /projects/{id}/comments
func (h *ProjectHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}

	comments, err := h.service.ListComments(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for i := range comments {
		resp = append(resp, toCommentResponse(&comments[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteComment はコメントを削除する。投稿者またはプロジェクトオーナーのみ。
// DELETE /projects/{id}/comments/{commentID}
func (h *ProjectHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	projectID, ok := uuidParam(w, r, "id", model.NewProjectNotFoundError)
	if !ok {
		return
	}
	commentID, ok := uuidParam(w, r, "commentID", func(string) *model.APIError {
		return model.NewCommentNotFoundError()
	})
	if !ok {
		return
	}

	if err := h.service.DeleteComment(r.Context(), userID, projectID, commentID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
