package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, userID, content string, tagIDs []string) (*model.PostDetail, error)
	List(ctx context.Context, viewerID string, filter model.PostFilter) ([]model.PostDetail, error)
	Get(ctx context.Context, viewerID, postID string) (*model.PostDetail, error)
	Delete(ctx context.Context, userID, postID string) error
	ToggleLike(ctx context.Context, userID, postID string) (*post.LikeResult, error)
}

// PostHandler は投稿のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

type createPostRequest struct {
	Content string   `json:"content"`
	TagIDs  []string `json:"tag_ids"`
}

type likeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// Create は投稿を作成する。
// POST /posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createPostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), userID, req.Content, req.TagIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(p))
}

// List は投稿を新しい順に返す。
// GET /posts?limit&offset&tag_id&author_id
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	posts, err := h.service.List(r.Context(), userID, model.PostFilter{
		TagID:    q.Get("tag_id"),
		AuthorID: q.Get("author_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]postResponse, 0, len(posts))
	for i := range posts {
		resp = append(resp, toPostResponse(&posts[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は投稿を返す。
// GET /posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	postID, ok := uuidParam(w, r, "id", model.NewPostNotFoundError)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), userID, postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// Delete は投稿を削除する。投稿者のみ。
// DELETE /posts/{id}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	postID, ok := uuidParam(w, r, "id", model.NewPostNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, postID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleLike はいいねをトグルする。
// POST /posts/{id}/like
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	postID, ok := uuidParam(w, r, "id", model.NewPostNotFoundError)
	if !ok {
		return
	}

	result, err := h.service.ToggleLike(r.Context(), userID, postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, likeResponse{Liked: result.Liked, LikesCount: result.LikesCount})
}
