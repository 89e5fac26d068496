package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/connectin/internal/model"
)

// TermServiceInterface はタグ・スキルハンドラーが必要とするサービスインターフェース。
type TermServiceInterface interface {
	List(ctx context.Context, prefix string) ([]model.Term, error)
	Create(ctx context.Context, name string) (*model.Term, error)
}

// TermHandler はタグまたはスキルのHTTPハンドラー。
// 同じ実装を /tags と /skills で使い分ける。
type TermHandler struct {
	service TermServiceInterface
}

// NewTermHandler はTermHandlerを生成する。
func NewTermHandler(service TermServiceInterface) *TermHandler {
	return &TermHandler{service: service}
}

type createTermRequest struct {
	Name string `json:"name"`
}

// List は名前順に一覧を返す。qで前方一致の絞り込みができる。
// GET /tags, GET /skills
func (h *TermHandler) List(w http.ResponseWriter, r *http.Request) {
	terms, err := h.service.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTermResponses(terms))
}

// Create は項目を作成する。
// POST /tags, POST /skills
func (h *TermHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTermRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	term, err := h.service.Create(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, termResponse{ID: term.ID, Name: term.Name})
}
