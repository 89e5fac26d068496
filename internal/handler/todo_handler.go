package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/todo"
)

// TodoServiceInterface はTODOハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	Create(ctx context.Context, userID string, in todo.CreateInput) (*model.TodoDetail, error)
	List(ctx context.Context, userID string, completed *bool) ([]model.TodoDetail, error)
	Get(ctx context.Context, userID, todoID string) (*model.TodoDetail, error)
	Update(ctx context.Context, userID, todoID string, upd model.TodoUpdate) (*model.TodoDetail, error)
	Delete(ctx context.Context, userID, todoID string) error
	AddWatcher(ctx context.Context, userID, todoID, watcherID string) (*model.TodoDetail, error)
	RemoveWatcher(ctx context.Context, userID, todoID, watcherID string) error
}

// TodoHandler はTODOのHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{service: service}
}

type createTodoRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DueDate     string   `json:"due_date"`
	TagIDs      []string `json:"tag_ids"`
}

// updateTodoRequest はTODO更新リクエストのボディ。
// due_dateは未指定なら変更なし、nullなら期限の削除。
type updateTodoRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	IsCompleted *bool           `json:"is_completed"`
	DueDate     json.RawMessage `json:"due_date"`
	TagIDs      *[]string       `json:"tag_ids"`
}

type addWatcherRequest struct {
	UserID string `json:"user_id"`
}

// Create はTODOを作成する。
// POST /todos
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := todo.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		TagIDs:      req.TagIDs,
	}
	if req.DueDate != "" {
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("due_date の形式が正しくありません"))
			return
		}
		in.DueDate = &due
	}

	t, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTodoResponse(t))
}

// List は自分のTODOとウォッチ中のTODOを返す。
// GET /todos?completed=
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var completed *bool
	if raw := r.URL.Query().Get("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("completed には true または false を指定してください"))
			return
		}
		completed = &v
	}

	todos, err := h.service.List(r.Context(), userID, completed)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]todoResponse, 0, len(todos))
	for i := range todos {
		resp = append(resp, toTodoResponse(&todos[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はTODOを返す。オーナーまたはウォッチャーのみ。
// GET /todos/{id}
func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	todoID, ok := uuidParam(w, r, "id", model.NewTodoNotFoundError)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), userID, todoID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(t))
}

// Update はTODOを部分更新する。オーナーのみ。
// PUT /todos/{id}
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	todoID, ok := uuidParam(w, r, "id", model.NewTodoNotFoundError)
	if !ok {
		return
	}

	var req updateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	upd := model.TodoUpdate{
		Title:       req.Title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		TagIDs:      req.TagIDs,
	}
	switch {
	case len(req.DueDate) == 0:
	case bytes.Equal(req.DueDate, []byte("null")):
		upd.ClearDue = true
	default:
		var raw string
		if err := json.Unmarshal(req.DueDate, &raw); err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("due_date の形式が正しくありません"))
			return
		}
		due, err := parseDueDate(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("due_date の形式が正しくありません"))
			return
		}
		upd.DueDate = &due
	}

	t, err := h.service.Update(r.Context(), userID, todoID, upd)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(t))
}

// Delete はTODOを削除する。オーナーのみ。
// DELETE /todos/{id}
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	todoID, ok := uuidParam(w, r, "id", model.NewTodoNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, todoID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddWatcher はウォッチャーを追加する。オーナーのみ。
// POST /todos/{id}/watchers
func (h *TodoHandler) AddWatcher(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	todoID, ok := uuidParam(w, r, "id", model.NewTodoNotFoundError)
	if !ok {
		return
	}

	var req addWatcherRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.AddWatcher(r.Context(), userID, todoID, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTodoResponse(t))
}

// RemoveWatcher はウォッチャーを外す。オーナーまたはウォッチャー本人のみ。
// DELETE /todos/{id}/watchers/{userID}
func (h *TodoHandler) RemoveWatcher(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	todoID, ok := uuidParam(w, r, "id", model.NewTodoNotFoundError)
	if !ok {
		return
	}
	watcherID, ok := uuidParam(w, r, "userID", userNotFound)
	if !ok {
		return
	}

	if err := h.service.RemoveWatcher(r.Context(), userID, todoID, watcherID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseDueDate はRFC3339または日付のみ（YYYY-MM-DD）の期限を解析する。
func parseDueDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
