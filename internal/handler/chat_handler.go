package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/connectin/internal/chat"
	"github.com/hitoshi/connectin/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	StartConversation(ctx context.Context, userID string, participantIDs []string, name string) (*model.ConversationDetail, bool, error)
	ListConversations(ctx context.Context, userID string) ([]model.ConversationDetail, error)
	ListMessages(ctx context.Context, userID, conversationID string, before time.Time, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, userID, conversationID, content, channel string) (*model.Message, error)
	Authorize(ctx context.Context, userID, conversationID string) error
}

// ChatHub はWebSocket接続を会話ごとに管理する。
type ChatHub interface {
	Serve(conn *websocket.Conn, conversationID, userID string, onMessage chat.MessageHandler)
}

// ChatHandler はチャットのRESTとWebSocketのハンドラー。
type ChatHandler struct {
	service  ChatServiceInterface
	hub      ChatHub
	upgrader *websocket.Upgrader
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface, hub ChatHub, upgrader *websocket.Upgrader) *ChatHandler {
	return &ChatHandler{
		service:  service,
		hub:      hub,
		upgrader: upgrader,
	}
}

type startConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	Name           string   `json:"name"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// StartConversation は会話を開始する。既存の1対1の会話があれば200で返す。
// POST /chats
func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req startConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, created, err := h.service.StartConversation(r.Context(), userID, req.ParticipantIDs, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toConversationResponse(conv))
}

// ListConversations は会話一覧を返す。
// GET /chats
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	convs, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]conversationResponse, 0, len(convs))
	for i := range convs {
		resp = append(resp, toConversationResponse(&convs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMessages はメッセージを新しい順に返す。
// GET /chats/{id}/messages?before&limit
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(w, r, "id", model.NewConversationNotFoundError)
	if !ok {
		return
	}

	q := r.URL.Query()
	var before time.Time
	if raw := q.Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("before はRFC3339形式で指定してください"))
			return
		}
		before = t
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	msgs, err := h.service.ListMessages(r.Context(), userID, conversationID, before, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]chatMessageResponse, 0, len(msgs))
	for i := range msgs {
		resp = append(resp, toChatMessageResponse(&msgs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendMessage はメッセージを送信する。
// POST /chats/{id}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(w, r, "id", model.NewConversationNotFoundError)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.SendMessage(r.Context(), userID, conversationID, req.Content, chat.ChannelREST)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toChatMessageResponse(msg))
}

// WebSocket は参加者であることを確認してからWebSocketにアップグレードする。
// GET /chats/ws/{id}?token=
func (h *ChatHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	conversationID, ok := uuidParam(w, r, "id", model.NewConversationNotFoundError)
	if !ok {
		return
	}

	if err := h.service.Authorize(r.Context(), userID, conversationID); err != nil {
		handleServiceError(w, err)
		return
	}

	// Upgradeは失敗時に自身でエラーレスポンスを書き込む
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return
	}

	// Serveは切断までブロックする
	h.hub.Serve(conn, conversationID, userID, func(content string) error {
		_, err := h.service.SendMessage(r.Context(), userID, conversationID, content, chat.ChannelWebSocket)
		return err
	})
}
