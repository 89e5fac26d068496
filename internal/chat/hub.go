package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/connectin/internal/metrics"
	"github.com/hitoshi/connectin/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// MessageHandler はクライアントから受信したメッセージ本文を処理する。
// 返したエラーはクライアントへエラーフレームとして通知される。
type MessageHandler func(content string) error

// client はWebSocket接続1本を表す。
type client struct {
	conn           *websocket.Conn
	conversationID string
	userID         string
	send           chan []byte
}

// Hub は会話ごとのWebSocket接続を管理し、メッセージを配信する。
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	recorder metrics.Recorder
}

// NewHub は新しいHubを生成する。
func NewHub(rec metrics.Recorder) *Hub {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Hub{
		rooms:    make(map[string]map[*client]struct{}),
		recorder: rec,
	}
}

// NewUpgrader はOriginが許可オリジンと一致する場合のみ接続を受け付けるUpgraderを生成する。
func NewUpgrader(allowedOrigin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
}

// inboundFrame はクライアントから受信するフレーム。
type inboundFrame struct {
	Content string `json:"content"`
}

// messagePayload は配信するメッセージのJSON表現。
type messagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type messageFrame struct {
	Type    string         `json:"type"`
	Message messagePayload `json:"message"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Broadcast はメッセージを会話の全接続へ配信する。
// 送信バッファが詰まっている接続は切断する。
func (h *Hub) Broadcast(msg model.Message) {
	data, err := json.Marshal(messageFrame{
		Type: "message",
		Message: messagePayload{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
		},
	})
	if err != nil {
		slog.Error("failed to encode chat message", slog.String("error", err.Error()))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[msg.ConversationID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("dropping slow websocket client",
			slog.String("conversation_id", c.conversationID),
			slog.String("user_id", c.userID),
		)
		h.unregister(c)
	}
}

// Serve は接続を会話に登録し、切断されるまで受信ループを実行する。
func (h *Hub) Serve(conn *websocket.Conn, conversationID, userID string, onMessage MessageHandler) {
	c := &client{
		conn:           conn,
		conversationID: conversationID,
		userID:         userID,
		send:           make(chan []byte, sendBufferSize),
	}
	h.register(c)

	go h.writePump(c)
	h.readPump(c, onMessage)
}

// connections は会話の接続数を返す。
func (h *Hub) connections(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.conversationID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.conversationID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	h.recorder.ChatConnectionOpened()
	slog.Info("websocket connected",
		slog.String("conversation_id", c.conversationID),
		slog.String("user_id", c.userID),
	)
}

// unregister は接続を登録解除し送信チャネルを閉じる。複数回呼ばれても安全。
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.conversationID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.conversationID)
	}
	close(c.send)
	h.mu.Unlock()

	h.recorder.ChatConnectionClosed()
	slog.Info("websocket disconnected",
		slog.String("conversation_id", c.conversationID),
		slog.String("user_id", c.userID),
	)
}

func (h *Hub) readPump(c *client, onMessage MessageHandler) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error",
					slog.String("conversation_id", c.conversationID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(c, model.NewInvalidRequestError())
			continue
		}
		if err := onMessage(frame.Content); err != nil {
			var apiErr *model.APIError
			if errors.As(err, &apiErr) {
				h.sendError(c, apiErr)
				continue
			}
			slog.Error("failed to handle websocket message",
				slog.String("conversation_id", c.conversationID),
				slog.String("user_id", c.userID),
				slog.String("error", err.Error()),
			)
			h.sendError(c, model.NewInternalError())
		}
	}
}

// sendError はエラーフレームを送信キューに積む。キューが詰まっている場合は破棄する。
func (h *Hub) sendError(c *client, apiErr *model.APIError) {
	data, err := json.Marshal(errorFrame{Type: "error", Code: apiErr.Code, Message: apiErr.Message})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.conversationID][c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// compile-time interface check
var _ Broadcaster = (*Hub)(nil)
