// Package chat は会話・メッセージのドメインロジックとWebSocket配信を提供する。
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/metrics"
	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
	"github.com/hitoshi/connectin/internal/security"
)

const (
	maxContentLength = 4000
	maxNameLength    = 100
	defaultLimit     = 50
	maxLimit         = 200
)

// メッセージの送信経路（メトリクスのラベル）
const (
	ChannelREST      = "rest"
	ChannelWebSocket = "websocket"
)

// Broadcaster は保存済みメッセージを会話の接続中クライアントへ配信する。
type Broadcaster interface {
	Broadcast(msg model.Message)
}

// Service はチャットのサービス層。
type Service struct {
	repo        repository.ChatRepository
	users       repository.UserRepository
	sanitizer   security.ContentSanitizer
	broadcaster Broadcaster
	recorder    metrics.Recorder
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// broadcasterがnilの場合はWebSocket配信を行わない。
func NewService(repo repository.ChatRepository, users repository.UserRepository, sanitizer security.ContentSanitizer, broadcaster Broadcaster, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		repo:        repo,
		users:       users,
		sanitizer:   sanitizer,
		broadcaster: broadcaster,
		recorder:    rec,
		now:         time.Now,
	}
}

// StartConversation は会話を開始する。呼び出し元は常に参加者に含まれる。
// 相手が1人で名前の指定がない場合は既存の1対1の会話を返し、createdはfalseになる。
func (s *Service) StartConversation(ctx context.Context, userID string, participantIDs []string, name string) (conv *model.ConversationDetail, created bool, err error) {
	others := make([]string, 0, len(participantIDs))
	seen := map[string]bool{userID: true}
	for _, id := range participantIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		others = append(others, id)
	}
	if len(others) == 0 {
		return nil, false, model.NewValidationError("参加者を1人以上指定してください")
	}
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, false, model.NewValidationError(fmt.Sprintf("会話名は%d文字以内で入力してください", maxNameLength))
	}

	for _, id := range others {
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if u == nil {
			return nil, false, model.NewUserNotFoundError()
		}
	}

	if len(others) == 1 && name == "" {
		existing, err := s.repo.FindDirectConversation(ctx, userID, others[0])
		if err != nil {
			return nil, false, fmt.Errorf("会話の検索に失敗しました: %w", err)
		}
		if existing != nil {
			d, err := s.detail(ctx, userID, existing)
			return d, false, err
		}
	}

	c := &model.Conversation{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   len(others) > 1,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateConversation(ctx, c, append([]string{userID}, others...)); err != nil {
		return nil, false, fmt.Errorf("会話の作成に失敗しました: %w", err)
	}
	d, err := s.detail(ctx, userID, c)
	return d, true, err
}

// ListConversations はユーザーの会話を最終更新の新しい順に返す。
func (s *Service) ListConversations(ctx context.Context, userID string) ([]model.ConversationDetail, error) {
	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗しました: %w", err)
	}
	return convs, nil
}

// ListMessages はbeforeより前のメッセージを新しい順に返す。
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string, before time.Time, limit int) ([]model.Message, error) {
	if err := s.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	return msgs, nil
}

// SendMessage はメッセージを保存し、接続中のクライアントへ配信する。
func (s *Service) SendMessage(ctx context.Context, userID, conversationID, content, channel string) (*model.Message, error) {
	if err := s.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.NewValidationError("メッセージは必須です")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, model.NewValidationError(fmt.Sprintf("メッセージは%d文字以内で入力してください", maxContentLength))
	}
	content = s.sanitizer.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, model.NewValidationError("メッセージに有効なテキストが含まれていません")
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	s.recorder.RecordChatMessage(channel)
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(*msg)
	}
	return msg, nil
}

// Authorize は会話が存在し、ユーザーが参加者であることを確認する。
func (s *Service) Authorize(ctx context.Context, userID, conversationID string) error {
	c, err := s.repo.FindConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("会話の取得に失敗しました: %w", err)
	}
	if c == nil {
		return model.NewConversationNotFoundError(conversationID)
	}
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("参加者の確認に失敗しました: %w", err)
	}
	if !ok {
		return model.NewNotParticipantError()
	}
	return nil
}

// detail は参加者と最新メッセージ付きの会話を返す。
func (s *Service) detail(ctx context.Context, userID string, c *model.Conversation) (*model.ConversationDetail, error) {
	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}
	for i := range convs {
		if convs[i].ID == c.ID {
			return &convs[i], nil
		}
	}
	return &model.ConversationDetail{Conversation: *c, Participants: []model.UserSummary{}}, nil
}
