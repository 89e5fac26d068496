// Package notification はユーザー通知の作成と既読管理を提供する。
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Notifier は他のドメインから通知を発行するためのインターフェース。
// 発行の失敗は呼び出し元の処理を失敗させない。
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Service は通知のサービス層。
type Service struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.NotificationRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Notify は通知を作成する。失敗はログに記録するだけで呼び出し元には返さない。
func (s *Service) Notify(ctx context.Context, n model.Notification) {
	n.ID = uuid.New().String()
	n.Read = false
	n.CreatedAt = s.now()
	if err := s.repo.Create(ctx, &n); err != nil {
		slog.Error("failed to create notification",
			slog.String("user_id", n.UserID),
			slog.String("type", n.Type),
			slog.String("error", err.Error()),
		)
	}
}

// List はユーザーの通知を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	items, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗しました: %w", err)
	}
	return items, nil
}

// MarkRead は通知を既読にする。他のユーザーの通知は存在しないものとして扱う。
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	err := s.repo.MarkRead(ctx, notificationID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewNotificationNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("通知の更新に失敗しました: %w", err)
	}
	return nil
}

// MarkAllRead は未読の通知をすべて既読にし、更新件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("通知の更新に失敗しました: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ Notifier = (*Service)(nil)
