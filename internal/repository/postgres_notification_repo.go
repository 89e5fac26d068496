package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// Create は通知を作成する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	var projectID any
	if n.ProjectID != "" {
		projectID = n.ProjectID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, read, project_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, projectID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByUser は通知を新しい順に返す。
func (r *PostgresNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, message, read, project_id, created_at, read_at
		 FROM notifications
		 WHERE user_id = $1 AND (NOT $2 OR read = false)
		 ORDER BY created_at DESC
		 LIMIT $3`,
		userID, unreadOnly, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	list := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		var projectID sql.NullString
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &projectID, &n.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ProjectID = projectID.String
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkRead は通知を既読にする。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications
		 SET read = true, read_at = COALESCE(read_at, now())
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return requireAffected(result)
}

// MarkAllRead はユーザーの未読通知をすべて既読にする。
func (r *PostgresNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = true, read_at = now() WHERE user_id = $1 AND read = false`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}

// DeleteReadBefore は指定日時より前に作成された既読通知を削除する。
func (r *PostgresNotificationRepo) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE read = true AND created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
