package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, project_id, user_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.ProjectID, c.UserID, c.Content, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	c := &model.Comment{}
	var userID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, user_id, content, created_at FROM comments WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.ProjectID, &userID, &c.Content, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	c.UserID = userID.String
	return c, nil
}

// ListByProject はプロジェクトのコメントを投稿者情報付きで古い順に返す。
func (r *PostgresCommentRepo) ListByProject(ctx context.Context, projectID string) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.project_id, c.user_id, c.content, c.created_at,
		        u.username, u.email, u.avatar_url
		 FROM comments c
		 LEFT JOIN users u ON u.id = c.user_id
		 WHERE c.project_id = $1
		 ORDER BY c.created_at, c.id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		var userID, username, email, avatar sql.NullString
		if err := rows.Scan(&c.ID, &c.ProjectID, &userID, &c.Content, &c.CreatedAt, &username, &email, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if userID.Valid {
			c.UserID = userID.String
			c.Author = &model.UserSummary{
				ID:        userID.String,
				Username:  username.String,
				Email:     email.String,
				AvatarURL: avatar.String,
			}
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Delete はコメントを削除する。
func (r *PostgresCommentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
