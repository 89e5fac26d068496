package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresVoteRepo はPostgreSQLを使用した投票リポジトリ。
type PostgresVoteRepo struct {
	db *sql.DB
}

// NewPostgresVoteRepo はPostgresVoteRepoを生成する。
func NewPostgresVoteRepo(db *sql.DB) *PostgresVoteRepo {
	return &PostgresVoteRepo{db: db}
}

// Find はユーザーの投票を取得する。未投票の場合はnilを返す。
func (r *PostgresVoteRepo) Find(ctx context.Context, projectID, userID string) (*model.Vote, error) {
	v := &model.Vote{}
	err := r.db.QueryRowContext(ctx,
		`SELECT project_id, user_id, is_upvote, created_at
		 FROM votes
		 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	).Scan(&v.ProjectID, &v.UserID, &v.IsUpvote, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vote: %w", err)
	}
	return v, nil
}

// Create は投票を作成する。
func (r *PostgresVoteRepo) Create(ctx context.Context, vote *model.Vote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO votes (project_id, user_id, is_upvote, created_at)
		 VALUES ($1, $2, $3, $4)`,
		vote.ProjectID, vote.UserID, vote.IsUpvote, vote.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create vote: %w", err)
	}
	return nil
}

// UpdateDirection は投票の賛否を変更する。
func (r *PostgresVoteRepo) UpdateDirection(ctx context.Context, projectID, userID string, isUpvote bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE votes SET is_upvote = $3 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID, isUpvote,
	)
	if err != nil {
		return fmt.Errorf("failed to update vote: %w", err)
	}
	return requireAffected(result)
}

// Delete は投票を取り消す。
func (r *PostgresVoteRepo) Delete(ctx context.Context, projectID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM votes WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return requireAffected(result)
}

// Sum は賛成を+1、反対を-1とした合計を返す。
func (r *PostgresVoteRepo) Sum(ctx context.Context, projectID string) (int, error) {
	var sum int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN is_upvote THEN 1 ELSE -1 END), 0)
		 FROM votes
		 WHERE project_id = $1`,
		projectID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum votes: %w", err)
	}
	return sum, nil
}

// compile-time interface check
var _ VoteRepository = (*PostgresVoteRepo)(nil)
