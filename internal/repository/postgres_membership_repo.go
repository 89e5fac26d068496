package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresMembershipRepo はプロジェクトの参加申請とメンバーを扱うリポジトリ。
// 主キー(project_id, user_id)により、同時リクエストでも二重登録されない。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

func (r *PostgresMembershipRepo) exists(ctx context.Context, table, projectID, userID string) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE project_id = $1 AND user_id = $2)`, table),
		projectID, userID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", table, err)
	}
	return found, nil
}

// IsMember はユーザーがプロジェクトのメンバーかを返す。
func (r *PostgresMembershipRepo) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	return r.exists(ctx, "project_members", projectID, userID)
}

// HasApplied はユーザーが参加申請中かを返す。
func (r *PostgresMembershipRepo) HasApplied(ctx context.Context, projectID, userID string) (bool, error) {
	return r.exists(ctx, "project_applications", projectID, userID)
}

// CreateApplication は参加申請を作成する。
// 申請済みの場合は一意制約違反のエラーをそのまま返す。
func (r *PostgresMembershipRepo) CreateApplication(ctx context.Context, projectID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_applications (project_id, user_id, created_at)
		 VALUES ($1, $2, now())`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// ListApplications は申請一覧を申請日時の昇順で返す。
func (r *PostgresMembershipRepo) ListApplications(ctx context.Context, projectID string) ([]model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.project_id, a.user_id, u.username, a.created_at
		 FROM project_applications a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.project_id = $1
		 ORDER BY a.created_at`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := []model.Application{}
	for rows.Next() {
		var a model.Application
		if err := rows.Scan(&a.ProjectID, &a.UserID, &a.Username, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// AcceptApplication はメンバー追加と申請削除を同一トランザクションで行う。
func (r *PostgresMembershipRepo) AcceptApplication(ctx context.Context, projectID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM project_applications WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, joined_at)
		 VALUES ($1, $2, now())`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteApplication は申請を削除する。
func (r *PostgresMembershipRepo) DeleteApplication(ctx context.Context, projectID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM project_applications WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return requireAffected(result)
}

// AddMember はメンバーを追加する。
func (r *PostgresMembershipRepo) AddMember(ctx context.Context, projectID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, joined_at)
		 VALUES ($1, $2, now())`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// ListMembers はメンバー一覧を参加日時の昇順で返す。
func (r *PostgresMembershipRepo) ListMembers(ctx context.Context, projectID string) ([]model.UserSummary, error) {
	members, err := loadLinkedUsers(ctx, r.db, "project_members", "project_id", "joined_at", []string{projectID})
	if err != nil {
		return nil, err
	}
	return nonNilUsers(members[projectID]), nil
}

// RemoveMember はメンバーを削除する。
func (r *PostgresMembershipRepo) RemoveMember(ctx context.Context, projectID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return requireAffected(result)
}

// DeleteStaleApplications は指定日時より古い申請を削除する。
func (r *PostgresMembershipRepo) DeleteStaleApplications(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM project_applications WHERE created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale applications: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
