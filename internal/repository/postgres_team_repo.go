package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresTeamRepo はPostgreSQLを使用したチームリポジトリ。
type PostgresTeamRepo struct {
	db *sql.DB
}

// NewPostgresTeamRepo はPostgresTeamRepoを生成する。
func NewPostgresTeamRepo(db *sql.DB) *PostgresTeamRepo {
	return &PostgresTeamRepo{db: db}
}

func scanTeam(row rowScanner) (*model.Team, error) {
	t := &model.Team{}
	var createdBy sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &createdBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.CreatedBy = createdBy.String
	return t, nil
}

// Create はチームを作成し、作成者を管理者として登録する。
func (r *PostgresTeamRepo) Create(ctx context.Context, team *model.Team) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO teams (id, name, description, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		team.ID, team.Name, team.Description, team.CreatedBy, team.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_teams (user_id, team_id, is_admin) VALUES ($1, $2, true)`,
		team.CreatedBy, team.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert team admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
func (r *PostgresTeamRepo) FindByID(ctx context.Context, id string) (*model.Team, error) {
	t, err := scanTeam(r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_by, created_at FROM teams WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	return t, nil
}

// ListByUser はユーザーが所属するチームを返す。
func (r *PostgresTeamRepo) ListByUser(ctx context.Context, userID string) ([]model.Team, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.description, t.created_by, t.created_at
		 FROM teams t
		 JOIN user_teams ut ON ut.team_id = t.id
		 WHERE ut.user_id = $1
		 ORDER BY t.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := []model.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

// Update はチーム名と説明を更新する。
func (r *PostgresTeamRepo) Update(ctx context.Context, team *model.Team) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE teams SET name = $2, description = $3 WHERE id = $1`,
		team.ID, team.Name, team.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	return requireAffected(result)
}

// Delete はチームを削除する。
func (r *PostgresTeamRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	return requireAffected(result)
}

// FindMember はチームメンバーを取得する。所属していない場合はnilを返す。
func (r *PostgresTeamRepo) FindMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error) {
	m := &model.TeamMember{}
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, ut.is_admin
		 FROM user_teams ut
		 JOIN users u ON u.id = ut.user_id
		 WHERE ut.team_id = $1 AND ut.user_id = $2`,
		teamID, userID,
	).Scan(&m.UserID, &m.Username, &m.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team member: %w", err)
	}
	return m, nil
}

// ListMembers はメンバー一覧を管理者、ユーザー名の順で返す。
func (r *PostgresTeamRepo) ListMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.username, ut.is_admin
		 FROM user_teams ut
		 JOIN users u ON u.id = ut.user_id
		 WHERE ut.team_id = $1
		 ORDER BY ut.is_admin DESC, u.username`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	members := []model.TeamMember{}
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.IsAdmin); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddMember はメンバーを追加する。
func (r *PostgresTeamRepo) AddMember(ctx context.Context, teamID, userID string, isAdmin bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_teams (user_id, team_id, is_admin) VALUES ($1, $2, $3)`,
		userID, teamID, isAdmin,
	)
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

// RemoveMember はメンバーを削除する。
func (r *PostgresTeamRepo) RemoveMember(ctx context.Context, teamID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_teams WHERE team_id = $1 AND user_id = $2`,
		teamID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ TeamRepository = (*PostgresTeamRepo)(nil)
