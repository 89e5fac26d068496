package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, username, email, hashed_password, first_name, last_name, city, position,
	github, linkedin, telegram, avatar_url, cover_photo_url, last_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var hashed sql.NullString
	var lastActive sql.NullTime
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &hashed,
		&user.FirstName, &user.LastName, &user.City, &user.Position,
		&user.GitHub, &user.LinkedIn, &user.Telegram,
		&user.AvatarURL, &user.CoverPhotoURL, &lastActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = hashed.String
	if lastActive.Valid {
		t := lastActive.Time
		user.LastActive = &t
	}
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, `id = $1`, id)
}

// FindByUsername はユーザー名でユーザーを取得する。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, `lower(username) = lower($1)`, username)
}

// FindByEmail はメールアドレスでユーザーを取得する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `lower(email) = lower($1)`, email)
}

// ExistsByUsername はユーザー名が使用済みかを返す。
func (r *PostgresUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(username) = lower($1))`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUser(ctx context.Context, ex execer, user *model.User) error {
	var hashed any
	if user.HashedPassword != "" {
		hashed = user.HashedPassword
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO users (id, username, email, hashed_password, first_name, last_name,
		   github, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.Username, user.Email, hashed, user.FirstName, user.LastName,
		user.GitHub, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	return insertUser(ctx, r.db, user)
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// profileColumns はProfileUpdateのフィールドとカラム名の対応を返す。
func profileColumns(u model.ProfileUpdate) ([]string, []any) {
	var cols []string
	var vals []any
	add := func(col string, v *string) {
		if v != nil {
			cols = append(cols, col)
			vals = append(vals, *v)
		}
	}
	add("first_name", u.FirstName)
	add("last_name", u.LastName)
	add("city", u.City)
	add("position", u.Position)
	add("github", u.GitHub)
	add("linkedin", u.LinkedIn)
	add("telegram", u.Telegram)
	add("avatar_url", u.AvatarURL)
	add("cover_photo_url", u.CoverPhotoURL)
	return cols, vals
}

// UpdateProfile はnilでないフィールドのみを更新し、更新後のユーザーを返す。
// ユーザーが存在しない場合はErrNotFoundを返す。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	cols, vals := profileColumns(update)
	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	sets = append(sets, "updated_at = now()")

	args := append([]any{id}, vals...)
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+userColumns,
		args...,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}

// BackfillProfile は空のカラムだけを指定値で埋める。
func (r *PostgresUserRepo) BackfillProfile(ctx context.Context, id string, fill model.ProfileUpdate) error {
	cols, vals := profileColumns(fill)
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, 0, len(cols))
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = COALESCE(NULLIF(%s, ''), $%d)", col, col, i+2))
	}
	args := append([]any{id}, vals...)
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to backfill user profile: %w", err)
	}
	return nil
}

// TouchLastActive は最終アクティブ日時を更新する。
func (r *PostgresUserRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_active = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last active: %w", err)
	}
	return nil
}

// Search はユーザー名の前方一致でユーザーを検索する。
func (r *PostgresUserRepo) Search(ctx context.Context, prefix string, limit int) ([]model.UserSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, avatar_url
		 FROM users
		 WHERE lower(username) LIKE lower($1) || '%'
		 ORDER BY username
		 LIMIT $2`,
		escapeLike(prefix), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []model.UserSummary
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListSkills はユーザーのスキル一覧を返す。
func (r *PostgresUserRepo) ListSkills(ctx context.Context, userID string) ([]model.Skill, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.name
		 FROM skills s
		 JOIN user_skills us ON us.skill_id = s.id
		 WHERE us.user_id = $1
		 ORDER BY s.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user skills: %w", err)
	}
	defer rows.Close()
	return scanTerms(rows)
}

// ReplaceSkills はユーザーのスキルを指定IDの集合で置き換える。
func (r *PostgresUserRepo) ReplaceSkills(ctx context.Context, userID string, skillIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceLinks(ctx, tx, "user_skills", "user_id", "skill_id", userID, skillIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 所有するプロジェクト、投稿、TODO、identities等はCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
