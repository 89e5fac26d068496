package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/connectin/internal/model"
)

const identityColumns = `id, user_id, provider, provider_user_id, created_at`

// PostgresIdentityRepo は外部IdPとユーザーの紐付けをidentitiesテーブルで管理する。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

func scanIdentity(row interface{ Scan(dest ...any) error }) (*model.Identity, error) {
	var id model.Identity
	if err := row.Scan(&id.ID, &id.UserID, &id.Provider, &id.ProviderUserID, &id.CreatedAt); err != nil {
		return nil, err
	}
	return &id, nil
}

// FindByProviderAndProviderUserID は未登録ならnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find identity %s/%s: %w", provider, providerUserID, err)
	}
	return identity, nil
}

// ListByUserID はユーザーに紐付くidentityを登録順に返す。
func (r *PostgresIdentityRepo) ListByUserID(ctx context.Context, userID string) ([]model.Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE user_id = $1 ORDER BY created_at, provider`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	identities := []model.Identity{}
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Link はidentityを追加する。
// 同じIdPアカウント、または同じユーザーの同じproviderがすでにあれば何もせずfalseを返す。
func (r *PostgresIdentityRepo) Link(ctx context.Context, identity *model.Identity) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT DO NOTHING`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("link identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link identity rows affected: %w", err)
	}
	return n == 1, nil
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
