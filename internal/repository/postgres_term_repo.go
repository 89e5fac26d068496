package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/connectin/internal/model"
)

// 分類テーブル名
const (
	TermTableTags   = "tags"
	TermTableSkills = "skills"
)

// PostgresTermRepo はタグ・スキルテーブルを扱うリポジトリ。
type PostgresTermRepo struct {
	db    *sql.DB
	table string
}

// NewPostgresTermRepo はPostgresTermRepoを生成する。
// tableにはTermTableTagsまたはTermTableSkillsを指定する。
func NewPostgresTermRepo(db *sql.DB, table string) *PostgresTermRepo {
	if table != TermTableTags && table != TermTableSkills {
		panic(fmt.Sprintf("unknown term table: %s", table))
	}
	return &PostgresTermRepo{db: db, table: table}
}

// List は名前順に一覧を返す。
func (r *PostgresTermRepo) List(ctx context.Context, prefix string) ([]model.Term, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name FROM %s
		 WHERE $1 = '' OR lower(name) LIKE lower($1) || '%%'
		 ORDER BY name`, r.table),
		escapeLike(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.table, err)
	}
	defer rows.Close()
	return scanTerms(rows)
}

// FindByName は名前で検索する。見つからない場合はnilを返す。
func (r *PostgresTermRepo) FindByName(ctx context.Context, name string) (*model.Term, error) {
	t := &model.Term{}
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, name FROM %s WHERE lower(name) = lower($1)`, r.table),
		name,
	).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by name: %w", r.table, err)
	}
	return t, nil
}

// Create は項目を作成する。
func (r *PostgresTermRepo) Create(ctx context.Context, term *model.Term) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, name) VALUES ($1, $2)`, r.table),
		term.ID, term.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", r.table, err)
	}
	return nil
}

// FilterExisting は指定IDのうち存在するものだけを返す。
func (r *PostgresTermRepo) FilterExisting(ctx context.Context, ids []string) ([]string, error) {
	ids = validUUIDs(ids)
	if len(ids) == 0 {
		return []string{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, r.table),
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s: %w", r.table, err)
	}
	defer rows.Close()

	existing := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", r.table, err)
		}
		existing = append(existing, id)
	}
	return existing, rows.Err()
}

// compile-time interface check
var _ TermRepository = (*PostgresTermRepo)(nil)
