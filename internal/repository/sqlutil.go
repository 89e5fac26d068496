package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/connectin/internal/model"
)

// requireAffected は1行も更新されなかった場合にErrNotFoundを返す。
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike はLIKEパターンのワイルドカードをエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanTerms(rows *sql.Rows) ([]model.Term, error) {
	terms := []model.Term{}
	for rows.Next() {
		var t model.Term
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// replaceLinks は中間テーブルの関連をownerIDについて置き換える。
func replaceLinks(ctx context.Context, ex execer, table, ownerCol, targetCol, ownerID string, targetIDs []string) error {
	_, err := ex.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerCol),
		ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return insertLinks(ctx, ex, table, ownerCol, targetCol, ownerID, targetIDs)
}

// insertLinks は中間テーブルに関連を追加する。既存の関連は無視する。
func insertLinks(ctx context.Context, ex execer, table, ownerCol, targetCol, ownerID string, targetIDs []string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, %s)
		 SELECT $1, unnest($2::uuid[])
		 ON CONFLICT DO NOTHING`, table, ownerCol, targetCol),
		ownerID, pq.Array(targetIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", table, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadLinkedTerms は複数のオーナーに紐づくタグ・スキルをまとめて取得する。
func loadLinkedTerms(ctx context.Context, q queryer, termTable, linkTable, ownerCol, termCol string, ownerIDs []string) (map[string][]model.Term, error) {
	result := make(map[string][]model.Term, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT l.%s, t.id, t.name
		 FROM %s t
		 JOIN %s l ON l.%s = t.id
		 WHERE l.%s = ANY($1)
		 ORDER BY t.name`, ownerCol, termTable, linkTable, termCol, ownerCol),
		pq.Array(ownerIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", linkTable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID string
		var t model.Term
		if err := rows.Scan(&ownerID, &t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", linkTable, err)
		}
		result[ownerID] = append(result[ownerID], t)
	}
	return result, rows.Err()
}

// loadLinkedUsers は複数のオーナーに紐づくユーザーをまとめて取得する。
// orderColは中間テーブル上の並び順に使うカラム。
func loadLinkedUsers(ctx context.Context, q queryer, linkTable, ownerCol, orderCol string, ownerIDs []string) (map[string][]model.UserSummary, error) {
	result := make(map[string][]model.UserSummary, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT l.%s, u.id, u.username, u.email, u.avatar_url
		 FROM users u
		 JOIN %s l ON l.user_id = u.id
		 WHERE l.%s = ANY($1)
		 ORDER BY l.%s`, ownerCol, linkTable, ownerCol, orderCol),
		pq.Array(ownerIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", linkTable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID string
		var u model.UserSummary
		if err := rows.Scan(&ownerID, &u.ID, &u.Username, &u.Email, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", linkTable, err)
		}
		result[ownerID] = append(result[ownerID], u)
	}
	return result, rows.Err()
}

// IsUniqueViolation は一意制約違反（SQLSTATE 23505）かを返す。
// 主キーや一意インデックスで競合を検出した場合に使用する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isUUID はuuid列と比較できる文字列かを返す。
// 不正な文字列をそのまま渡すとPostgresが22P02でクエリ全体を失敗させる。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// validUUIDs はUUIDとして解釈できるIDのみを重複なしで返す。
func validUUIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if !isUUID(id) || seen[id] {
			continue
		}
		seen[id] = true
		valid = append(valid, id)
	}
	return valid
}
