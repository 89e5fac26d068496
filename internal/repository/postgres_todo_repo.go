package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresTodoRepo はPostgreSQLを使用したTODOリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

const todoColumns = `t.id, t.user_id, t.title, t.description, t.is_completed, t.due_date, t.created_at, t.updated_at`

func scanTodo(row rowScanner) (*model.Todo, error) {
	t := &model.Todo{}
	var due sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.IsCompleted, &due, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	return t, nil
}

// Create はTODOとタグの関連を同一トランザクションで作成する。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo, tagIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO todos (id, user_id, title, description, is_completed, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		todo.ID, todo.UserID, todo.Title, todo.Description, todo.IsCompleted, todo.DueDate,
		todo.CreatedAt, todo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert todo: %w", err)
	}
	if err := insertLinks(ctx, tx, "todo_tags", "todo_id", "tag_id", todo.ID, tagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDのTODOを取得する。見つからない場合はnilを返す。
func (r *PostgresTodoRepo) FindByID(ctx context.Context, id string) (*model.Todo, error) {
	t, err := scanTodo(r.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos t WHERE t.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find todo: %w", err)
	}
	return t, nil
}

// ListForUser はユーザー自身のTODOとウォッチ中のTODOを返す。
// 期限の近い順、期限なしは最後に並べる。
func (r *PostgresTodoRepo) ListForUser(ctx context.Context, userID string, completed *bool) ([]model.Todo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+`
		 FROM todos t
		 WHERE (t.user_id = $1
		        OR EXISTS (SELECT 1 FROM todo_watchers w WHERE w.todo_id = t.id AND w.user_id = $1))
		   AND ($2::boolean IS NULL OR t.is_completed = $2)
		 ORDER BY t.due_date ASC NULLS LAST, t.created_at DESC`,
		userID, completed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := []model.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, *t)
	}
	return todos, rows.Err()
}

// LoadDetails はタグとウォッチャーをまとめて読み込む。
func (r *PostgresTodoRepo) LoadDetails(ctx context.Context, todos []model.Todo) ([]model.TodoDetail, error) {
	details := make([]model.TodoDetail, len(todos))
	if len(todos) == 0 {
		return details, nil
	}
	ids := make([]string, len(todos))
	for i, t := range todos {
		ids[i] = t.ID
	}

	tags, err := loadLinkedTerms(ctx, r.db, "tags", "todo_tags", "todo_id", "tag_id", ids)
	if err != nil {
		return nil, err
	}
	watchers, err := loadLinkedUsers(ctx, r.db, "todo_watchers", "todo_id", "user_id", ids)
	if err != nil {
		return nil, err
	}

	for i, t := range todos {
		details[i] = model.TodoDetail{
			Todo:     t,
			Tags:     nonNilTerms(tags[t.ID]),
			Watchers: nonNilUsers(watchers[t.ID]),
		}
	}
	return details, nil
}

// Update はTODOを更新する。
func (r *PostgresTodoRepo) Update(ctx context.Context, todo *model.Todo, tagIDs *[]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE todos
		 SET title = $2, description = $3, is_completed = $4, due_date = $5, updated_at = $6
		 WHERE id = $1`,
		todo.ID, todo.Title, todo.Description, todo.IsCompleted, todo.DueDate, todo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update todo: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	if tagIDs != nil {
		if err := replaceLinks(ctx, tx, "todo_tags", "todo_id", "tag_id", todo.ID, *tagIDs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete はTODOを削除する。
func (r *PostgresTodoRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return requireAffected(result)
}

// IsWatcher はユーザーがTODOのウォッチャーかを返す。
func (r *PostgresTodoRepo) IsWatcher(ctx context.Context, todoID, userID string) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM todo_watchers WHERE todo_id = $1 AND user_id = $2)`,
		todoID, userID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check watcher: %w", err)
	}
	return found, nil
}

// AddWatcher はウォッチャーを追加する。
func (r *PostgresTodoRepo) AddWatcher(ctx context.Context, todoID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO todo_watchers (todo_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (todo_id, user_id) DO NOTHING`,
		todoID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to add watcher: %w", err)
	}
	return nil
}

// RemoveWatcher はウォッチャーを削除する。
func (r *PostgresTodoRepo) RemoveWatcher(ctx context.Context, todoID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM todo_watchers WHERE todo_id = $1 AND user_id = $2`,
		todoID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove watcher: %w", err)
	}
	return requireAffected(result)
}

// ListWatcherIDs はウォッチャーのユーザーID一覧を返す。
func (r *PostgresTodoRepo) ListWatcherIDs(ctx context.Context, todoID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM todo_watchers WHERE todo_id = $1`,
		todoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchers: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan watcher: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
