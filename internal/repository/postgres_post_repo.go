package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/connectin/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// Create は投稿とタグの関連を同一トランザクションで作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post, tagIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content, created_at) VALUES ($1, $2, $3, $4)`,
		post.ID, post.AuthorID, post.Content, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	if err := insertLinks(ctx, tx, "post_tags", "post_id", "tag_id", post.ID, tagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	p := &model.Post{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, author_id, content, created_at FROM posts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.AuthorID, &p.Content, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return p, nil
}

// List は投稿者、タグ、いいね数付きで新しい順に返す。
func (r *PostgresPostRepo) List(ctx context.Context, filter model.PostFilter, viewerID string) ([]model.PostDetail, error) {
	for _, id := range []string{filter.TagID, filter.AuthorID, filter.ID} {
		if id != "" && !isUUID(id) {
			return []model.PostDetail{}, nil
		}
	}

	args := []any{viewerID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conds []string
	if filter.TagID != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM post_tags pt WHERE pt.post_id = p.id AND pt.tag_id = `+next(filter.TagID)+`)`)
	}
	if filter.AuthorID != "" {
		conds = append(conds, `p.author_id = `+next(filter.AuthorID))
	}
	if filter.ID != "" {
		conds = append(conds, `p.id = `+next(filter.ID))
	}

	query := `SELECT p.id, p.author_id, p.content, p.created_at,
	                 u.username, u.email, u.avatar_url,
	                 (SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id),
	                 EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id::text = $1)
	          FROM posts p
	          JOIN users u ON u.id = p.author_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY p.created_at DESC, p.id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + next(filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []model.PostDetail{}
	for rows.Next() {
		var d model.PostDetail
		if err := rows.Scan(&d.ID, &d.AuthorID, &d.Content, &d.CreatedAt,
			&d.Author.Username, &d.Author.Email, &d.Author.AvatarURL,
			&d.LikesCount, &d.LikedByMe); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		d.Author.ID = d.AuthorID
		posts = append(posts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	tags, err := loadLinkedTerms(ctx, r.db, "tags", "post_tags", "post_id", "tag_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Tags = nonNilTerms(tags[posts[i].ID])
	}
	return posts, nil
}

// Delete は投稿を削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return requireAffected(result)
}

// HasLiked はユーザーが投稿にいいね済みかを返す。
func (r *PostgresPostRepo) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	var liked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM post_likes WHERE post_id = $1 AND user_id = $2)`,
		postID, userID,
	).Scan(&liked)
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}
	return liked, nil
}

// Like はいいねを追加する。既にいいね済みの場合は何もしない。
func (r *PostgresPostRepo) Like(ctx context.Context, postID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO post_likes (user_id, post_id, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id, post_id) DO NOTHING`,
		userID, postID,
	)
	if err != nil {
		return fmt.Errorf("failed to like post: %w", err)
	}
	return nil
}

// Unlike はいいねを取り消す。
func (r *PostgresPostRepo) Unlike(ctx context.Context, postID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`,
		postID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to unlike post: %w", err)
	}
	return nil
}

// CountLikes はいいね数を返す。
func (r *PostgresPostRepo) CountLikes(ctx context.Context, postID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_likes WHERE post_id = $1`,
		postID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
