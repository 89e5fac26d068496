// Package post はタイムライン投稿といいねのドメインロジックを提供する。
package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
	"github.com/hitoshi/connectin/internal/security"
)

const (
	maxContentLength = 5000
	defaultLimit     = 20
	maxLimit         = 100
)

// LikeResult はいいね切り替え後の状態。
type LikeResult struct {
	Liked      bool
	LikesCount int
}

// Service は投稿のサービス層。
type Service struct {
	posts     repository.PostRepository
	tags      repository.TermRepository
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(posts repository.PostRepository, tags repository.TermRepository, sanitizer security.ContentSanitizer) *Service {
	return &Service{posts: posts, tags: tags, sanitizer: sanitizer, now: time.Now}
}

// Create は投稿を作成する。存在しないタグIDは無視する。
func (s *Service) Create(ctx context.Context, userID, content string, tagIDs []string) (*model.PostDetail, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.NewValidationError("投稿内容は必須です")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, model.NewValidationError(fmt.Sprintf("投稿内容は%d文字以内で入力してください", maxContentLength))
	}
	content = s.sanitizer.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, model.NewValidationError("投稿内容に有効なテキストが含まれていません")
	}

	if len(tagIDs) > 0 {
		existing, err := s.tags.FilterExisting(ctx, tagIDs)
		if err != nil {
			return nil, fmt.Errorf("タグの確認に失敗しました: %w", err)
		}
		tagIDs = existing
	}

	p := &model.Post{
		ID:        uuid.New().String(),
		AuthorID:  userID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.posts.Create(ctx, p, tagIDs); err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return s.Get(ctx, userID, p.ID)
}

// List は条件に一致する投稿を新しい順に返す。
func (s *Service) List(ctx context.Context, viewerID string, filter model.PostFilter) ([]model.PostDetail, error) {
	filter.ID = ""
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	posts, err := s.posts.List(ctx, filter, viewerID)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// Get は投稿を1件返す。
func (s *Service) Get(ctx context.Context, viewerID, postID string) (*model.PostDetail, error) {
	posts, err := s.posts.List(ctx, model.PostFilter{ID: postID, Limit: 1}, viewerID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if len(posts) == 0 {
		return nil, model.NewPostNotFoundError(postID)
	}
	return &posts[0], nil
}

// Delete は投稿を削除する。投稿者のみ実行できる。
func (s *Service) Delete(ctx context.Context, userID, postID string) error {
	p, err := s.find(ctx, postID)
	if err != nil {
		return err
	}
	if p.AuthorID != userID {
		return model.NewForbiddenError("この投稿を削除する権限がありません")
	}
	err = s.posts.Delete(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewPostNotFoundError(postID)
	}
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	return nil
}

// ToggleLike はいいねを切り替え、切り替え後の状態を返す。
func (s *Service) ToggleLike(ctx context.Context, userID, postID string) (*LikeResult, error) {
	if _, err := s.find(ctx, postID); err != nil {
		return nil, err
	}

	liked, err := s.posts.HasLiked(ctx, postID, userID)
	if err != nil {
		return nil, fmt.Errorf("いいね状態の確認に失敗しました: %w", err)
	}
	if liked {
		err = s.posts.Unlike(ctx, postID, userID)
	} else {
		err = s.posts.Like(ctx, postID, userID)
	}
	if err != nil && !repository.IsUniqueViolation(err) {
		return nil, fmt.Errorf("いいねの更新に失敗しました: %w", err)
	}

	count, err := s.posts.CountLikes(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("いいね数の取得に失敗しました: %w", err)
	}
	return &LikeResult{Liked: !liked, LikesCount: count}, nil
}

func (s *Service) find(ctx context.Context, postID string) (*model.Post, error) {
	p, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return p, nil
}
