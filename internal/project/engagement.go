package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

// 投票のトグル結果
const (
	VoteAdded   = "Vote added"
	VoteRemoved = "Vote removed"
	VoteChanged = "Vote changed"
)

// VoteResult は投票トグルの結果。
type VoteResult struct {
	Message   string
	VoteCount int
}

// VoteStatus はユーザーの投票状態。未投票の場合IsUpvoteはnil。
type VoteStatus struct {
	HasVoted bool
	IsUpvote *bool
}

// Vote は投票をトグルする。
// 未投票なら追加、同じ向きなら取り消し、逆向きなら変更する。
func (s *Service) Vote(ctx context.Context, userID, projectID string, isUpvote bool) (*VoteResult, error) {
	if _, err := s.find(ctx, projectID); err != nil {
		return nil, err
	}

	existing, err := s.votes.Find(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("投票の取得に失敗しました: %w", err)
	}

	var message string
	switch {
	case existing == nil:
		err = s.votes.Create(ctx, &model.Vote{
			ProjectID: projectID,
			UserID:    userID,
			IsUpvote:  isUpvote,
			CreatedAt: s.now(),
		})
		message = VoteAdded
	case existing.IsUpvote == isUpvote:
		err = s.votes.Delete(ctx, projectID, userID)
		message = VoteRemoved
	default:
		err = s.votes.UpdateDirection(ctx, projectID, userID, isUpvote)
		message = VoteChanged
	}
	if err != nil {
		// 初回投票が同時に届くと主キーの一意制約違反になる
		if repository.IsUniqueViolation(err) {
			return nil, model.NewVoteConflictError()
		}
		return nil, fmt.Errorf("投票の更新に失敗しました: %w", err)
	}

	count, err := s.votes.Sum(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("投票数の集計に失敗しました: %w", err)
	}
	return &VoteResult{Message: message, VoteCount: count}, nil
}

// VoteStatus はユーザーの投票状態を返す。
func (s *Service) VoteStatus(ctx context.Context, userID, projectID string) (*VoteStatus, error) {
	if _, err := s.find(ctx, projectID); err != nil {
		return nil, err
	}
	v, err := s.votes.Find(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("投票の取得に失敗しました: %w", err)
	}
	if v == nil {
		return &VoteStatus{}, nil
	}
	up := v.IsUpvote
	return &VoteStatus{HasVoted: true, IsUpvote: &up}, nil
}

// AddComment はプロジェクトにコメントする。本文はサニタイズして保存する。
func (s *Service) AddComment(ctx context.Context, userID, projectID, content string) (*model.Comment, error) {
	if _, err := s.find(ctx, projectID); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.NewValidationError("コメントを入力してください")
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		return nil, model.NewValidationError(fmt.Sprintf("コメントは%d文字以内で入力してください", maxCommentLength))
	}
	sanitized := s.sanitizer.Sanitize(content)
	if strings.TrimSpace(sanitized) == "" {
		return nil, model.NewValidationError("コメントに表示できる内容がありません")
	}

	c := &model.Comment{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		UserID:    userID,
		Content:   sanitized,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}

	if u, err := s.users.FindByID(ctx, userID); err == nil && u != nil {
		c.Author = &model.UserSummary{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
	}
	return c, nil
}

// ListComments はプロジェクトのコメントを古い順に返す。
func (s *Service) ListComments(ctx context.Context, projectID string) ([]model.Comment, error) {
	if _, err := s.find(ctx, projectID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// DeleteComment はコメントを削除する。投稿者本人またはプロジェクトのオーナーのみ実行できる。
func (s *Service) DeleteComment(ctx context.Context, userID, projectID, commentID string) error {
	p, err := s.find(ctx, projectID)
	if err != nil {
		return err
	}
	c, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if c == nil || c.ProjectID != projectID {
		return model.NewCommentNotFoundError()
	}
	if c.UserID != userID && p.OwnerID != userID {
		return model.NewForbiddenError("コメントの削除")
	}
	err = s.comments.Delete(ctx, commentID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewCommentNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}
