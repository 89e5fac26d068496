// Package todo はTODOとウォッチャーのドメインロジックを提供する。
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/notification"
	"github.com/hitoshi/connectin/internal/repository"
	"github.com/hitoshi/connectin/internal/security"
)

const maxTitleLength = 200

// Deps はServiceの依存。
type Deps struct {
	Todos     repository.TodoRepository
	Users     repository.UserRepository
	Tags      repository.TermRepository
	Notifier  notification.Notifier
	Sanitizer security.ContentSanitizer
}

// Service はTODOのサービス層。
type Service struct {
	todos     repository.TodoRepository
	users     repository.UserRepository
	tags      repository.TermRepository
	notifier  notification.Notifier
	sanitizer security.ContentSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(d Deps) *Service {
	return &Service{
		todos:     d.Todos,
		users:     d.Users,
		tags:      d.Tags,
		notifier:  d.Notifier,
		sanitizer: d.Sanitizer,
		now:       time.Now,
	}
}

// CreateInput はTODO作成の入力。
type CreateInput struct {
	Title       string
	Description string
	DueDate     *time.Time
	TagIDs      []string
}

// Create はTODOを作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.TodoDetail, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	tagIDs, err := s.filterTags(ctx, in.TagIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &model.Todo{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: s.sanitizer.Sanitize(strings.TrimSpace(in.Description)),
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.todos.Create(ctx, t, tagIDs); err != nil {
		return nil, fmt.Errorf("TODOの作成に失敗しました: %w", err)
	}
	return s.detail(ctx, t)
}

// List はユーザー自身のTODOとウォッチ中のTODOを返す。completedがnilなら全件。
func (s *Service) List(ctx context.Context, userID string, completed *bool) ([]model.TodoDetail, error) {
	todos, err := s.todos.ListForUser(ctx, userID, completed)
	if err != nil {
		return nil, fmt.Errorf("TODO一覧の取得に失敗しました: %w", err)
	}
	details, err := s.todos.LoadDetails(ctx, todos)
	if err != nil {
		return nil, fmt.Errorf("TODO詳細の取得に失敗しました: %w", err)
	}
	return details, nil
}

// Get はTODOを返す。オーナーとウォッチャーのみ閲覧できる。
func (s *Service) Get(ctx context.Context, userID, todoID string) (*model.TodoDetail, error) {
	t, err := s.find(ctx, todoID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		watching, err := s.todos.IsWatcher(ctx, todoID, userID)
		if err != nil {
			return nil, fmt.Errorf("ウォッチャーの確認に失敗しました: %w", err)
		}
		if !watching {
			return nil, model.NewForbiddenError("このTODOを閲覧する権限がありません")
		}
	}
	return s.detail(ctx, t)
}

// Update はTODOを部分更新する。オーナーのみ実行できる。
// 未完了から完了に変わった場合はウォッチャーに通知する。
func (s *Service) Update(ctx context.Context, userID, todoID string, upd model.TodoUpdate) (*model.TodoDetail, error) {
	t, err := s.findOwned(ctx, userID, todoID)
	if err != nil {
		return nil, err
	}
	wasCompleted := t.IsCompleted

	if upd.Title != nil {
		title, err := validateTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		t.Title = title
	}
	if upd.Description != nil {
		t.Description = s.sanitizer.Sanitize(strings.TrimSpace(*upd.Description))
	}
	if upd.IsCompleted != nil {
		t.IsCompleted = *upd.IsCompleted
	}
	if upd.ClearDue {
		t.DueDate = nil
	} else if upd.DueDate != nil {
		t.DueDate = upd.DueDate
	}

	var tagIDs *[]string
	if upd.TagIDs != nil {
		ids, err := s.filterTags(ctx, *upd.TagIDs)
		if err != nil {
			return nil, err
		}
		tagIDs = &ids
	}

	t.UpdatedAt = s.now()
	err = s.todos.Update(ctx, t, tagIDs)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewTodoNotFoundError(todoID)
	}
	if err != nil {
		return nil, fmt.Errorf("TODOの更新に失敗しました: %w", err)
	}

	if !wasCompleted && t.IsCompleted {
		s.notifyCompleted(ctx, t)
	}
	return s.detail(ctx, t)
}

// Delete はTODOを削除する。オーナーのみ実行できる。
func (s *Service) Delete(ctx context.Context, userID, todoID string) error {
	if _, err := s.findOwned(ctx, userID, todoID); err != nil {
		return err
	}
	err := s.todos.Delete(ctx, todoID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewTodoNotFoundError(todoID)
	}
	if err != nil {
		return fmt.Errorf("TODOの削除に失敗しました: %w", err)
	}
	return nil
}

// AddWatcher はウォッチャーを追加する。オーナーのみ実行できる。
func (s *Service) AddWatcher(ctx context.Context, userID, todoID, watcherID string) (*model.TodoDetail, error) {
	t, err := s.findOwned(ctx, userID, todoID)
	if err != nil {
		return nil, err
	}
	if watcherID == t.UserID {
		return nil, model.NewValidationError("オーナーはウォッチャーに追加できません")
	}

	u, err := s.users.FindByID(ctx, watcherID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.todos.AddWatcher(ctx, todoID, watcherID); err != nil {
		return nil, fmt.Errorf("ウォッチャーの追加に失敗しました: %w", err)
	}
	return s.detail(ctx, t)
}

// RemoveWatcher はウォッチャーを外す。オーナーまたはウォッチャー本人が実行できる。
func (s *Service) RemoveWatcher(ctx context.Context, userID, todoID, watcherID string) error {
	t, err := s.find(ctx, todoID)
	if err != nil {
		return err
	}
	if t.UserID != userID && watcherID != userID {
		return model.NewForbiddenError("このウォッチャーを削除する権限がありません")
	}

	err = s.todos.RemoveWatcher(ctx, todoID, watcherID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("ウォッチャーの削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) notifyCompleted(ctx context.Context, t *model.Todo) {
	watchers, err := s.todos.ListWatcherIDs(ctx, t.ID)
	if err != nil {
		slog.Error("failed to list todo watchers",
			slog.String("todo_id", t.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, id := range watchers {
		s.notifier.Notify(ctx, model.Notification{
			UserID:  id,
			Type:    model.NotificationTodoCompleted,
			Title:   "TODOが完了しました",
			Message: fmt.Sprintf("ウォッチ中のTODO「%s」が完了しました。", t.Title),
		})
	}
}

func (s *Service) find(ctx context.Context, todoID string) (*model.Todo, error) {
	t, err := s.todos.FindByID(ctx, todoID)
	if err != nil {
		return nil, fmt.Errorf("TODOの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTodoNotFoundError(todoID)
	}
	return t, nil
}

func (s *Service) findOwned(ctx context.Context, userID, todoID string) (*model.Todo, error) {
	t, err := s.find(ctx, todoID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, model.NewForbiddenError("このTODOを変更する権限がありません")
	}
	return t, nil
}

func (s *Service) detail(ctx context.Context, t *model.Todo) (*model.TodoDetail, error) {
	details, err := s.todos.LoadDetails(ctx, []model.Todo{*t})
	if err != nil {
		return nil, fmt.Errorf("TODO詳細の取得に失敗しました: %w", err)
	}
	return &details[0], nil
}

func (s *Service) filterTags(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	existing, err := s.tags.FilterExisting(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("タグの確認に失敗しました: %w", err)
	}
	return existing, nil
}

func validateTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", model.NewValidationError("タイトルは必須です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", model.NewValidationError(fmt.Sprintf("タイトルは%d文字以内で入力してください", maxTitleLength))
	}
	return title, nil
}
