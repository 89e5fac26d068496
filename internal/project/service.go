// Package project はプロジェクト、参加申請ワークフロー、投票、コメントのドメインロジックを提供する。
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/metrics"
	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/notification"
	"github.com/hitoshi/connectin/internal/repository"
	"github.com/hitoshi/connectin/internal/security"
)

const (
	maxNameLength    = 200
	maxCommentLength = 2000
	defaultLimit     = 20
	maxLimit         = 100
)

// Deps はServiceの依存をまとめたもの。
type Deps struct {
	Projects  repository.ProjectRepository
	Members   repository.MembershipRepository
	Votes     repository.VoteRepository
	Comments  repository.CommentRepository
	Users     repository.UserRepository
	Tags      repository.TermRepository
	Skills    repository.TermRepository
	Notifier  notification.Notifier
	Sanitizer security.ContentSanitizer
	Recorder  metrics.Recorder
}

// Service はプロジェクトのサービス層。
type Service struct {
	projects  repository.ProjectRepository
	members   repository.MembershipRepository
	votes     repository.VoteRepository
	comments  repository.CommentRepository
	users     repository.UserRepository
	tags      repository.TermRepository
	skills    repository.TermRepository
	notifier  notification.Notifier
	sanitizer security.ContentSanitizer
	recorder  metrics.Recorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// Recorderが未指定の場合はメトリクスを記録しない。
func NewService(d Deps) *Service {
	rec := d.Recorder
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		projects:  d.Projects,
		members:   d.Members,
		votes:     d.Votes,
		comments:  d.Comments,
		users:     d.Users,
		tags:      d.Tags,
		skills:    d.Skills,
		notifier:  d.Notifier,
		sanitizer: d.Sanitizer,
		recorder:  rec,
		now:       time.Now,
	}
}

// CreateInput はプロジェクト作成の入力。
type CreateInput struct {
	Name        string
	Description string
	Status      model.ProjectStatus
	TagIDs      []string
	SkillIDs    []string
}

// Create はプロジェクトを作成する。呼び出し元ユーザーがオーナーになる。
// 存在しないタグ・スキルIDは無視する。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.ProjectDetail, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = model.ProjectStatusDevelopment
	}
	if !status.IsValid() {
		return nil, model.NewValidationError(fmt.Sprintf("不明なステータスです: %s", status))
	}

	tagIDs, skillIDs, err := s.filterTerms(ctx, &in.TagIDs, &in.SkillIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: s.sanitizer.Sanitize(in.Description),
		Status:      status,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projects.Create(ctx, p, *tagIDs, *skillIDs); err != nil {
		return nil, fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)
	}

	slog.Info("project created",
		slog.String("project_id", p.ID),
		slog.String("owner_id", ownerID),
	)
	return s.detail(ctx, p)
}

// List は条件に一致するプロジェクトを新しい順に返す。
func (s *Service) List(ctx context.Context, filter model.ProjectFilter) ([]model.ProjectDetail, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Query = strings.TrimSpace(filter.Query)

	projects, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	return s.details(ctx, projects)
}

// ListMine はユーザーがオーナーまたはメンバーのプロジェクトを返す。
func (s *Service) ListMine(ctx context.Context, userID string) ([]model.ProjectDetail, error) {
	projects, err := s.projects.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}
	return s.details(ctx, projects)
}

// Get はプロジェクトの詳細を返す。
func (s *Service) Get(ctx context.Context, projectID string) (*model.ProjectDetail, error) {
	p, err := s.find(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, p)
}

// Update はプロジェクトを部分更新する。オーナーのみ実行できる。
func (s *Service) Update(ctx context.Context, userID, projectID string, update model.ProjectUpdate) (*model.ProjectDetail, error) {
	p, err := s.findOwned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		name, err := validateName(*update.Name)
		if err != nil {
			return nil, err
		}
		p.Name = name
	}
	if update.Description != nil {
		p.Description = s.sanitizer.Sanitize(*update.Description)
	}
	if update.Status != nil {
		if !update.Status.IsValid() {
			return nil, model.NewValidationError(fmt.Sprintf("不明なステータスです: %s", *update.Status))
		}
		p.Status = *update.Status
	}

	tagIDs, skillIDs, err := s.filterTerms(ctx, update.TagIDs, update.SkillIDs)
	if err != nil {
		return nil, err
	}

	p.UpdatedAt = s.now()
	err = s.projects.Update(ctx, p, tagIDs, skillIDs)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewProjectNotFoundError(projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの更新に失敗しました: %w", err)
	}
	return s.detail(ctx, p)
}

// Delete はプロジェクトを削除する。オーナーのみ実行できる。
func (s *Service) Delete(ctx context.Context, userID, projectID string) error {
	if _, err := s.findOwned(ctx, userID, projectID); err != nil {
		return err
	}
	err := s.projects.Delete(ctx, projectID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewProjectNotFoundError(projectID)
	}
	if err != nil {
		return fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
	}

	slog.Info("project deleted",
		slog.String("project_id", projectID),
		slog.String("owner_id", userID),
	)
	return nil
}

// find はプロジェクトを取得し、存在しなければPROJECT_NOT_FOUNDを返す。
func (s *Service) find(ctx context.Context, projectID string) (*model.Project, error) {
	p, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProjectNotFoundError(projectID)
	}
	return p, nil
}

// findOwned はプロジェクトを取得し、オーナーでなければNOT_PROJECT_OWNERを返す。
func (s *Service) findOwned(ctx context.Context, userID, projectID string) (*model.Project, error) {
	p, err := s.find(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != userID {
		return nil, model.NewNotProjectOwnerError()
	}
	return p, nil
}

func (s *Service) detail(ctx context.Context, p *model.Project) (*model.ProjectDetail, error) {
	details, err := s.details(ctx, []model.Project{*p})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

func (s *Service) details(ctx context.Context, projects []model.Project) ([]model.ProjectDetail, error) {
	details, err := s.projects.LoadDetails(ctx, projects)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト詳細の取得に失敗しました: %w", err)
	}
	return details, nil
}

// filterTerms は存在するタグ・スキルIDだけに絞り込む。nilはそのままnilを返す。
func (s *Service) filterTerms(ctx context.Context, tagIDs, skillIDs *[]string) (*[]string, *[]string, error) {
	var err error
	if tagIDs, err = filterExisting(ctx, s.tags, tagIDs); err != nil {
		return nil, nil, fmt.Errorf("タグの確認に失敗しました: %w", err)
	}
	if skillIDs, err = filterExisting(ctx, s.skills, skillIDs); err != nil {
		return nil, nil, fmt.Errorf("スキルの確認に失敗しました: %w", err)
	}
	return tagIDs, skillIDs, nil
}

func filterExisting(ctx context.Context, repo repository.TermRepository, ids *[]string) (*[]string, error) {
	if ids == nil {
		return nil, nil
	}
	existing, err := repo.FilterExisting(ctx, *ids)
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", model.NewValidationError("プロジェクト名は必須です")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", model.NewValidationError(fmt.Sprintf("プロジェクト名は%d文字以内で入力してください", maxNameLength))
	}
	return name, nil
}
