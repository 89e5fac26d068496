// Package team はチームとメンバー管理のドメインロジックを提供する。
package team

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
	"github.com/hitoshi/connectin/internal/repository"
)

const maxNameLength = 100

// Service はチームのサービス層。
type Service struct {
	teams repository.TeamRepository
	users repository.UserRepository
	now   func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(teams repository.TeamRepository, users repository.UserRepository) *Service {
	return &Service{teams: teams, users: users, now: time.Now}
}

// Create はチームを作成する。作成者は管理者メンバーになる。
func (s *Service) Create(ctx context.Context, userID, name, description string) (*model.TeamDetail, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	t := &model.Team{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   userID,
		CreatedAt:   s.now(),
	}
	if err := s.teams.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("チームの作成に失敗しました: %w", err)
	}

	slog.Info("team created",
		slog.String("team_id", t.ID),
		slog.String("user_id", userID),
	)
	return s.withMembers(ctx, t)
}

// List はユーザーが所属するチームを返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.Team, error) {
	teams, err := s.teams.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("チーム一覧の取得に失敗しました: %w", err)
	}
	return teams, nil
}

// Get はメンバー一覧付きのチームを返す。
func (s *Service) Get(ctx context.Context, teamID string) (*model.TeamDetail, error) {
	t, err := s.find(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return s.withMembers(ctx, t)
}

// Update はチーム名と説明を更新する。管理者のみ実行できる。
func (s *Service) Update(ctx context.Context, userID, teamID string, name, description *string) (*model.TeamDetail, error) {
	t, err := s.findAsAdmin(ctx, userID, teamID)
	if err != nil {
		return nil, err
	}
	if name != nil {
		n, err := validateName(*name)
		if err != nil {
			return nil, err
		}
		t.Name = n
	}
	if description != nil {
		t.Description = strings.TrimSpace(*description)
	}
	err = s.teams.Update(ctx, t)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewTeamNotFoundError(teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("チームの更新に失敗しました: %w", err)
	}
	return s.withMembers(ctx, t)
}

// Delete はチームを削除する。管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, userID, teamID string) error {
	if _, err := s.findAsAdmin(ctx, userID, teamID); err != nil {
		return err
	}
	err := s.teams.Delete(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewTeamNotFoundError(teamID)
	}
	if err != nil {
		return fmt.Errorf("チームの削除に失敗しました: %w", err)
	}
	return nil
}

// AddMember はユーザーをチームに追加する。管理者のみ実行できる。
func (s *Service) AddMember(ctx context.Context, userID, teamID, memberID string, isAdmin bool) (*model.TeamDetail, error) {
	t, err := s.findAsAdmin(ctx, userID, teamID)
	if err != nil {
		return nil, err
	}

	u, err := s.users.FindByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	existing, err := s.teams.FindMember(ctx, teamID, memberID)
	if err != nil {
		return nil, fmt.Errorf("メンバーの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyMemberError()
	}

	if err := s.teams.AddMember(ctx, teamID, memberID, isAdmin); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewAlreadyMemberError()
		}
		return nil, fmt.Errorf("メンバーの追加に失敗しました: %w", err)
	}
	return s.withMembers(ctx, t)
}

// RemoveMember はメンバーをチームから外す。管理者またはメンバー本人が実行できる。
func (s *Service) RemoveMember(ctx context.Context, userID, teamID, memberID string) error {
	if _, err := s.find(ctx, teamID); err != nil {
		return err
	}
	if userID != memberID {
		if err := s.requireAdmin(ctx, userID, teamID); err != nil {
			return err
		}
	}

	err := s.teams.RemoveMember(ctx, teamID, memberID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewMemberNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("メンバーの削除に失敗しました: %w", err)
	}

	slog.Info("team member removed",
		slog.String("team_id", teamID),
		slog.String("user_id", memberID),
		slog.String("removed_by", userID),
	)
	return nil
}

func (s *Service) find(ctx context.Context, teamID string) (*model.Team, error) {
	t, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("チームの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTeamNotFoundError(teamID)
	}
	return t, nil
}

func (s *Service) findAsAdmin(ctx context.Context, userID, teamID string) (*model.Team, error) {
	t, err := s.find(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, userID, teamID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) requireAdmin(ctx context.Context, userID, teamID string) error {
	m, err := s.teams.FindMember(ctx, teamID, userID)
	if err != nil {
		return fmt.Errorf("メンバーの確認に失敗しました: %w", err)
	}
	if m == nil || !m.IsAdmin {
		return model.NewNotTeamAdminError()
	}
	return nil
}

func (s *Service) withMembers(ctx context.Context, t *model.Team) (*model.TeamDetail, error) {
	members, err := s.teams.ListMembers(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}
	return &model.TeamDetail{Team: *t, Members: members}, nil
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", model.NewValidationError("チーム名は必須です")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", model.NewValidationError(fmt.Sprintf("チーム名は%d文字以内で入力してください", maxNameLength))
	}
	return name, nil
}
