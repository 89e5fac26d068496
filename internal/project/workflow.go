package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

// State はユーザーとプロジェクトの関係を返す。
// オーナーはメンバーとして扱う。
func (s *Service) State(ctx context.Context, p *model.Project, userID string) (model.ApplicationState, error) {
	if p.OwnerID == userID {
		return model.ApplicationStateMember, nil
	}
	member, err := s.members.IsMember(ctx, p.ID, userID)
	if err != nil {
		return model.ApplicationStateNone, fmt.Errorf("メンバーの確認に失敗しました: %w", err)
	}
	if member {
		return model.ApplicationStateMember, nil
	}
	applied, err := s.members.HasApplied(ctx, p.ID, userID)
	if err != nil {
		return model.ApplicationStateNone, fmt.Errorf("参加申請の確認に失敗しました: %w", err)
	}
	if applied {
		return model.ApplicationStateApplied, nil
	}
	return model.ApplicationStateNone, nil
}

// Apply はプロジェクトへの参加を申請し、オーナーに通知する。
// 状態遷移: None → Applied。Member/Appliedからの申請はエラー。
func (s *Service) Apply(ctx context.Context, userID, projectID string) error {
	p, err := s.find(ctx, projectID)
	if err != nil {
		return err
	}

	state, err := s.State(ctx, p, userID)
	if err != nil {
		return err
	}
	switch state {
	case model.ApplicationStateMember:
		return model.NewAlreadyMemberError()
	case model.ApplicationStateApplied:
		return model.NewAlreadyAppliedError()
	}

	if err := s.members.CreateApplication(ctx, projectID, userID); err != nil {
		// 同時申請による一意制約違反は申請済みとして扱う
		if repository.IsUniqueViolation(err) {
			return model.NewAlreadyAppliedError()
		}
		return fmt.Errorf("参加申請の作成に失敗しました: %w", err)
	}

	s.notifier.Notify(ctx, model.Notification{
		UserID:    p.OwnerID,
		Type:      model.NotificationApplication,
		Title:     "新しい参加申請",
		Message:   fmt.Sprintf("%sさんが「%s」への参加を申請しました。", s.username(ctx, userID), p.Name),
		ProjectID: p.ID,
	})

	slog.Info("application submitted",
		slog.String("project_id", projectID),
		slog.String("user_id", userID),
	)
	return nil
}

// ListMembers はプロジェクトのメンバー一覧を返す。
func (s *Service) ListMembers(ctx context.Context, projectID string) ([]model.UserSummary, error) {
	if _, err := s.find(ctx, projectID); err != nil {
		return nil, err
	}
	members, err := s.members.ListMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}
	return members, nil
}

// ListApplications は参加申請の一覧を返す。オーナーのみ実行できる。
func (s *Service) ListApplications(ctx context.Context, userID, projectID string) ([]model.Application, error) {
	if _, err := s.findOwned(ctx, userID, projectID); err != nil {
		return nil, err
	}
	apps, err := s.members.ListApplications(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("参加申請一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// Decide は参加申請を承認または却下し、申請者に通知する。オーナーのみ実行できる。
// 承認: Applied → Member（メンバー追加と申請削除は同一トランザクション）。却下: Applied → None。
func (s *Service) Decide(ctx context.Context, ownerID, projectID, applicantID string, decision model.Decision) error {
	p, err := s.findOwned(ctx, ownerID, projectID)
	if err != nil {
		return err
	}

	var notifType, title, message string
	switch decision {
	case model.DecisionAccepted:
		err = s.members.AcceptApplication(ctx, projectID, applicantID)
		notifType = model.NotificationApplicationAccepted
		title = "参加申請が承認されました"
		message = fmt.Sprintf("「%s」のメンバーになりました。", p.Name)
	case model.DecisionRejected:
		err = s.members.DeleteApplication(ctx, projectID, applicantID)
		notifType = model.NotificationApplicationRejected
		title = "参加申請が却下されました"
		message = fmt.Sprintf("「%s」への参加申請は却下されました。", p.Name)
	default:
		return model.NewInvalidDecisionError(string(decision))
	}
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewApplicationNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("参加申請の処理に失敗しました: %w", err)
	}

	s.recorder.RecordApplicationDecision(string(decision))
	s.notifier.Notify(ctx, model.Notification{
		UserID:    applicantID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		ProjectID: p.ID,
	})

	slog.Info("application decided",
		slog.String("project_id", projectID),
		slog.String("user_id", applicantID),
		slog.String("decision", string(decision)),
	)
	return nil
}

// RemoveMember はメンバーをプロジェクトから外す。オーナーのみ実行でき、オーナー自身は外せない。
func (s *Service) RemoveMember(ctx context.Context, ownerID, projectID, memberID string) error {
	p, err := s.findOwned(ctx, ownerID, projectID)
	if err != nil {
		return err
	}
	if memberID == p.OwnerID {
		return model.NewValidationError("オーナーはプロジェクトから外せません")
	}
	if err := s.removeMember(ctx, projectID, memberID); err != nil {
		return err
	}

	slog.Info("member removed",
		slog.String("project_id", projectID),
		slog.String("user_id", memberID),
	)
	return nil
}

// Leave は呼び出し元ユーザーがプロジェクトから抜ける。オーナーは抜けられない。
func (s *Service) Leave(ctx context.Context, userID, projectID string) error {
	p, err := s.find(ctx, projectID)
	if err != nil {
		return err
	}
	if userID == p.OwnerID {
		return model.NewValidationError("オーナーはプロジェクトから抜けられません")
	}
	if err := s.removeMember(ctx, projectID, userID); err != nil {
		return err
	}

	slog.Info("member left",
		slog.String("project_id", projectID),
		slog.String("user_id", userID),
	)
	return nil
}

func (s *Service) removeMember(ctx context.Context, projectID, userID string) error {
	err := s.members.RemoveMember(ctx, projectID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewMemberNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("メンバーの削除に失敗しました: %w", err)
	}
	return nil
}

// username は通知文面用のユーザー名を返す。取得できない場合は汎用の表記にする。
func (s *Service) username(ctx context.Context, userID string) string {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil || u == nil {
		return "ユーザー"
	}
	return u.Username
}
