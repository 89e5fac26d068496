// Package taxonomy はタグとスキルの管理を提供する。
// 両者は名前だけを持つ同一構造のため、1つのServiceをリポジトリごとに生成して使う。
package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

const maxNameLength = 50

// Service はタグまたはスキルのサービス層。
type Service struct {
	repo repository.TermRepository
	// ログ・エラーメッセージ用の種別名（"tag" / "skill"）
	kind string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TermRepository, kind string) *Service {
	return &Service{repo: repo, kind: kind}
}

// List は名前順の一覧を返す。prefixを指定すると前方一致で絞り込む。
func (s *Service) List(ctx context.Context, prefix string) ([]model.Term, error) {
	terms, err := s.repo.List(ctx, strings.TrimSpace(prefix))
	if err != nil {
		return nil, fmt.Errorf("%s一覧の取得に失敗しました: %w", s.kind, err)
	}
	if terms == nil {
		terms = []model.Term{}
	}
	return terms, nil
}

// Create は項目を作成する。同名（大文字小文字を区別しない）が存在する場合はDUPLICATE_NAMEを返す。
func (s *Service) Create(ctx context.Context, rawName string) (*model.Term, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return nil, model.NewValidationError("名前は必須です")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, model.NewValidationError(fmt.Sprintf("名前は%d文字以内で入力してください", maxNameLength))
	}

	existing, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%sの確認に失敗しました: %w", s.kind, err)
	}
	if existing != nil {
		return nil, model.NewDuplicateNameError(name)
	}

	term := &model.Term{ID: uuid.New().String(), Name: name}
	if err := s.repo.Create(ctx, term); err != nil {
		// 確認後に同名が作成された場合
		if repository.IsUniqueViolation(err) {
			return nil, model.NewDuplicateNameError(name)
		}
		return nil, fmt.Errorf("%sの作成に失敗しました: %w", s.kind, err)
	}

	slog.Info("term created",
		slog.String("kind", s.kind),
		slog.String("id", term.ID),
		slog.String("name", term.Name),
	)
	return term, nil
}
