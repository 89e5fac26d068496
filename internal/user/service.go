// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
	"github.com/hitoshi/connectin/internal/security"
	"github.com/hitoshi/connectin/internal/storage"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// 写真の種類
const (
	PhotoAvatar = "avatar"
	PhotoCover  = "cover"
)

// imageExtensions はアップロードを許可する画像形式と拡張子。
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Profile は公開プロフィール。
type Profile struct {
	User   *model.User
	Skills []model.Skill
}

// Service はユーザー管理のサービス層。
// プロフィール、スキル、写真、退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	skillRepo repository.TermRepository
	revoked   repository.RevokedTokenRepository
	store     storage.Storage
	guard     security.SSRFGuard
	maxUpload int64
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// storeがnilの場合、写真のアップロードはSTORAGE_UNAVAILABLEになる。
func NewService(
	userRepo repository.UserRepository,
	skillRepo repository.TermRepository,
	revoked repository.RevokedTokenRepository,
	store storage.Storage,
	guard security.SSRFGuard,
	maxUpload int64,
) *Service {
	return &Service{
		userRepo:  userRepo,
		skillRepo: skillRepo,
		revoked:   revoked,
		store:     store,
		guard:     guard,
		maxUpload: maxUpload,
		now:       time.Now,
	}
}

// Search はユーザー名の前方一致でユーザーを検索する。
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	users, err := s.userRepo.Search(ctx, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	return users, nil
}

// GetProfile はスキル付きの公開プロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	skills, err := s.userRepo.ListSkills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("スキルの取得に失敗しました: %w", err)
	}
	return &Profile{User: user, Skills: skills}, nil
}

// UpdateProfile はプロフィールを部分更新する。
// URL項目はSSRF検証を通過したもののみ受け付ける。空文字は項目の削除として扱う。
func (s *Service) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	for _, field := range []*string{update.GitHub, update.LinkedIn, update.AvatarURL, update.CoverPhotoURL} {
		if field == nil {
			continue
		}
		*field = strings.TrimSpace(*field)
		if *field == "" {
			continue
		}
		if err := s.guard.ValidateURL(*field); err != nil {
			return nil, urlError(err)
		}
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, update)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewUserNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return user, nil
}

// ReplaceSkills はユーザーのスキルを置き換え、更新後のスキル一覧を返す。
// 存在しないスキルIDは無視する。
func (s *Service) ReplaceSkills(ctx context.Context, userID string, skillIDs []string) ([]model.Skill, error) {
	existing, err := s.skillRepo.FilterExisting(ctx, skillIDs)
	if err != nil {
		return nil, fmt.Errorf("スキルの確認に失敗しました: %w", err)
	}
	if err := s.userRepo.ReplaceSkills(ctx, userID, existing); err != nil {
		return nil, fmt.Errorf("スキルの更新に失敗しました: %w", err)
	}
	skills, err := s.userRepo.ListSkills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("スキルの取得に失敗しました: %w", err)
	}
	return skills, nil
}

// UploadPhoto はアップロードされた画像を保存し、プロフィールのURLを更新する。
// contentTypeは呼び出し側で本文から判定したものを渡す。
func (s *Service) UploadPhoto(ctx context.Context, userID, kind string, r io.Reader, size int64, contentType string) (*model.User, error) {
	if kind != PhotoAvatar && kind != PhotoCover {
		return nil, model.NewValidationError("写真の種類は avatar または cover を指定してください")
	}
	if s.store == nil {
		return nil, model.NewStorageUnavailableError()
	}
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, model.NewUnsupportedMediaTypeError(contentType)
	}
	if size > s.maxUpload {
		return nil, model.NewValidationError(fmt.Sprintf("ファイルサイズは%dバイト以下にしてください", s.maxUpload))
	}

	key := fmt.Sprintf("users/%s/%s-%s%s", userID, kind, uuid.New().String(), ext)
	url, err := s.store.Put(ctx, key, r, storage.PutOptions{Size: size, ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("画像の保存に失敗しました: %w", err)
	}

	var update model.ProfileUpdate
	if kind == PhotoAvatar {
		update.AvatarURL = &url
	} else {
		update.CoverPhotoURL = &url
	}
	user, err := s.userRepo.UpdateProfile(ctx, userID, update)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewUserNotFoundError()
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("photo uploaded",
		slog.String("user_id", userID),
		slog.String("kind", kind),
		slog.String("key", key),
	)
	return user, nil
}

// ImportPhoto はURLの画像をSSRF防止付きクライアントで取得し、UploadPhotoと同様に保存する。
func (s *Service) ImportPhoto(ctx context.Context, userID, kind, rawURL string) (*model.User, error) {
	if kind != PhotoAvatar && kind != PhotoCover {
		return nil, model.NewValidationError("写真の種類は avatar または cover を指定してください")
	}
	if s.store == nil {
		return nil, model.NewStorageUnavailableError()
	}

	file, err := s.guard.FetchImage(ctx, strings.TrimSpace(rawURL), s.maxUpload)
	if err != nil {
		slog.Warn("photo import failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, urlError(err)
	}
	return s.UploadPhoto(ctx, userID, kind, bytes.NewReader(file.Data), int64(len(file.Data)), file.ContentType)
}

// Withdraw はユーザーの退会処理を実行する。
// 現在のアクセストークンを失効させてからユーザーを削除する。
// 所有データ（identities, projects, posts, todos等）はCASCADEで削除される。
func (s *Service) Withdraw(ctx context.Context, userID, jti string, expiresAt time.Time) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if jti != "" {
		err := s.revoked.Revoke(ctx, &model.RevokedToken{
			JTI:       jti,
			UserID:    userID,
			ExpiresAt: expiresAt,
			CreatedAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("トークンの失効に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("user withdrawn",
		slog.String("user_id", userID),
	)
	return nil
}

// urlError はSSRFGuardのエラーをAPIエラーに変換する。
func urlError(err error) error {
	switch {
	case errors.Is(err, security.ErrBlockedDestination):
		return model.NewSSRFBlockedError()
	case errors.Is(err, security.ErrTooLarge):
		return model.NewValidationError("画像のサイズが上限を超えています")
	case errors.Is(err, security.ErrFetchFailed):
		return model.NewInvalidURLError("画像を取得できませんでした")
	default:
		return model.NewInvalidURLError(err.Error())
	}
}
