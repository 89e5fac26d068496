package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

const (
	maxUsernameBaseLen  = 40
	maxUsernameAttempts = 1000
	fallbackUsername    = "user"
)

// reconcile はIdPのユーザー情報を既存ユーザーに突き合わせる。
// identity、メールアドレスの順に検索し、見つからなければユーザーとidentityを作成する。
func (s *Service) reconcile(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User
	if identity != nil {
		user, err = s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
	}

	if user == nil {
		user, err = s.userRepo.FindByEmail(ctx, info.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to find user by email: %w", err)
		}
		if user != nil {
			// メールアドレスで一致した既存ユーザーにIdPを紐付ける
			linked, err := s.identRepo.Link(ctx, &model.Identity{
				ID:             uuid.New().String(),
				UserID:         user.ID,
				Provider:       info.Provider,
				ProviderUserID: info.ProviderUserID,
				CreatedAt:      s.now(),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to link identity: %w", err)
			}
			if linked {
				slog.Info("identity linked",
					slog.String("user_id", user.ID),
					slog.String("provider", info.Provider),
				)
			}
		}
	}

	if user != nil {
		if err := s.backfill(ctx, user, info); err != nil {
			return nil, err
		}
		return user, nil
	}

	return s.createOAuthUser(ctx, info)
}

// backfill は既存ユーザーの空のプロフィール項目をIdPの情報で埋める。
func (s *Service) backfill(ctx context.Context, user *model.User, info *OAuthUserInfo) error {
	var fill model.ProfileUpdate
	switch info.Provider {
	case model.ProviderGitHub:
		if user.GitHub == "" && info.ProfileURL != "" {
			fill.GitHub = &info.ProfileURL
			user.GitHub = info.ProfileURL
		}
	case model.ProviderGoogle:
		if user.FirstName == "" && info.GivenName != "" {
			fill.FirstName = &info.GivenName
			user.FirstName = info.GivenName
		}
		if user.LastName == "" && info.FamilyName != "" {
			fill.LastName = &info.FamilyName
			user.LastName = info.FamilyName
		}
		if user.AvatarURL == "" && info.AvatarURL != "" {
			fill.AvatarURL = &info.AvatarURL
			user.AvatarURL = info.AvatarURL
		}
	}
	if err := s.userRepo.BackfillProfile(ctx, user.ID, fill); err != nil {
		return fmt.Errorf("failed to backfill profile: %w", err)
	}
	return nil
}

// createOAuthUser はパスワードなしのユーザーとidentityを作成する。
func (s *Service) createOAuthUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	username, err := s.uniqueUsername(ctx, usernameBase(info))
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     info.Email,
		AvatarURL: info.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch info.Provider {
	case model.ProviderGoogle:
		user.FirstName = info.GivenName
		user.LastName = info.FamilyName
	case model.ProviderGitHub:
		user.GitHub = info.ProfileURL
	}

	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewDuplicateUserError("username/email")
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("provider", info.Provider),
	)
	return user, nil
}

// uniqueUsername は base, base_1, base_2, ... の順に未使用のユーザー名を探す。
func (s *Service) uniqueUsername(ctx context.Context, base string) (string, error) {
	for i := 0; i < maxUsernameAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = base + "_" + strconv.Itoa(i)
		}
		taken, err := s.userRepo.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no available username for base %q after %d attempts", base, maxUsernameAttempts)
}

// usernameBase はIdPの情報からユーザー名の候補を作る。
// Googleは表示名（空白を_に置換）、GitHubはlogin、いずれもなければメールのローカル部を使う。
func usernameBase(info *OAuthUserInfo) string {
	var raw string
	switch info.Provider {
	case model.ProviderGoogle:
		raw = strings.ReplaceAll(strings.TrimSpace(info.Name), " ", "_")
	case model.ProviderGitHub:
		raw = info.Login
	}
	if raw == "" {
		raw, _, _ = strings.Cut(info.Email, "@")
	}

	base := sanitizeUsername(raw)
	if len(base) < 3 {
		base = fallbackUsername + base
	}
	return base
}

// sanitizeUsername はユーザー名に使えない文字を取り除き、最大長に切り詰める。
func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= maxUsernameBaseLen {
			break
		}
	}
	return b.String()
}
