// Package auth はローカル認証、OAuth認証フロー、アクセストークン管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

// TokenType はレスポンスに含めるトークン種別。
const TokenType = "bearer"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,50}$`)

// TokenPair はログイン成功時に返すアクセストークンとユーザー。
type TokenPair struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	User        *model.User
	Claims      *Claims
}

// RegisterInput はローカル登録の入力。
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	identRepo repository.IdentityRepository
	revoked   repository.RevokedTokenRepository
	tokens    *TokenIssuer
	providers map[string]OAuthProvider
	now       func() time.Time
}

// NewService はServiceを生成する。
// providersには設定済みのOAuthプロバイダーのみを渡す。
func NewService(
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	revoked repository.RevokedTokenRepository,
	tokens *TokenIssuer,
	providers ...OAuthProvider,
) *Service {
	m := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{
		userRepo:  userRepo,
		identRepo: identRepo,
		revoked:   revoked,
		tokens:    tokens,
		providers: m,
		now:       time.Now,
	}
}

// Register はローカルパスワードでユーザーを登録する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if !usernamePattern.MatchString(in.Username) {
		return nil, model.NewValidationError("ユーザー名は3〜50文字の英数字と _ . - で入力してください")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return nil, model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if utf8.RuneCountInString(in.Password) < 8 {
		return nil, model.NewValidationError("パスワードは8文字以上で入力してください")
	}
	if len(in.Password) > 72 {
		return nil, model.NewValidationError("パスワードは72バイト以内で入力してください")
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUserError("email")
	}
	taken, err := s.userRepo.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return nil, model.NewDuplicateUserError("username")
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:             uuid.New().String(),
		Username:       in.Username,
		Email:          in.Email,
		HashedPassword: hashed,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewDuplicateUserError("username/email")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.String("provider", "local"),
	)
	return user, nil
}

// Login はユーザー名とパスワードで認証し、アクセストークンを発行する。
// 未登録・パスワード未設定・不一致はいずれも同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(user.HashedPassword, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	s.touch(ctx, user)
	return s.issue(user)
}

// Me は現在のユーザーを返す。
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// Identities はユーザーに紐付いている外部IdPの一覧を返す。
func (s *Service) Identities(ctx context.Context, userID string) ([]model.Identity, error) {
	identities, err := s.identRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("IdP紐付けの取得に失敗: %w", err)
	}
	return identities, nil
}

// Logout はトークンのjtiを有効期限まで失効させる。
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return model.NewUnauthorizedError()
	}
	expiresAt := s.now().Add(s.tokens.TTL())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	err := s.revoked.Revoke(ctx, &model.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.UserID(),
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	slog.Info("user logged out", slog.String("user_id", claims.UserID()))
	return nil
}

// Authenticate はアクセストークンを検証し、失効済みでなければクレームを返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, model.NewInvalidTokenError()
	}
	return claims, nil
}

// HasProvider はOAuthプロバイダーが設定されているかを返す。
func (s *Service) HasProvider(name string) bool {
	_, ok := s.providers[name]
	return ok
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("oauth provider not configured: %s", provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、アクセストークンを発行する。
// 既存ユーザーはidentityまたはメールアドレスで特定し、見つからなければ新規作成する。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (*TokenPair, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("oauth provider not configured: %s", provider)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	if info.Email == "" {
		return nil, model.NewOAuthEmailMissingError(provider)
	}

	// 2. 既存ユーザーとの突き合わせ
	user, err := s.reconcile(ctx, info)
	if err != nil {
		return nil, err
	}

	slog.Info("oauth login",
		slog.String("user_id", user.ID),
		slog.String("provider", provider),
	)

	// 3. アクセストークンを発行
	s.touch(ctx, user)
	return s.issue(user)
}

func (s *Service) issue(user *model.User) (*TokenPair, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		User:        user,
		Claims:      claims,
	}, nil
}

// touch は最終アクティブ日時を更新する。失敗してもログインは継続する。
func (s *Service) touch(ctx context.Context, user *model.User) {
	now := s.now()
	if err := s.userRepo.TouchLastActive(ctx, user.ID, now); err != nil {
		slog.Warn("failed to update last active",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	user.LastActive = &now
}
