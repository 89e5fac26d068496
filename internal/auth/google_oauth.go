package auth

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/connectin/internal/model"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
// AuthURL, TokenURL, UserInfoURLは空ならGoogleの本番エンドポイントを使う。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	HTTPClient   *http.Client
}

// GoogleOAuthProvider はOpenID ConnectのuserinfoでGoogleアカウントを識別する。
type GoogleOAuthProvider struct {
	config GoogleOAuthConfig
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	config.AuthURL = cmp.Or(config.AuthURL, "https://accounts.google.com/o/oauth2/auth")
	config.TokenURL = cmp.Or(config.TokenURL, "https://oauth2.googleapis.com/token")
	config.UserInfoURL = cmp.Or(config.UserInfoURL, "https://www.googleapis.com/oauth2/v3/userinfo")
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &GoogleOAuthProvider{config: config}
}

func (p *GoogleOAuthProvider) Name() string { return model.ProviderGoogle }

// GetLoginURL はアカウント選択画面を出すGoogleの認可URLを返す。
// リフレッシュトークンは使わないのでofflineアクセスは要求しない。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.config.ClientID)
	q.Set("redirect_uri", p.config.RedirectURL)
	q.Set("scope", "openid email profile")
	q.Set("prompt", "select_account")
	q.Set("state", state)
	return p.config.AuthURL + "?" + q.Encode()
}

type googleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// userInfo はgoogleClaimsを共通のOAuthUserInfoに変換する。
// 未検証のメールアドレスは既存ユーザーとの突合に使えないため空にする。
func (c googleClaims) userInfo() *OAuthUserInfo {
	info := &OAuthUserInfo{
		Provider:       model.ProviderGoogle,
		ProviderUserID: c.Sub,
		Name:           c.Name,
		GivenName:      c.GivenName,
		FamilyName:     c.FamilyName,
		AvatarURL:      c.Picture,
	}
	if c.EmailVerified {
		info.Email = c.Email
	}
	if info.Name == "" {
		info.Name = strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	}
	return info
}

// ExchangeCode は認可コードをアクセストークンに交換し、userinfoを取得する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.config.ClientID)
	form.Set("client_secret", p.config.ClientSecret)
	form.Set("redirect_uri", p.config.RedirectURL)

	accessToken, err := exchangeToken(ctx, p.config.HTTPClient, p.config.TokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}

	var claims googleClaims
	if err := getJSON(ctx, p.config.HTTPClient, p.config.UserInfoURL, accessToken, &claims); err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("google userinfo: missing sub")
	}
	return claims.userInfo(), nil
}

var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
