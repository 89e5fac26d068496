// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/connectin/internal/auth"
	"github.com/hitoshi/connectin/internal/metrics"
	"github.com/hitoshi/connectin/internal/middleware"
	"github.com/hitoshi/connectin/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*auth.TokenPair, error)
	Me(ctx context.Context, userID string) (*model.User, error)
	Identities(ctx context.Context, userID string) ([]model.Identity, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	HasProvider(name string) bool
	GetLoginURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (*auth.TokenPair, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はローカル認証とOAuth認証のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder metrics.Recorder
}

// NewAuthHandler はAuthHandlerを生成する。recがnilの場合はメトリクスを記録しない。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, rec metrics.Recorder) *AuthHandler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: rec,
	}
}

// registerRequest はローカル登録リクエストのボディ。
type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenPairResponse はログイン成功時のレスポンス。
type tokenPairResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        userResponse `json:"user"`
}

// Register はローカルパスワードでユーザーを登録する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.recorder.RecordAuthEvent("register", "failure")
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordAuthEvent("register", "success")
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login はユーザー名とパスワードで認証し、アクセストークンを返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.recorder.RecordAuthEvent("login", "failure")
		handleServiceError(w, err)
		return
	}

	h.recorder.RecordAuthEvent("login", "success")
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   pair.ExpiresIn,
		User:        toUserResponse(pair.User),
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Identities は現在のユーザーに紐付いたIdPを返す。
// GET /auth/me/identities
func (h *AuthHandler) Identities(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	identities, err := h.service.Identities(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]identityResponse, 0, len(identities))
	for _, id := range identities {
		out = append(out, identityResponse{Provider: id.Provider, LinkedAt: id.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// Logout はアクセストークンを失効させ、Cookieを削除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		handleServiceError(w, err)
		return
	}

	h.setAccessTokenCookie(w, "", -1)
	h.recorder.RecordAuthEvent("logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

// OAuthLogin はOAuthフローを開始するハンドラーを返す。
// GET /auth/{provider}/login
func (h *AuthHandler) OAuthLogin(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := generateState()
		if err != nil {
			slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
			handleServiceError(w, err)
			return
		}

		url, err := h.service.GetLoginURL(provider, state)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		// stateをCookieに保存（CSRF対策）
		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     "/",
			MaxAge:   600, // 10分
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	}
}

// OAuthCallback はOAuthコールバックを処理するハンドラーを返す。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 1. stateの検証（CSRF対策）
		state := r.URL.Query().Get("state")
		stateCookie, err := r.Cookie(oauthStateCookie)
		if err != nil || state == "" || stateCookie.Value != state {
			slog.Warn("oauth state mismatch",
				slog.String("provider", provider),
				slog.String("query_state", state),
			)
			h.recorder.RecordAuthEvent("oauth_"+provider, "failure")
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("stateパラメータが一致しません"))
			return
		}

		// stateクッキーを削除
		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		// 2. 認可コードの取得
		code := r.URL.Query().Get("code")
		if code == "" {
			h.recorder.RecordAuthEvent("oauth_"+provider, "failure")
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("認可コードがありません"))
			return
		}

		// 3. 認証処理
		pair, err := h.service.HandleCallback(r.Context(), provider, code)
		if err != nil {
			slog.Error("oauth callback failed",
				slog.String("provider", provider),
				slog.String("error", err.Error()),
			)
			h.recorder.RecordAuthEvent("oauth_"+provider, "failure")
			handleServiceError(w, err)
			return
		}

		// 4. アクセストークンをCookieに設定してフロントエンドにリダイレクト
		h.setAccessTokenCookie(w, pair.AccessToken, pair.ExpiresIn)
		h.recorder.RecordAuthEvent("oauth_"+provider, "success")
		http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
	}
}

// setAccessTokenCookie はaccess_token Cookieを設定する。maxAgeが負の場合は削除する。
func (h *AuthHandler) setAccessTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
