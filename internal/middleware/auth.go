// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/connectin/internal/auth"
	"github.com/hitoshi/connectin/internal/model"
)

// AccessTokenCookieName はOAuthリダイレクト時にアクセストークンを格納するCookie名。
const AccessTokenCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey     = contextKey("user_id")
	claimsContextKey     = contextKey("claims")
	cookieAuthContextKey = contextKey("cookie_auth")
)

// TokenAuthenticator はアクセストークンの検証に必要なインターフェース。
// auth.Serviceが満たす。
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// NewAuthMiddleware はアクセストークンを検証し、
// 認証済みユーザーIDとクレームをリクエストコンテキストに注入するミドルウェアを返す。
// トークンは Authorization: Bearer ヘッダー、access_token Cookie の順に探す。
// WebSocketのアップグレード要求に限り ?token= クエリも受け付ける。
func NewAuthMiddleware(authenticator TokenAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := tokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
					return
				}
				slog.Error("failed to authenticate token",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, claims.UserID())
			ctx = context.WithValue(ctx, claimsContextKey, claims)
			ctx = context.WithValue(ctx, cookieAuthContextKey, fromCookie)
			recordLogUserID(ctx, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenFromRequest はリクエストからアクセストークンを取り出す。
// 2番目の戻り値はCookieから取得した場合にtrueとなる。
func tokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token), false
		}
		return "", false
	}
	if c, err := r.Cookie(AccessTokenCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	// ブラウザのWebSocket APIはヘッダーを設定できないため
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token"), false
	}
	return "", false
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ClaimsFromContext はリクエストコンテキストからトークンのクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// AuthenticatedByCookie はaccess_token Cookieで認証されたリクエストかを返す。
func AuthenticatedByCookie(ctx context.Context) bool {
	v, _ := ctx.Value(cookieAuthContextKey).(bool)
	return v
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithClaims はコンテキストにクレームとユーザーIDを注入する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	return context.WithValue(ctx, userIDContextKey, claims.UserID())
}
