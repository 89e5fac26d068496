package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/connectin/internal/model"
)

const (
	// フロントエンドのJavaScriptが読めるようHttpOnlyにしない
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 24 * 60 * 60
	csrfTokenBytes   = 32
)

// CSRFConfig はCSRFトークンCookieの属性。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

func (c CSRFConfig) cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// issue は既存のトークンCookieがあればその値を返す。
// なければ新しいトークンを生成してCookieに設定する。
func (c CSRFConfig) issue(w http.ResponseWriter, r *http.Request) (string, error) {
	if existing, err := r.Cookie(csrfCookieName); err == nil && existing.Value != "" {
		return existing.Value, nil
	}
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	http.SetCookie(w, c.cookie(token))
	return token, nil
}

// verifyCSRF はダブルサブミットの検証に失敗した理由を返す。成功時は空文字列。
func verifyCSRF(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF対策ミドルウェアを返す。
//
// GET/HEAD/OPTIONSではトークンCookieを発行するだけで検証しない。
// 状態を変更するメソッドは、access_token Cookieで認証されたリクエストに限り
// X-CSRF-TokenヘッダーとCookieの一致を要求する。Authorizationヘッダーでの
// 認証はブラウザが自動送信しないので検証しない。認証ミドルウェアの後に置くこと。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if _, err := config.issue(w, r); err != nil {
					slog.ErrorContext(r.Context(), "failed to generate CSRF token", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			if AuthenticatedByCookie(r.Context()) {
				if reason := verifyCSRF(r); reason != "" {
					slog.WarnContext(r.Context(), "CSRF validation failed",
						slog.String("reason", reason),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("CSRFトークンの検証に失敗しました"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler は GET /csrf-token のハンドラーを返す。
// レスポンスは {"token": "..."}。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := config.issue(w, r)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to generate CSRF token", slog.String("error", err.Error()))
			WriteInternalServerError(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
}
