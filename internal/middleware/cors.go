package middleware

import (
	"net/http"

	"github.com/hitoshi/connectin/internal/model"
)

// CORSで許可するメソッドとヘッダー
const (
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, Authorization, X-CSRF-Token"
	corsExposeHeaders = "Retry-After"
	corsMaxAge        = "86400"
)

// NewCORSMiddleware はフロントエンドのオリジンからのクロスオリジンリクエストを許可するミドルウェアを返す。
// credentials送信と共存するため、ワイルドカード(*)は使用せず、Originが一致した場合のみ許可ヘッダーを返す。
// Originヘッダーのないリクエスト（同一オリジン、サーバー間通信）はそのまま通す。
// OPTIONSプリフライトには許可オリジンなら204、それ以外は403で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			allowed := origin != "" && origin == allowedOrigin
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("許可されていないオリジンです"))
					return
				}
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
