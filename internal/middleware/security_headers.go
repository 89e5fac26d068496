package middleware

import "net/http"

// hstsValue は1年間HTTPSを強制する。サブドメインは対象外。
const hstsValue = "max-age=31536000"

// SecurityHeadersConfig はセキュリティヘッダーの設定。
type SecurityHeadersConfig struct {
	// HSTS はStrict-Transport-Securityを付与する。HTTPSで公開する場合のみ有効にする。
	HSTS bool
}

// NewSecurityHeadersMiddleware はJSON APIとして安全なレスポンスヘッダーを付与するミドルウェアを返す。
// APIはHTML・スクリプトを返さないため、CSPで全リソースの読み込みとフレーム埋め込みを禁止する。
// 認証情報を含み得るためレスポンスはキャッシュさせない。
func NewSecurityHeadersMiddleware(config SecurityHeadersConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			if config.HSTS {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			next.ServeHTTP(w, r)
		})
	}
}
