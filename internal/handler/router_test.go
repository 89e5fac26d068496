package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/connectin/internal/auth"
	"github.com/hitoshi/connectin/internal/metrics"
	"github.com/hitoshi/connectin/internal/middleware"
	"github.com/hitoshi/connectin/internal/model"
)

const routerTestToken = "valid-token"

// routerAuthenticator はrouterTestTokenのみを受け付けるTokenAuthenticator。
type routerAuthenticator struct{}

func (routerAuthenticator) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	if token != routerTestToken {
		return nil, model.NewInvalidTokenError()
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: testUserID, ID: "jti-router"}}, nil
}

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
// OAuthプロバイダーはgoogleのみ設定済みとする。
func createTestRouter(t *testing.T) (http.Handler, *prometheus.Registry) {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	deps := &RouterDeps{
		Authenticator:  routerAuthenticator{},
		RateLimiter:    rl,
		CSRFConfig:     middleware.CSRFConfig{CookieSecure: false},
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		DB:             fakePinger{},

		AuthService: &mockAuthService{providers: map[string]bool{model.ProviderGoogle: true}},
		AuthConfig:  AuthHandlerConfig{FrontendURL: "http://localhost:3000"},

		UserService:   &mockUserService{},
		MaxUploadSize: 1 << 20,

		ProjectService:      &mockProjectService{},
		TeamService:         &mockTeamService{},
		PostService:         &mockPostService{},
		TagService:          &mockTermService{},
		SkillService:        &mockTermService{},
		TodoService:         &mockTodoService{},
		NotificationService: &mockNotificationService{},

		ChatService: &mockChatService{},
		ChatHub:     &fakeChatHub{},
		Upgrader:    &websocket.Upgrader{},
	}

	return NewRouter(deps), reg
}

func bearer(r *http.Request) *http.Request {
	r.Header.Set("Authorization", "Bearer "+routerTestToken)
	return r
}

func TestNewRouter_PublicEndpoints(t *testing.T) {
	router, _ := createTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "ヘルスチェック", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "メトリクス", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "CSRFトークン", method: http.MethodGet, path: "/csrf-token", wantStatus: http.StatusOK},
		{name: "設定済みプロバイダーのOAuthログイン", method: http.MethodGet, path: "/auth/google/login", wantStatus: http.StatusTemporaryRedirect},
		{name: "未設定プロバイダーのOAuthログイン", method: http.MethodGet, path: "/auth/github/login", wantStatus: http.StatusNotFound},
		{name: "存在しないパス", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
		{name: "プロジェクト一覧", method: http.MethodGet, path: "/projects", wantStatus: http.StatusOK},
		{name: "プロジェクト詳細はハンドラーまで届く", method: http.MethodGet, path: "/projects/" + testProjectID, wantStatus: http.StatusNotFound},
		{name: "プロジェクトのコメント一覧", method: http.MethodGet, path: "/projects/" + testProjectID + "/comments", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assertStatus(t, w, tt.wantStatus)
		})
	}
}

func TestNewRouter_LoginDoesNotRequireAuth(t *testing.T) {
	router, _ := createTestRouter(t)

	req := jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "wrong"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	// 認証ミドルウェアを通らずにハンドラーが資格情報エラーを返す
	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, model.ErrCodeInvalidCredentials)
}

func TestNewRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router, _ := createTestRouter(t)

	paths := []string{"/auth/me", "/users", "/projects/my", "/projects/" + testProjectID + "/members", "/teams", "/posts", "/tags", "/skills", "/todos", "/chats", "/notifications"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assertStatus(t, w, http.StatusUnauthorized)
		})
	}
}

func TestNewRouter_ProtectedRoutesWithToken(t *testing.T) {
	router, _ := createTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "自分の情報", method: http.MethodGet, path: "/auth/me", wantStatus: http.StatusOK},
		{name: "自分のプロジェクトは/{id}より優先", method: http.MethodGet, path: "/projects/my", wantStatus: http.StatusOK},
		{name: "プロジェクト一覧", method: http.MethodGet, path: "/projects", wantStatus: http.StatusOK},
		{name: "UUIDでないプロジェクトID", method: http.MethodGet, path: "/projects/abc", wantStatus: http.StatusNotFound},
		{name: "タグ一覧", method: http.MethodGet, path: "/tags", wantStatus: http.StatusOK},
		{name: "通知一覧", method: http.MethodGet, path: "/notifications", wantStatus: http.StatusOK},
		{name: "会話一覧", method: http.MethodGet, path: "/chats", wantStatus: http.StatusOK},
		{name: "TODO一覧", method: http.MethodGet, path: "/todos", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bearer(httptest.NewRequest(tt.method, tt.path, nil))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assertStatus(t, w, tt.wantStatus)
		})
	}
}

func TestNewRouter_CookieAuthRequiresCSRFToken(t *testing.T) {
	router, _ := createTestRouter(t)

	body := map[string]string{"content": "hello"}

	t.Run("CSRFトークンなし", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/posts", body)
		req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookieName, Value: routerTestToken})
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assertStatus(t, w, http.StatusForbidden)
	})

	t.Run("CSRFトークンあり", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/posts", body)
		req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookieName, Value: routerTestToken})
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
		req.Header.Set("X-CSRF-Token", "tok")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assertStatus(t, w, http.StatusCreated)
	})

	t.Run("Bearer認証はCSRF検証の対象外", func(t *testing.T) {
		req := bearer(jsonRequest(t, http.MethodPost, "/posts", body))
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assertStatus(t, w, http.StatusCreated)
	})
}

func TestNewRouter_SecurityHeadersApplied(t *testing.T) {
	router, _ := createTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
}

func TestNewRouter_RecordsRoutePatternMetrics(t *testing.T) {
	router, _ := createTestRouter(t)

	req := bearer(httptest.NewRequest(http.MethodGet, "/projects/"+testProjectID+"/comments", nil))
	router.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	if !strings.Contains(body, `route="/projects/{id}/comments"`) {
		t.Errorf("metrics should label requests with the route pattern, got:\n%s", body)
	}
	if strings.Contains(body, testProjectID) {
		t.Error("metrics should not contain raw path parameters")
	}
}
