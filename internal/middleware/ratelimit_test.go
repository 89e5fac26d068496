package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	return req.WithContext(context.WithValue(req.Context(), userIDContextKey, userID))
}

func loginRequestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func testConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    2,
		LoginRate:       0.1,
		LoginBurst:      1,
		CleanupInterval: time.Minute,
	}
}

func TestGeneralMiddleware_LimitsPerUser(t *testing.T) {
	rl := NewRateLimiter(testConfig())
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, requestAs("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestAs("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}

	// 別ユーザーには影響しない
	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestAs("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want 200", w.Code)
	}
	if n := rl.GeneralLimiterCount(); n != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", n)
	}
}

func TestGeneralMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testConfig())
	defer rl.Stop()

	w := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/projects", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginMiddleware_LimitsPerIP(t *testing.T) {
	rl := NewRateLimiter(testConfig())
	defer rl.Stop()
	h := rl.LoginMiddleware()(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, loginRequestFrom("203.0.113.5:50000"))
	if w.Code != http.StatusOK {
		t.Fatalf("first login status = %d, want 200", w.Code)
	}

	// ポートが異なっても同一IPとして扱う
	w = httptest.NewRecorder()
	h.ServeHTTP(w, loginRequestFrom("203.0.113.5:50001"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second login status = %d, want 429", w.Code)
	}
	if got, _ := strconv.Atoi(w.Header().Get("Retry-After")); got != 10 {
		t.Errorf("Retry-After = %d, want 10", got)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, loginRequestFrom("198.51.100.7:40000"))
	if w.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", w.Code)
	}
	if n := rl.LoginLimiterCount(); n != 2 {
		t.Errorf("LoginLimiterCount = %d, want 2", n)
	}
	if n := rl.GeneralLimiterCount(); n != 0 {
		t.Errorf("login must not touch general limiters, got %d", n)
	}
}

func TestRateLimitResponse_IsUnifiedJSON(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralRate: 1, GeneralBurst: 1, LoginRate: 1, LoginBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()
	h := rl.GeneralMiddleware()(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), requestAs("user-json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestAs("user-json"))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != "rate_limit_exceeded" || body.Message == "" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testConfig()
	cfg.CleanupInterval = 50 * time.Millisecond
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-cleanup"))
	rl.LoginMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), loginRequestFrom("192.0.2.1:1234"))
	if rl.GeneralLimiterCount() != 1 || rl.LoginLimiterCount() != 1 {
		t.Fatal("expected one entry in each limiter set")
	}

	// TTLはCleanupIntervalの2倍（100ms）
	time.Sleep(300 * time.Millisecond)

	if n := rl.GeneralLimiterCount(); n != 0 {
		t.Errorf("general entries after cleanup = %d, want 0", n)
	}
	if n := rl.LoginLimiterCount(); n != 0 {
		t.Errorf("login entries after cleanup = %d, want 0", n)
	}
}

func TestPerMinuteRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralRate != 2.0 || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.LoginBurst != 5 {
		t.Errorf("LoginBurst = %d, want 5", cfg.LoginBurst)
	}

	custom := PerMinuteRateLimiterConfig(60, 10)
	if custom.GeneralRate != 1.0 || custom.LoginBurst != 10 {
		t.Errorf("custom = %+v", custom)
	}
}
