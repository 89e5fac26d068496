package middleware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// serveLogged はhをロギングミドルウェア越しに実行し、出力されたログ1行を返す。
func serveLogged(t *testing.T, h http.Handler, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewLoggingMiddleware(logger)(h).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not a single JSON line: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestLoggingMiddleware_RequestFields(t *testing.T) {
	entry := serveLogged(t, statusHandler(http.StatusCreated), httptest.NewRequest(http.MethodPost, "/projects", nil))

	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["method"] != "POST" || entry["path"] != "/projects" {
		t.Errorf("method/path = %v %v", entry["method"], entry["path"])
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Errorf("status = %v, want 201", entry["status"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v", entry["duration_ms"])
	}
	for _, absent := range []string{"user_id", "trace_id", "route"} {
		if _, ok := entry[absent]; ok {
			t.Errorf("%s should be omitted, got %v", absent, entry[absent])
		}
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNoContent, "INFO"},
		{http.StatusBadRequest, "WARN"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			entry := serveLogged(t, statusHandler(tt.status), httptest.NewRequest(http.MethodGet, "/test", nil))

			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestLoggingMiddleware_ImplicitOKOnWrite(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
		w.WriteHeader(http.StatusTeapot)
	})

	entry := serveLogged(t, h, httptest.NewRequest(http.MethodGet, "/test", nil))

	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
}

func TestLoggingMiddleware_UserID(t *testing.T) {
	tests := []struct {
		name    string
		handler http.Handler
		prepare func(r *http.Request) *http.Request
		want    string
	}{
		{
			name:    "外側で設定済みのコンテキスト",
			handler: statusHandler(http.StatusOK),
			prepare: func(r *http.Request) *http.Request {
				return r.WithContext(context.WithValue(r.Context(), userIDContextKey, "user-123"))
			},
			want: "user-123",
		},
		{
			name:    "内側の認証ミドルウェア",
			handler: NewAuthMiddleware(acceptToken("good", "user-456"))(statusHandler(http.StatusOK)),
			prepare: func(r *http.Request) *http.Request {
				r.Header.Set("Authorization", "Bearer good")
				return r
			},
			want: "user-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.prepare(httptest.NewRequest(http.MethodGet, "/projects", nil))
			entry := serveLogged(t, tt.handler, req)

			if entry["user_id"] != tt.want {
				t.Errorf("user_id = %v, want %s", entry["user_id"], tt.want)
			}
		})
	}
}

func TestLoggingMiddleware_RoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))
	r.Get("/projects/{id}", statusHandler(http.StatusOK).ServeHTTP)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/projects/abc", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log: %v\nraw: %s", err, buf.String())
	}

	if entry["route"] != "/projects/{id}" {
		t.Errorf("route = %v, want /projects/{id}", entry["route"])
	}
	if entry["path"] != "/projects/abc" {
		t.Errorf("path = %v", entry["path"])
	}
}

func TestLoggingMiddleware_TraceCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "/projects", nil).WithContext(ctx)
	entry := serveLogged(t, statusHandler(http.StatusOK), req)

	sc := span.SpanContext()
	if entry["trace_id"] != sc.TraceID().String() {
		t.Errorf("trace_id = %v, want %s", entry["trace_id"], sc.TraceID())
	}
	if entry["span_id"] != sc.SpanID().String() {
		t.Errorf("span_id = %v, want %s", entry["span_id"], sc.SpanID())
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestLoggingMiddleware_SupportsHijack(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer should implement http.Hijacker")
		}
		_, _, _ = hj.Hijack()
	}))

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats/ws/x", nil))

	if !rec.hijacked {
		t.Error("Hijack should be delegated to the underlying writer")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log: %v", err)
	}
	if entry["status"] != float64(http.StatusSwitchingProtocols) {
		t.Errorf("status = %v, want 101", entry["status"])
	}
}
