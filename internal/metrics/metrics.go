// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// サービス層、ワーカー、チャットハブから利用する。
type Recorder interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordAuthEvent(event, result string)
	RecordApplicationDecision(decision string)
	RecordChatMessage(channel string)
	ChatConnectionOpened()
	ChatConnectionClosed()
	RecordCleanup(task string, deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	authEvents   *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	chatMessages *prometheus.CounterVec
	chatConns    prometheus.Gauge
	cleanup      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectin_http_requests_total",
			Help: "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connectin_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectin_auth_events_total",
			Help: "認証イベント（login, register, oauth等）の結果別件数",
		}, []string{"event", "result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectin_application_decisions_total",
			Help: "参加申請に対する判断の件数",
		}, []string{"decision"}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectin_chat_messages_total",
			Help: "送信経路別のチャットメッセージ数",
		}, []string{"channel"}),
		chatConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connectin_chat_connections",
			Help: "接続中のWebSocketクライアント数",
		}),
		cleanup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectin_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除したレコード数",
		}, []string{"task"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.authEvents,
		c.decisions,
		c.chatMessages,
		c.chatConns,
		c.cleanup,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event, result string) {
	c.authEvents.WithLabelValues(event, result).Inc()
}

// RecordApplicationDecision は参加申請の判断を記録する。
func (c *Collector) RecordApplicationDecision(decision string) {
	c.decisions.WithLabelValues(decision).Inc()
}

// RecordChatMessage はチャットメッセージの送信を記録する。
func (c *Collector) RecordChatMessage(channel string) {
	c.chatMessages.WithLabelValues(channel).Inc()
}

// ChatConnectionOpened はWebSocket接続数を1増やす。
func (c *Collector) ChatConnectionOpened() {
	c.chatConns.Inc()
}

// ChatConnectionClosed はWebSocket接続数を1減らす。
func (c *Collector) ChatConnectionClosed() {
	c.chatConns.Dec()
}

// RecordCleanup はクリーンアップの削除件数を記録する。
func (c *Collector) RecordCleanup(task string, deleted int64) {
	c.cleanup.WithLabelValues(task).Add(float64(deleted))
}

// Nop は何も記録しないRecorder。メトリクスを使わないテストや構成で使用する。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordAuthEvent(string, string)                       {}
func (Nop) RecordApplicationDecision(string)                     {}
func (Nop) RecordChatMessage(string)                             {}
func (Nop) ChatConnectionOpened()                                {}
func (Nop) ChatConnectionClosed()                                {}
func (Nop) RecordCleanup(string, int64)                          {}

// Middleware はリクエストごとにルートパターン単位でメトリクスを記録するミドルウェアを返す。
// ルートパターンを使うことでパスパラメータによるラベルの爆発を防ぐ。
func Middleware(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			rec.RecordHTTPRequest(r.Method, route, sw.status, time.Since(start))
		})
	}
}

// statusWriter はステータスコードを記録するResponseWriterラッパー。
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack はWebSocketのアップグレードのために元のResponseWriterのHijackを呼ぶ。
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap はhttp.ResponseControllerのために元のResponseWriterを返す。
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
