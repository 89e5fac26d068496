package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}
	return entry
}

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("application decided",
		slog.String("project_id", "p-1"),
		slog.String("applicant_id", "u-2"),
		slog.String("decision", "accept"),
	)

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "application decided" {
		t.Errorf("msg = %v, want %q", entry["msg"], "application decided")
	}
	if entry["project_id"] != "p-1" || entry["applicant_id"] != "u-2" || entry["decision"] != "accept" {
		t.Errorf("attributes = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_LevelField(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *slog.Logger)
		want string
	}{
		{name: "info", log: func(l *slog.Logger) { l.Info("x") }, want: "INFO"},
		{name: "warn", log: func(l *slog.Logger) { l.Warn("x") }, want: "WARN"},
		{name: "error", log: func(l *slog.Logger) { l.Error("x") }, want: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(Setup(&buf))

			entry := decodeEntry(t, &buf)
			if entry["level"] != tt.want {
				t.Errorf("level = %v, want %q", entry["level"], tt.want)
			}
		})
	}
}

func TestSetup_DebugIsSuppressed(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf).Debug("noisy")

	if buf.Len() != 0 {
		t.Errorf("expected no output for debug level, got %s", buf.String())
	}
}

func TestSetup_AddsTraceIDsFromContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	var buf bytes.Buffer
	Setup(&buf).With(slog.String("component", "chat")).InfoContext(ctx, "message sent")

	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
	if entry["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v", entry["span_id"])
	}
	if entry["component"] != "chat" {
		t.Errorf("component = %v, want attributes from With to be kept", entry["component"])
	}
}

func TestSetup_NoTraceIDsWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf).InfoContext(context.Background(), "no span")

	entry := decodeEntry(t, &buf)
	if _, ok := entry["trace_id"]; ok {
		t.Error("trace_id should be absent without an active span")
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := SetupDefault(&buf)

	slog.Default().Info("global test", slog.String("test_key", "test_val"))

	if l != slog.Default() {
		t.Error("SetupDefault should return the installed default logger")
	}
	entry := decodeEntry(t, &buf)
	if entry["msg"] != "global test" {
		t.Errorf("msg = %v, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %v, want %q", entry["test_key"], "test_val")
	}
}
