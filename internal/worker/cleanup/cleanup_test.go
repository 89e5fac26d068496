package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hitoshi/connectin/internal/metrics"
)

var fixedNow = time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)

type fakeTokens struct {
	got     time.Time
	deleted int64
	err     error
}

func (f *fakeTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.got = now
	return f.deleted, f.err
}

type fakeNotifications struct {
	got     time.Time
	deleted int64
	err     error
}

func (f *fakeNotifications) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	f.got = before
	return f.deleted, f.err
}

type fakeApplications struct {
	mu      sync.Mutex
	calls   int
	got     time.Time
	deleted int64
	err     error
}

func (f *fakeApplications) DeleteStaleApplications(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = before
	return f.deleted, f.err
}

func (f *fakeApplications) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestJob(d Deps) *CleanupJob {
	job := NewCleanupJob(d)
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestNewCleanupJob_Defaults(t *testing.T) {
	job := NewCleanupJob(Deps{})

	if job.NotificationRetentionDays != 30 {
		t.Errorf("NotificationRetentionDays = %d, want 30", job.NotificationRetentionDays)
	}
	if job.ApplicationRetentionDays != 90 {
		t.Errorf("ApplicationRetentionDays = %d, want 90", job.ApplicationRetentionDays)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Run() with no tasks should succeed, got %v", err)
	}
}

func TestRun_UsesRetentionCutoffs(t *testing.T) {
	tokens := &fakeTokens{deleted: 3}
	notifications := &fakeNotifications{deleted: 5}
	applications := &fakeApplications{deleted: 2}

	var buf bytes.Buffer
	job := newTestJob(Deps{
		Tokens:        tokens,
		Notifications: notifications,
		Applications:  applications,
		Logger:        newTestLogger(&buf),
	})
	job.NotificationRetentionDays = 7

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !tokens.got.Equal(fixedNow) {
		t.Errorf("tokens cutoff = %v, want now %v", tokens.got, fixedNow)
	}
	if want := fixedNow.AddDate(0, 0, -7); !notifications.got.Equal(want) {
		t.Errorf("notifications cutoff = %v, want %v", notifications.got, want)
	}
	if want := fixedNow.AddDate(0, 0, -90); !applications.got.Equal(want) {
		t.Errorf("applications cutoff = %v, want %v", applications.got, want)
	}
}

func TestRun_SkipsTokensWhenNotConfigured(t *testing.T) {
	applications := &fakeApplications{}
	job := newTestJob(Deps{Applications: applications, Logger: newTestLogger(&bytes.Buffer{})})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if applications.callCount() != 1 {
		t.Errorf("applications called %d times, want 1", applications.callCount())
	}
}

func TestRun_ContinuesAfterTaskFailure(t *testing.T) {
	dbErr := errors.New("connection reset")
	tokens := &fakeTokens{err: dbErr}
	applications := &fakeApplications{deleted: 1}

	var buf bytes.Buffer
	job := newTestJob(Deps{
		Tokens:       tokens,
		Applications: applications,
		Logger:       newTestLogger(&buf),
	})

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should return an error when a task fails")
	}
	if !errors.Is(err, dbErr) {
		t.Errorf("error should wrap the task error, got %v", err)
	}
	if !strings.Contains(err.Error(), TaskRevokedTokens) {
		t.Errorf("error %q should name the failed task", err.Error())
	}
	if applications.callCount() != 1 {
		t.Error("remaining tasks should still run after a failure")
	}
	if !strings.Contains(buf.String(), "connection reset") {
		t.Errorf("expected failure to be logged, got %s", buf.String())
	}
}

func TestRun_LogsSummary(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(Deps{
		Tokens:        &fakeTokens{deleted: 2},
		Notifications: &fakeNotifications{deleted: 4},
		Logger:        newTestLogger(&buf),
	})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var summary map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		if entry["msg"] == "cleanup finished" {
			summary = entry
		}
	}
	if summary == nil {
		t.Fatalf("summary log not found in %s", buf.String())
	}
	if summary["deleted_count"] != float64(6) {
		t.Errorf("deleted_count = %v, want 6", summary["deleted_count"])
	}
	if summary["failed_tasks"] != float64(0) {
		t.Errorf("failed_tasks = %v, want 0", summary["failed_tasks"])
	}
}

func TestRun_RecordsMetricsPerTask(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	job := newTestJob(Deps{
		Tokens:        &fakeTokens{deleted: 3},
		Notifications: &fakeNotifications{deleted: 5},
		Recorder:      collector,
		Logger:        newTestLogger(&bytes.Buffer{}),
	})

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	count, err := testutil.GatherAndCount(reg, "connectin_cleanup_deleted_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("series count = %d, want 2 (one per task)", count)
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	job := newTestJob(Deps{Logger: newTestLogger(&bytes.Buffer{})})

	err := job.Start(context.Background(), "not a schedule")
	if err == nil {
		t.Fatal("Start() should reject an invalid schedule")
	}
}

func TestStart_RunsOnceImmediatelyAndStopsOnCancel(t *testing.T) {
	applications := &fakeApplications{}
	job := newTestJob(Deps{Applications: applications, Logger: newTestLogger(&bytes.Buffer{})})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Start(ctx, "@daily") }()

	deadline := time.After(2 * time.Second)
	for applications.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup did not run at start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
