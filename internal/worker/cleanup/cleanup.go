// Package cleanup は不要になったデータの定期削除ジョブを提供する。
// 期限切れの失効トークン、保持期間を過ぎた既読通知、古い参加申請を対象とする。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/connectin/internal/metrics"
)

// タスク名（メトリクスのラベルとログに使用する）
const (
	TaskRevokedTokens     = "revoked_tokens"
	TaskReadNotifications = "read_notifications"
	TaskStaleApplications = "stale_applications"
)

const (
	defaultNotificationRetentionDays = 30
	defaultApplicationRetentionDays  = 90
)

// RevokedTokenDeleter は期限切れの失効トークンを削除する。
type RevokedTokenDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ReadNotificationDeleter は指定日時より前の既読通知を削除する。
type ReadNotificationDeleter interface {
	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
}

// StaleApplicationDeleter は指定日時より前の参加申請を削除する。
type StaleApplicationDeleter interface {
	DeleteStaleApplications(ctx context.Context, before time.Time) (int64, error)
}

// Deps はCleanupJobの依存。
// Tokensがnilの場合（Redisで失効を管理する場合）はトークンの削除をスキップする。
type Deps struct {
	Tokens        RevokedTokenDeleter
	Notifications ReadNotificationDeleter
	Applications  StaleApplicationDeleter
	Recorder      metrics.Recorder
	Logger        *slog.Logger
}

// CleanupJob は保持期間を超過したデータの削除ジョブ。
// 各タスクは冪等で、1つが失敗しても残りのタスクは実行する。
type CleanupJob struct {
	tokens        RevokedTokenDeleter
	notifications ReadNotificationDeleter
	applications  StaleApplicationDeleter
	recorder      metrics.Recorder
	logger        *slog.Logger
	now           func() time.Time

	NotificationRetentionDays int // 既読通知の保持日数（デフォルト: 30）
	ApplicationRetentionDays  int // 参加申請の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(d Deps) *CleanupJob {
	rec := d.Recorder
	if rec == nil {
		rec = metrics.Nop{}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		tokens:                    d.Tokens,
		notifications:             d.Notifications,
		applications:              d.Applications,
		recorder:                  rec,
		logger:                    logger,
		now:                       time.Now,
		NotificationRetentionDays: defaultNotificationRetentionDays,
		ApplicationRetentionDays:  defaultApplicationRetentionDays,
	}
}

type task struct {
	name string
	run  func(ctx context.Context, now time.Time) (int64, error)
}

func (j *CleanupJob) tasks() []task {
	var tasks []task
	if j.tokens != nil {
		tasks = append(tasks, task{name: TaskRevokedTokens, run: j.tokens.DeleteExpired})
	}
	if j.notifications != nil {
		tasks = append(tasks, task{name: TaskReadNotifications, run: func(ctx context.Context, now time.Time) (int64, error) {
			return j.notifications.DeleteReadBefore(ctx, now.AddDate(0, 0, -j.NotificationRetentionDays))
		}})
	}
	if j.applications != nil {
		tasks = append(tasks, task{name: TaskStaleApplications, run: func(ctx context.Context, now time.Time) (int64, error) {
			return j.applications.DeleteStaleApplications(ctx, now.AddDate(0, 0, -j.ApplicationRetentionDays))
		}})
	}
	return tasks
}

// Run はすべてのクリーンアップタスクを順に実行する。
// 失敗したタスクのエラーはまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()

	var errs []error
	var total int64
	for _, t := range j.tasks() {
		deleted, err := t.run(ctx, now)
		if err != nil {
			j.logger.Error("クリーンアップタスクの実行に失敗しました",
				slog.String("task", t.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
			continue
		}
		j.recorder.RecordCleanup(t.name, deleted)
		total += deleted
		j.logger.Info("クリーンアップタスクが完了しました",
			slog.String("task", t.name),
			slog.Int64("deleted_count", deleted),
		)
	}

	j.logger.Info("cleanup finished",
		slog.Int64("deleted_count", total),
		slog.Int("failed_tasks", len(errs)),
		slog.Int("notification_retention_days", j.NotificationRetentionDays),
		slog.Int("application_retention_days", j.ApplicationRetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if len(errs) > 0 {
		return fmt.Errorf("クリーンアップの実行に失敗: %w", errors.Join(errs...))
	}
	return nil
}

// Start は起動直後に1回Runを実行し、以降はscheduleに従って定期実行する。
// ctxがキャンセルされると実行中のジョブの完了を待って戻る。
// scheduleは標準のcron式または @daily などの記述子。
func (j *CleanupJob) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { j.runLogged(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	j.runLogged(ctx)

	c.Start()
	j.logger.Info("cleanup scheduler started", slog.String("schedule", schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("cleanup scheduler stopped")
	return nil
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
