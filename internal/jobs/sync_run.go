package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// SyncTracker 维护 SyncRun 记录: 创建 running, 只关闭一次
type SyncTracker struct {
	runs  *repository.SyncRunRepository
	clock service.Clock
	log   *zap.Logger
}

func NewSyncTracker(runs *repository.SyncRunRepository, clock service.Clock) *SyncTracker {
	return &SyncTracker{runs: runs, clock: clock, log: logger.Named("sync-run")}
}

func (t *SyncTracker) start(ctx context.Context, syncType model.SyncType) (*model.SyncRun, error) {
	return t.runs.Start(ctx, syncType, t.clock.NowMs())
}

// finish 关闭运行记录; 任务 context 已超时也要写入
func (t *SyncTracker) finish(ctx context.Context, run *model.SyncRun, status model.SyncStatus, itemCount int64, summary string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var msg *string
	if summary != "" {
		msg = &summary
	}
	ok, err := t.runs.Finish(ctx, run.ID, status, &itemCount, msg, t.clock.NowMs())
	if err != nil {
		t.log.Error("failed to close sync run",
			zap.Int64("sync_run_id", run.ID),
			zap.String("type", string(run.Type)),
			zap.Error(err))
		return
	}
	if !ok {
		t.log.Warn("sync run already closed", zap.Int64("sync_run_id", run.ID))
		return
	}
	metrics.SyncRunsTotal.WithLabelValues(string(run.Type), string(status)).Inc()
}

// markSyncFailed 抓取阶段失败时调用
func (t *SyncTracker) markSyncFailed(ctx context.Context, run *model.SyncRun, cause error) {
	t.log.Error("sync failed",
		zap.Int64("sync_run_id", run.ID),
		zap.String("type", string(run.Type)),
		zap.Error(cause))
	t.finish(ctx, run, model.SyncStatusFailed, 0, cause.Error())
}

// tally 单次同步的记录计数
type tally struct {
	processed int
	errors    int
	skipped   int
}

func (c tally) summary() string {
	return fmt.Sprintf("Processed: %d, Errors: %d, Skipped: %d", c.processed, c.errors, c.skipped)
}

// message 只有出现错误或跳过时才写入运行记录
func (c tally) message() string {
	if c.errors == 0 && c.skipped == 0 {
		return ""
	}
	return c.summary()
}

// status 部分成功按完成记录; 零成功且有错误时记为失败
func (c tally) status() model.SyncStatus {
	if c.processed == 0 && c.errors > 0 {
		return model.SyncStatusFailed
	}
	return model.SyncStatusCompleted
}

func (c tally) record(syncType model.SyncType) {
	metrics.SyncRecordsTotal.WithLabelValues(string(syncType), "processed").Add(float64(c.processed))
	metrics.SyncRecordsTotal.WithLabelValues(string(syncType), "error").Add(float64(c.errors))
	metrics.SyncRecordsTotal.WithLabelValues(string(syncType), "skipped").Add(float64(c.skipped))
}
