package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// ActivityCleanupJob 分批删除保留期之外的成交、同步记录和任务执行记录
//
// 每次调用每张表最多删除一批; 任一表满批说明还有剩余, 通过 Deferrer
// 排期下一次续跑, 续跑次数达到上限后只告警不再排期.
type ActivityCleanupJob struct {
	scheduler.BaseJob
	activities *repository.ActivityRepository
	syncRuns   *repository.SyncRunRepository
	executions *repository.ExecutionRepository
	deferrer   Deferrer
	clock      service.Clock
	cfg        SyncConfig
	log        *zap.Logger
}

// NewActivityCleanupJob 创建清理任务
func NewActivityCleanupJob(
	activities *repository.ActivityRepository,
	syncRuns *repository.SyncRunRepository,
	executions *repository.ExecutionRepository,
	deferrer Deferrer,
	clock service.Clock,
	cfg SyncConfig,
) *ActivityCleanupJob {
	def := scheduler.DefaultJobConfigs[scheduler.JobNameActivityCleanup]
	return &ActivityCleanupJob{
		BaseJob:    scheduler.NewBaseJob(scheduler.JobNameActivityCleanup, def.Timeout, def.LockTTL, def.UseWatchdog),
		activities: activities,
		syncRuns:   syncRuns,
		executions: executions,
		deferrer:   deferrer,
		clock:      clock,
		cfg:        cfg.WithDefaults(),
		log:        logger.Named("activity-cleanup"),
	}
}

// cleanupPass 单次调用的结果
type cleanupPass struct {
	continuation int
	activities   int64
	syncRuns     int64
	executions   int64
	more         bool
	scheduled    bool
}

func (p cleanupPass) total() int64 {
	return p.activities + p.syncRuns + p.executions
}

// Execute 定时触发从续跑序号 0 开始
func (j *ActivityCleanupJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	pass, err := j.runCleanup(ctx, 0)
	if err != nil {
		return nil, err
	}
	return &scheduler.JobResult{
		ProcessedCount: int(pass.total()),
		Summary: fmt.Sprintf("Deleted activities: %d, sync runs: %d, executions: %d",
			pass.activities, pass.syncRuns, pass.executions),
		Details: map[string]interface{}{
			"more_remaining":         pass.more,
			"continuation_scheduled": pass.scheduled,
		},
	}, nil
}

// runCleanup 执行一次批量删除, 需要时排期 continuation+1
func (j *ActivityCleanupJob) runCleanup(ctx context.Context, continuation int) (cleanupPass, error) {
	pass := cleanupPass{continuation: continuation}
	cutoff := j.clock.NowMs() - (time.Duration(j.cfg.RetentionDays) * 24 * time.Hour).Milliseconds()
	batch := j.cfg.CleanupBatchSize

	var err error
	if pass.activities, err = j.activities.DeleteOlderThan(ctx, cutoff, batch); err != nil {
		j.log.Error("delete old activities failed", zap.Int("continuation", continuation), zap.Error(err))
		return pass, err
	}
	metrics.CleanupRecordsDeleted.WithLabelValues("activity").Add(float64(pass.activities))

	if pass.syncRuns, err = j.syncRuns.DeleteOlderThan(ctx, cutoff, batch); err != nil {
		j.log.Error("delete old sync runs failed", zap.Int("continuation", continuation), zap.Error(err))
		return pass, err
	}
	metrics.CleanupRecordsDeleted.WithLabelValues("sync_runs").Add(float64(pass.syncRuns))

	if pass.executions, err = j.executions.CleanupOldRecords(ctx, cutoff, batch); err != nil {
		j.log.Error("delete old job executions failed", zap.Int("continuation", continuation), zap.Error(err))
		return pass, err
	}
	metrics.CleanupRecordsDeleted.WithLabelValues("job_executions").Add(float64(pass.executions))

	limit := int64(batch)
	pass.more = pass.activities >= limit || pass.syncRuns >= limit || pass.executions >= limit

	if pass.more {
		if continuation < j.cfg.CleanupMaxContinuations {
			next := continuation + 1
			pass.scheduled = j.deferrer.After(j.cfg.CleanupContinuationDelay,
				fmt.Sprintf("activity-cleanup-%d", next),
				func(ctx context.Context) {
					_, _ = j.runCleanup(ctx, next)
				})
			if pass.scheduled {
				metrics.CleanupContinuations.WithLabelValues("scheduled").Inc()
			}
		} else {
			metrics.CleanupContinuations.WithLabelValues("capped").Inc()
			j.log.Warn("cleanup continuation cap reached, remaining rows left for the next run",
				zap.Int("continuation", continuation),
				zap.Int("max_continuations", j.cfg.CleanupMaxContinuations))
		}
	}

	j.log.Info("cleanup pass finished",
		zap.Int("continuation", continuation),
		zap.Int64("cutoff", cutoff),
		zap.Int64("activities", pass.activities),
		zap.Int64("sync_runs", pass.syncRuns),
		zap.Int64("job_executions", pass.executions),
		zap.Bool("more", pass.more),
		zap.Bool("continuation_scheduled", pass.scheduled))
	return pass, nil
}
