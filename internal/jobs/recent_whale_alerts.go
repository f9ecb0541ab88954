package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// RecentWhaleAlertsJob 对最近窗口内新增的成交补跑鲸鱼提醒, 冷却期保证重复执行无副作用
type RecentWhaleAlertsJob struct {
	scheduler.BaseJob
	checker RecentActivityChecker
	window  time.Duration
	log     *zap.Logger
}

// NewRecentWhaleAlertsJob 创建补偿检查任务
func NewRecentWhaleAlertsJob(checker RecentActivityChecker, cfg SyncConfig) *RecentWhaleAlertsJob {
	def := scheduler.DefaultJobConfigs[scheduler.JobNameRecentWhaleAlerts]
	return &RecentWhaleAlertsJob{
		BaseJob: scheduler.NewBaseJob(scheduler.JobNameRecentWhaleAlerts, def.Timeout, def.LockTTL, def.UseWatchdog),
		checker: checker,
		window:  cfg.WithDefaults().RecentAlertWindow,
		log:     logger.Named("recent-whale-alerts"),
	}
}

func (j *RecentWhaleAlertsJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	res, err := j.checker.CheckRecentWhaleActivity(ctx, j.window)
	if err != nil {
		j.log.Error("recent whale activity check failed", zap.Duration("window", j.window), zap.Error(err))
		return nil, err
	}
	return &scheduler.JobResult{
		ProcessedCount: res.Checked,
		ErrorCount:     res.Errors,
		SkippedCount:   res.Cooldown + res.Skipped,
		Summary:        fmt.Sprintf("Checked: %d, Triggered: %d, Errors: %d", res.Checked, res.Triggered, res.Errors),
		Details:        map[string]interface{}{"window": j.window.String()},
	}, nil
}
