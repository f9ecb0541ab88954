package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// Job 任务接口
type Job interface {
	// Name 任务名称
	Name() string
	// Execute 执行任务
	Execute(ctx context.Context) (*JobResult, error)
	// Timeout 任务超时时间
	Timeout() time.Duration
	// RequiresLock 是否需要分布式锁
	RequiresLock() bool
	// LockTTL 锁的TTL (仅在 RequiresLock() 返回 true 时有效)
	LockTTL() time.Duration
	// UseWatchdog 是否使用 Watchdog 锁续期 (长时间运行任务)
	UseWatchdog() bool
}

// JobResult 任务执行结果
type JobResult struct {
	// ProcessedCount 处理的记录数
	ProcessedCount int
	// ErrorCount 错误数
	ErrorCount int
	// SkippedCount 跳过的记录数
	SkippedCount int
	// Summary 同步摘要, 与 SyncRun 的 error 字段一致
	Summary string
	// Details 详细信息
	Details map[string]interface{}
}

// ToJSONResult 转换为 JSONResult
func (r *JobResult) ToJSONResult() model.JSONResult {
	if r == nil {
		return nil
	}
	result := model.JSONResult{
		"processed_count": r.ProcessedCount,
		"error_count":     r.ErrorCount,
		"skipped_count":   r.SkippedCount,
	}
	if r.Summary != "" {
		result["summary"] = r.Summary
	}
	for k, v := range r.Details {
		result[k] = v
	}
	return result
}

// BaseJob 基础任务实现
type BaseJob struct {
	name        string
	timeout     time.Duration
	lockTTL     time.Duration
	useWatchdog bool
}

// NewBaseJob 创建基础任务
func NewBaseJob(name string, timeout, lockTTL time.Duration, useWatchdog bool) BaseJob {
	return BaseJob{
		name:        name,
		timeout:     timeout,
		lockTTL:     lockTTL,
		useWatchdog: useWatchdog,
	}
}

func (j BaseJob) Name() string {
	return j.name
}

func (j BaseJob) Timeout() time.Duration {
	return j.timeout
}

func (j BaseJob) RequiresLock() bool {
	return j.lockTTL > 0
}

func (j BaseJob) LockTTL() time.Duration {
	return j.lockTTL
}

func (j BaseJob) UseWatchdog() bool {
	return j.useWatchdog
}

// JobNames 任务名称常量
const (
	JobNameMarketSync        = "market-sync"
	JobNameWhaleSync         = "whale-sync"
	JobNameLeaderboardSync   = "leaderboard-sync"
	JobNameAlertPriceSync    = "alert-price-sync"
	JobNameRecentWhaleAlerts = "recent-whale-alerts"
	JobNameActivityCleanup   = "activity-cleanup"
)

// JobDefaults 任务默认调度参数
type JobDefaults struct {
	Cron        string
	Enabled     bool
	Timeout     time.Duration
	LockTTL     time.Duration
	UseWatchdog bool
}

// DefaultJobConfigs 默认任务配置 (cron 带秒, UTC)
var DefaultJobConfigs = map[string]JobDefaults{
	JobNameMarketSync: {
		Cron:    "0 */15 * * * *", // 每15分钟
		Enabled: true,
		Timeout: 10 * time.Minute,
		LockTTL: 12 * time.Minute,
	},
	JobNameWhaleSync: {
		Cron:    "0 */15 * * * *", // 每15分钟, 只负责排期分块
		Enabled: true,
		Timeout: 1 * time.Minute,
		LockTTL: 1 * time.Minute,
	},
	JobNameLeaderboardSync: {
		Cron:        "0 0 4 * * *", // 每日凌晨4点
		Enabled:     true,
		Timeout:     15 * time.Minute,
		LockTTL:     15 * time.Minute,
		UseWatchdog: true,
	},
	JobNameAlertPriceSync: {
		Cron:    "0 */5 * * * *", // 每5分钟
		Enabled: true,
		Timeout: 4 * time.Minute,
		LockTTL: 5 * time.Minute,
	},
	JobNameRecentWhaleAlerts: {
		Cron:    "0 */15 * * * *",
		Enabled: false, // 鲸鱼提醒随入库实时检查, 该补偿任务默认关闭
		Timeout: 5 * time.Minute,
		LockTTL: 5 * time.Minute,
	},
	JobNameActivityCleanup: {
		Cron:        "0 0 3 * * *", // 每日凌晨3点
		Enabled:     true,
		Timeout:     10 * time.Minute,
		LockTTL:     10 * time.Minute,
		UseWatchdog: true,
	},
}

// cronParser 与调度器一致的秒级表达式解析器
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron 校验 cron 表达式 (带秒)
func ValidateCron(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}
