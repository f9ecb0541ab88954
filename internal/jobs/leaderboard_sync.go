package jobs

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// leaderboardCombo 排行榜指标 x 周期, 每个组合只写一个统计字段
type leaderboardCombo struct {
	dataType string
	period   int
	stat     service.WhaleStat
}

// leaderboardCombos 周期 0=全部, 1=24h, 7=7d, 30=30d; points 只有 0 和 7
var leaderboardCombos = []leaderboardCombo{
	{"volume", 0, service.StatTotalVolume},
	{"volume", 1, service.StatVolume24h},
	{"volume", 7, service.StatVolume7d},
	{"volume", 30, service.StatVolume30d},
	{"profit", 0, service.StatTotalPnl},
	{"profit", 1, service.StatPnl24h},
	{"profit", 7, service.StatPnl7d},
	{"profit", 30, service.StatPnl30d},
	{"points", 0, service.StatTotalPoints},
	{"points", 7, service.StatPoints7d},
}

// LeaderboardSyncJob 顺序拉取各排行榜组合, 发现并更新鲸鱼
type LeaderboardSyncJob struct {
	scheduler.BaseJob
	source  LeaderboardFetcher
	ingest  *service.IngestionService
	tracker *SyncTracker
	cfg     SyncConfig
	log     *zap.Logger
}

// NewLeaderboardSyncJob 创建排行榜同步任务
func NewLeaderboardSyncJob(source LeaderboardFetcher, ingest *service.IngestionService, tracker *SyncTracker, cfg SyncConfig) *LeaderboardSyncJob {
	def := scheduler.DefaultJobConfigs[scheduler.JobNameLeaderboardSync]
	return &LeaderboardSyncJob{
		BaseJob: scheduler.NewBaseJob(scheduler.JobNameLeaderboardSync, def.Timeout, def.LockTTL, def.UseWatchdog),
		source:  source,
		ingest:  ingest,
		tracker: tracker,
		cfg:     cfg.WithDefaults(),
		log:     logger.Named("leaderboard-sync"),
	}
}

// Execute 单个组合失败只计一次错误, 继续下一个组合
func (j *LeaderboardSyncJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	run, err := j.tracker.start(ctx, model.SyncTypeLeaderboard)
	if err != nil {
		return nil, err
	}

	pacer := client.NewPacer(j.cfg.LeaderboardDelay)
	var c tally
	for _, combo := range leaderboardCombos {
		if err := pacer.Wait(ctx); err != nil {
			cause := errors.WrapWithCause(errors.ErrCanceled, err, "leaderboard sync")
			j.tracker.markSyncFailed(ctx, run, cause)
			return nil, cause
		}

		entries, err := j.source.Leaderboard(ctx, combo.dataType, combo.period)
		if err != nil {
			c.errors++
			j.log.Error("fetch leaderboard failed",
				zap.String("data_type", combo.dataType),
				zap.Int("period", combo.period),
				zap.Error(err))
			continue
		}

		cc := j.processCombo(ctx, combo, entries)
		c.processed += cc.processed
		c.errors += cc.errors
		c.skipped += cc.skipped

		j.log.Debug("leaderboard combination synced",
			zap.String("data_type", combo.dataType),
			zap.Int("period", combo.period),
			zap.Int("processed", cc.processed),
			zap.Int("errors", cc.errors),
			zap.Int("skipped", cc.skipped))
	}

	c.record(model.SyncTypeLeaderboard)
	status := c.status()
	j.tracker.finish(ctx, run, status, int64(c.processed), c.message())

	j.log.Info("leaderboard sync finished",
		zap.Int64("sync_run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("processed", c.processed),
		zap.Int("errors", c.errors),
		zap.Int("skipped", c.skipped))

	return &scheduler.JobResult{
		ProcessedCount: c.processed,
		ErrorCount:     c.errors,
		SkippedCount:   c.skipped,
		Summary:        c.summary(),
		Details:        map[string]interface{}{"sync_run_id": run.ID},
	}, nil
}

// processCombo 同一组合内按地址去重; 0 或无法解析的值跳过, 避免临时空值覆盖已有数据
func (j *LeaderboardSyncJob) processCombo(ctx context.Context, combo leaderboardCombo, entries []json.RawMessage) tally {
	var c tally
	dataType := model.WhaleDataTypeLeaderboard
	seen := make(map[string]struct{}, len(entries))

	for _, raw := range entries {
		t, err := client.DecodeLeaderboardTrader(raw)
		if err != nil {
			c.skipped++
			continue
		}
		addr := strings.ToLower(strings.TrimSpace(t.WalletAddress))
		if _, dup := seen[addr]; dup {
			c.skipped++
			continue
		}
		seen[addr] = struct{}{}

		if t.Value == 0 || math.IsNaN(t.Value) {
			c.skipped++
			continue
		}

		u := service.WhaleUpdate{
			Address:  addr,
			DataType: &dataType,
			Stats:    map[service.WhaleStat]float64{combo.stat: t.Value},
		}
		if t.UserName != nil && *t.UserName != "" {
			u.Nickname = t.UserName
		}
		if t.Avatar != nil && *t.Avatar != "" {
			u.Avatar = t.Avatar
		}
		if _, err := j.ingest.UpsertWhale(ctx, u); err != nil {
			c.errors++
			j.log.Error("upsert whale failed",
				zap.String("address", addr),
				zap.String("stat", string(combo.stat)),
				zap.Error(err))
			continue
		}
		c.processed++
	}
	return c
}
