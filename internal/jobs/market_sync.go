package jobs

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
	"github.com/eidos-exchange/eidos-whalesync/pkg/retry"
)

// MarketSyncJob 全量分页拉取市场, 展开分类市场后按 (platform, externalId) 写入
type MarketSyncJob struct {
	scheduler.BaseJob
	source  MarketLister
	ingest  *service.IngestionService
	tracker *SyncTracker
	retrier *retry.Retrier
	cfg     SyncConfig
	log     *zap.Logger
}

// NewMarketSyncJob 创建市场同步任务
func NewMarketSyncJob(source MarketLister, ingest *service.IngestionService, tracker *SyncTracker, retrier *retry.Retrier, cfg SyncConfig) *MarketSyncJob {
	def := scheduler.DefaultJobConfigs[scheduler.JobNameMarketSync]
	return &MarketSyncJob{
		BaseJob: scheduler.NewBaseJob(scheduler.JobNameMarketSync, def.Timeout, def.LockTTL, def.UseWatchdog),
		source:  source,
		ingest:  ingest,
		tracker: tracker,
		retrier: retrier,
		cfg:     cfg.WithDefaults(),
		log:     logger.Named("market-sync"),
	}
}

// Execute 创建运行记录 -> 抓取 (整体重试) -> 逐条入库
func (j *MarketSyncJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	run, err := j.tracker.start(ctx, model.SyncTypeMarkets)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	err = j.retrier.Do(ctx, "market fetch", func(ctx context.Context) error {
		var ferr error
		raw, ferr = j.fetch(ctx)
		return ferr
	})
	if err != nil {
		j.tracker.markSyncFailed(ctx, run, err)
		return nil, err
	}

	c := j.process(ctx, raw)
	c.record(model.SyncTypeMarkets)

	status := model.SyncStatusCompleted
	if c.processed == 0 && (c.errors > 0 || c.skipped > 0) {
		status = model.SyncStatusFailed
	}
	j.tracker.finish(ctx, run, status, int64(c.processed), c.message())

	j.log.Info("market sync finished",
		zap.Int64("sync_run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("fetched", len(raw)),
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

// fetch 逐页拉取直到累计条数达到 total 或页码达到 ceil(total/limit)
func (j *MarketSyncJob) fetch(ctx context.Context) ([]json.RawMessage, error) {
	limit := j.cfg.MarketPageSize
	pacer := client.NewPacer(j.cfg.MarketPageDelay)

	var all []json.RawMessage
	for page := 1; page <= j.cfg.MarketMaxPages; page++ {
		if err := pacer.Wait(ctx); err != nil {
			return nil, errors.WrapWithCause(errors.ErrCanceled, err, "market page %d", page)
		}
		p, err := j.source.ListMarkets(ctx, page, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, p.List...)

		lastPage := (p.Total + limit - 1) / limit
		if len(p.List) == 0 || len(all) >= p.Total || page >= lastPage {
			return all, nil
		}
	}
	j.log.Warn("market pagination hit page cap", zap.Int("max_pages", j.cfg.MarketMaxPages))
	return all, nil
}

func (j *MarketSyncJob) process(ctx context.Context, raw []json.RawMessage) tally {
	var c tally

	valid := make([]*client.MarketRecord, 0, len(raw))
	for _, r := range raw {
		m, err := client.DecodeMarket(r)
		if err != nil {
			c.skipped++
			j.log.Debug("invalid market skipped", zap.Error(err))
			continue
		}
		valid = append(valid, m)
	}

	for _, m := range client.FlattenMarkets(valid) {
		if ctx.Err() != nil {
			c.errors++
			continue
		}
		if err := j.ingest.UpsertMarket(ctx, m); err != nil {
			c.errors++
			j.log.Error("upsert market failed",
				zap.String("external_id", m.ExternalID),
				zap.Error(err))
			continue
		}
		c.processed++
	}
	return c
}
