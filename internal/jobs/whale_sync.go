package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// WhaleSyncJob 把全部鲸鱼按固定大小分块, 每块错开排期独立执行
//
// 触发本身只负责排期, 排期完成即关闭运行记录 (itemCount = 鲸鱼数);
// 每块的结果只体现在该块的日志和入库数据上.
type WhaleSyncJob struct {
	scheduler.BaseJob
	whales   *repository.WhaleRepository
	source   TradeLister
	ingest   *service.IngestionService
	deferrer Deferrer
	tracker  *SyncTracker
	cfg      SyncConfig
	log      *zap.Logger
}

// NewWhaleSyncJob 创建鲸鱼成交同步任务
func NewWhaleSyncJob(
	whales *repository.WhaleRepository,
	source TradeLister,
	ingest *service.IngestionService,
	deferrer Deferrer,
	tracker *SyncTracker,
	cfg SyncConfig,
) *WhaleSyncJob {
	def := scheduler.DefaultJobConfigs[scheduler.JobNameWhaleSync]
	return &WhaleSyncJob{
		BaseJob:  scheduler.NewBaseJob(scheduler.JobNameWhaleSync, def.Timeout, def.LockTTL, def.UseWatchdog),
		whales:   whales,
		source:   source,
		ingest:   ingest,
		deferrer: deferrer,
		tracker:  tracker,
		cfg:      cfg.WithDefaults(),
		log:      logger.Named("whale-sync"),
	}
}

// Execute 排期全部分块后立即返回
func (j *WhaleSyncJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	run, err := j.tracker.start(ctx, model.SyncTypeWhales)
	if err != nil {
		return nil, err
	}

	whales, err := j.whales.ListAll(ctx)
	if err != nil {
		j.tracker.markSyncFailed(ctx, run, err)
		return nil, err
	}
	if len(whales) == 0 {
		j.tracker.finish(ctx, run, model.SyncStatusCompleted, 0, "")
		j.log.Info("no whales to sync", zap.Int64("sync_run_id", run.ID))
		return &scheduler.JobResult{Details: map[string]interface{}{"sync_run_id": run.ID, "chunks": 0}}, nil
	}

	chunks := chunkWhales(whales, j.cfg.WhaleChunkSize)
	scheduled := 0
	for i, chunk := range chunks {
		idx, members := i, chunk
		delay := time.Duration(idx) * j.cfg.WhaleChunkStagger
		name := fmt.Sprintf("whale-chunk-%d/%d", idx+1, len(chunks))
		if j.deferrer.After(delay, name, func(ctx context.Context) {
			j.runChunk(ctx, idx, len(chunks), members)
		}) {
			scheduled++
		}
	}

	summary := fmt.Sprintf("Scheduled %d chunks", scheduled)
	j.tracker.finish(ctx, run, model.SyncStatusCompleted, int64(len(whales)), summary)
	j.log.Info("whale sync scheduled",
		zap.Int64("sync_run_id", run.ID),
		zap.Int("whales", len(whales)),
		zap.Int("chunks", scheduled))

	return &scheduler.JobResult{
		ProcessedCount: len(whales),
		Summary:        summary,
		Details:        map[string]interface{}{"sync_run_id": run.ID, "chunks": scheduled},
	}, nil
}

func chunkWhales(whales []*model.Whale, size int) [][]*model.Whale {
	chunks := make([][]*model.Whale, 0, (len(whales)+size-1)/size)
	for start := 0; start < len(whales); start += size {
		end := start + size
		if end > len(whales) {
			end = len(whales)
		}
		chunks = append(chunks, whales[start:end])
	}
	return chunks
}

// chunkOutcome 单块统计
type chunkOutcome struct {
	whales        int
	fetchErrors   int
	invalidTrades int
	inserted      int
	skipped       int
	ingestErrors  int
}

// runChunk 逐个鲸鱼拉取成交; 单个鲸鱼超时或失败只计入错误, 不影响同块其他鲸鱼
func (j *WhaleSyncJob) runChunk(ctx context.Context, idx, total int, whales []*model.Whale) chunkOutcome {
	var out chunkOutcome
	pacer := client.NewPacer(j.cfg.WhaleRequestDelay)

	for _, w := range whales {
		if err := pacer.Wait(ctx); err != nil {
			out.fetchErrors++
			continue
		}

		page, trades, invalid, err := j.fetchTrades(ctx, w.Address)
		if err != nil {
			out.fetchErrors++
			j.log.Warn("fetch whale trades failed",
				zap.String("address", w.Address),
				zap.Int("chunk", idx+1),
				zap.Error(err))
			continue
		}
		out.invalidTrades += invalid

		res, err := j.ingest.IngestWhaleTrades(ctx, w, int64(page.Total), trades)
		if err != nil {
			out.ingestErrors++
			j.log.Error("ingest whale trades failed",
				zap.String("address", w.Address),
				zap.Error(err))
			continue
		}
		out.whales++
		out.inserted += res.Inserted
		out.skipped += res.Skipped
		out.ingestErrors += res.Errors
	}

	result := "ok"
	switch {
	case out.whales == 0 && len(whales) > 0:
		result = "failed"
	case out.fetchErrors > 0 || out.ingestErrors > 0:
		result = "partial"
	}
	metrics.WhaleChunksTotal.WithLabelValues(result).Inc()

	j.log.Info("whale chunk done",
		zap.Int("chunk", idx+1),
		zap.Int("total_chunks", total),
		zap.String("result", result),
		zap.Int("whales", out.whales),
		zap.Int("fetch_errors", out.fetchErrors),
		zap.Int("invalid_trades", out.invalidTrades),
		zap.Int("new_activities", out.inserted),
		zap.Int("skipped", out.skipped),
		zap.Int("ingest_errors", out.ingestErrors))
	return out
}

// fetchTrades 单个鲸鱼的请求带独立超时
func (j *WhaleSyncJob) fetchTrades(ctx context.Context, address string) (*client.RawPage, []*client.Trade, int, error) {
	fctx, cancel := context.WithTimeout(ctx, j.cfg.WhaleFetchTimeout)
	defer cancel()

	page, err := j.source.ListUserTrades(fctx, address, j.cfg.WhaleTradeLimit)
	if err != nil {
		return nil, nil, 0, err
	}

	trades := make([]*client.Trade, 0, len(page.List))
	invalid := 0
	for _, raw := range page.List {
		t, err := client.DecodeTrade(raw)
		if err != nil {
			invalid++
			continue
		}
		trades = append(trades, t)
	}
	return page, trades, invalid, nil
}
