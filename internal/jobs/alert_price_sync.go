package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/scheduler"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// AlertPriceSyncJob 刷新被价格提醒引用的市场价格, 完成后串行执行价格提醒检查
type AlertPriceSyncJob struct {
	scheduler.BaseJob
	alerts  *repository.AlertRepository
	markets *repository.MarketRepository
	source  PriceFetcher
	checker PriceAlertChecker
	tracker *SyncTracker
	clock   service.Clock
	cfg     SyncConfig
	log     *zap.Logger
}

// NewAlertPriceSyncJob 创建提醒价格同步任务
func NewAlertPriceSyncJob(
	alerts *repository.AlertRepository,
	markets *repository.MarketRepository,
	source PriceFetcher,
	checker PriceAlertChecker,
	tracker *SyncTracker,
	clock service.Clock,
	cfg SyncConfig,
) *AlertPriceSyncJob {
	def := scheduler.DefaultJobConfigs[scheduler.JobNameAlertPriceSync]
	return &AlertPriceSyncJob{
		BaseJob: scheduler.NewBaseJob(scheduler.JobNameAlertPriceSync, def.Timeout, def.LockTTL, def.UseWatchdog),
		alerts:  alerts,
		markets: markets,
		source:  source,
		checker: checker,
		tracker: tracker,
		clock:   clock,
		cfg:     cfg.WithDefaults(),
		log:     logger.Named("alert-price-sync"),
	}
}

// priceSyncOutcome 价格同步统计
type priceSyncOutcome struct {
	updated int
	skipped int
	errors  int
}

func (o priceSyncOutcome) summary() string {
	return fmt.Sprintf("Updated: %d, Skipped: %d", o.updated, o.skipped)
}

// Execute 价格同步无论成败, 之后都执行一次价格提醒检查
func (j *AlertPriceSyncJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	out, syncErr := j.syncPrices(ctx)

	check, err := j.checker.CheckPriceAlerts(ctx)
	if err != nil {
		j.log.Error("price alert check failed", zap.Error(err))
		if syncErr == nil {
			syncErr = err
		}
	}
	if syncErr != nil {
		return nil, syncErr
	}

	res := &scheduler.JobResult{
		ProcessedCount: out.updated,
		ErrorCount:     out.errors,
		SkippedCount:   out.skipped,
		Summary:        out.summary(),
		Details:        map[string]interface{}{},
	}
	if check != nil {
		res.Details["alerts_checked"] = check.Checked
		res.Details["alerts_triggered"] = check.Triggered
	}
	return res, nil
}

func (j *AlertPriceSyncJob) syncPrices(ctx context.Context) (priceSyncOutcome, error) {
	var out priceSyncOutcome

	run, err := j.tracker.start(ctx, model.SyncTypeAlertPrices)
	if err != nil {
		return out, err
	}

	ids, err := j.alerts.ActivePriceMarketIDs(ctx)
	if err != nil {
		j.tracker.markSyncFailed(ctx, run, err)
		return out, err
	}
	if len(ids) == 0 {
		j.tracker.finish(ctx, run, model.SyncStatusCompleted, 0, "")
		return out, nil
	}

	markets, err := j.markets.ListWithTokens(ctx, ids)
	if err != nil {
		j.tracker.markSyncFailed(ctx, run, err)
		return out, err
	}
	if len(markets) == 0 {
		j.tracker.finish(ctx, run, model.SyncStatusCompleted, 0, "No markets with token IDs found")
		j.log.Info("no markets with token ids", zap.Int("alert_markets", len(ids)))
		return out, nil
	}

	tokens := make([]string, 0, len(markets)*2)
	for _, m := range markets {
		tokens = append(tokens, *m.YesTokenID, *m.NoTokenID)
	}
	prices, fetchErrors, err := j.fetchPrices(ctx, tokens)
	if err != nil {
		j.tracker.markSyncFailed(ctx, run, err)
		return out, err
	}

	now := j.clock.NowMs()
	for _, m := range markets {
		yes, hasYes := prices[*m.YesTokenID]
		no, hasNo := prices[*m.NoTokenID]
		if !hasYes && !hasNo {
			out.skipped++
			continue
		}
		var yp, np *float64
		if hasYes {
			yp = &yes
		}
		if hasNo {
			np = &no
		}
		if err := j.markets.UpdatePrices(ctx, m.ID, yp, np, now); err != nil {
			out.errors++
			j.log.Error("update market prices failed", zap.Int64("market_id", m.ID), zap.Error(err))
			continue
		}
		out.updated++
	}

	c := tally{processed: out.updated, errors: out.errors, skipped: out.skipped}
	c.record(model.SyncTypeAlertPrices)
	status := c.status()
	j.tracker.finish(ctx, run, status, int64(out.updated), out.summary())

	j.log.Info("alert price sync finished",
		zap.Int64("sync_run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("markets", len(markets)),
		zap.Int("token_fetch_errors", fetchErrors),
		zap.Int("updated", out.updated),
		zap.Int("skipped", out.skipped),
		zap.Int("errors", out.errors))
	return out, nil
}

// fetchPrices 按批并发拉取, 批间间隔保证总速率不超过上游上限;
// 单个 token 失败只记日志, 只有 context 取消才中止整体
func (j *AlertPriceSyncJob) fetchPrices(ctx context.Context, tokens []string) (map[string]float64, int, error) {
	size := j.cfg.PriceBatchSize
	pacer := client.NewPacer(client.BatchInterval(size, j.cfg.PriceBatchDelay))

	prices := make(map[string]float64, len(tokens))
	failed := 0
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		if err := pacer.Wait(ctx); err != nil {
			return nil, failed, err
		}

		batch := tokens[start:end]
		values := make([]*float64, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, token := range batch {
			i, token := i, token
			g.Go(func() error {
				p, err := j.fetchPrice(gctx, token)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					j.log.Warn("fetch token price failed", zap.String("token_id", token), zap.Error(err))
					return nil
				}
				values[i] = &p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, failed, err
		}
		for i, v := range values {
			if v == nil {
				failed++
				continue
			}
			prices[batch[i]] = *v
		}
	}
	return prices, failed, nil
}

func (j *AlertPriceSyncJob) fetchPrice(ctx context.Context, token string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	p, err := j.source.LatestTokenPrice(ctx, token)
	if err != nil {
		return 0, err
	}
	if p.Value < 0 || p.Value > 1 {
		return 0, errors.Wrapf(errors.ErrUpstream, "token %s: price %v out of range", token, p.Value)
	}
	return p.Value, nil
}
