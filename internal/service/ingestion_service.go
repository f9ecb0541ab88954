package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

const (
	marketCategory  = "prediction"
	marketURLFormat = "https://app.opinion.trade/detail?topicId=%s"
	defaultPrice    = 0.5
)

// IngestionService 把校验后的上游记录合并入库
//
// 每次写入都以自然键为准, 重叠执行的同步最终收敛.
type IngestionService struct {
	markets    *repository.MarketRepository
	whales     *repository.WhaleRepository
	activities *repository.ActivityRepository
	alerts     WhaleAlertChecker
	clock      Clock
	log        *zap.Logger
}

// NewIngestionService 创建入库服务, alerts 可以为 nil
func NewIngestionService(
	markets *repository.MarketRepository,
	whales *repository.WhaleRepository,
	activities *repository.ActivityRepository,
	alerts WhaleAlertChecker,
	clock Clock,
) *IngestionService {
	return &IngestionService{
		markets:    markets,
		whales:     whales,
		activities: activities,
		alerts:     alerts,
		clock:      clock,
		log:        logger.Named("ingestion"),
	}
}

// MarketFromFlat 展开后的上游市场转换为存储行; 价格初始为 0.5, 只在插入时生效
func MarketFromFlat(m client.FlatMarket, now int64) *model.Market {
	row := &model.Market{
		Platform:    model.PlatformOpinionTrade,
		ExternalID:  m.ExternalID,
		Title:       m.Title,
		Description: m.Rules,
		Category:    marketCategory,
		YesPrice:    defaultPrice,
		NoPrice:     defaultPrice,
		Volume:      m.Volume.FloatOrZero(),
		Volume24h:   m.Volume24h.FloatOrZero(),
		Volume7d:    m.Volume7d.FloatOrZero(),
		URL:         fmt.Sprintf(marketURLFormat, m.ExternalID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if m.YesTokenID != "" {
		yes := m.YesTokenID
		row.YesTokenID = &yes
	}
	if m.NoTokenID != "" {
		no := m.NoTokenID
		row.NoTokenID = &no
	}
	if m.ParentExternalID != "" {
		parent := m.ParentExternalID
		row.ParentExternalID = &parent
	}
	if m.CutoffAt > 0 {
		end := m.CutoffAt
		row.EndDate = &end
	}
	if m.ResolvedAt > 0 {
		resolved := m.ResolvedAt
		row.ResolvedAt = &resolved
	}
	if m.ThumbnailURL != "" {
		img := m.ThumbnailURL
		row.ImageURL = &img
	}
	if chainID, err := strconv.Atoi(string(m.ChainID)); err == nil && chainID != 0 {
		row.ChainID = &chainID
	}
	if m.QuoteToken != "" {
		quote := m.QuoteToken
		row.QuoteToken = &quote
	}
	return row
}

// UpsertMarket 按 (platform, externalId) 插入或更新市场
func (s *IngestionService) UpsertMarket(ctx context.Context, m client.FlatMarket) error {
	return s.markets.Upsert(ctx, MarketFromFlat(m, s.clock.NowMs()))
}

// UpsertWhale 将 u 合并到 u.Address 对应的鲸鱼
func (s *IngestionService) UpsertWhale(ctx context.Context, u WhaleUpdate) (*model.Whale, error) {
	now := s.clock.NowMs()
	return s.whales.UpsertMerged(ctx, u.Address, func(existing *model.Whale) *model.Whale {
		return MergeWhale(existing, u, now)
	})
}

// IngestResult 单个鲸鱼成交的入库统计
type IngestResult struct {
	Inserted int
	Skipped  int
	Errors   int
}

// IngestWhaleTrades 记录鲸鱼的一页上游成交
//
// total > 0 时先刷新成交总数和最近活跃时间. 水位只读取一次, 不晚于水位的成交
// 和市场未入库的成交跳过. 每笔新成交执行一次鲸鱼提醒评估.
func (s *IngestionService) IngestWhaleTrades(ctx context.Context, whale *model.Whale, total int64, trades []*client.Trade) (*IngestResult, error) {
	now := s.clock.NowMs()
	res := &IngestResult{}

	if total > 0 {
		var lastActive *int64
		if len(trades) > 0 {
			ts := trades[0].Timestamp
			lastActive = &ts
		}
		if err := s.whales.UpdateTradeStats(ctx, whale.ID, total, lastActive, now); err != nil {
			return nil, err
		}
	}
	if len(trades) == 0 {
		return res, nil
	}

	watermark, err := s.activities.LatestTimestamp(ctx, whale.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		ids = append(ids, t.MarketExternalID)
	}
	markets, err := s.markets.MapByExternalIDs(ctx, model.PlatformOpinionTrade, ids)
	if err != nil {
		return nil, err
	}

	fresh := make([]*client.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp <= watermark {
			res.Skipped++
			continue
		}
		fresh = append(fresh, t)
	}
	// 由旧到新写入, 水位只会前进
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Timestamp < fresh[j].Timestamp })

	for _, t := range fresh {
		market, ok := markets[t.MarketExternalID]
		if !ok {
			res.Skipped++
			continue
		}
		activity := newActivity(whale.ID, market.ID, t, now)
		created, err := s.activities.CreateIfAbsent(ctx, activity)
		if err != nil {
			res.Errors++
			s.log.Error("record activity failed",
				zap.String("address", whale.Address),
				zap.String("market", t.MarketExternalID),
				zap.Error(err))
			continue
		}
		if !created {
			// 重叠执行的同步已先写入
			res.Skipped++
			continue
		}
		res.Inserted++
		metrics.ActivitiesIngestedTotal.Inc()

		if s.alerts == nil {
			continue
		}
		if _, err := s.alerts.CheckWhaleAlerts(ctx, whale.ID, activity.ID); err != nil {
			s.log.Warn("whale alert check failed",
				zap.Int64("whale_id", whale.ID),
				zap.Int64("activity_id", activity.ID),
				zap.Error(err))
		}
	}
	return res, nil
}

func newActivity(whaleID, marketID int64, t *client.Trade, now int64) *model.Activity {
	vis := tier.ComputeVisibility(t.Timestamp)
	action := model.TradeActionBuy
	if t.Sell {
		action = model.TradeActionSell
	}
	a := &model.Activity{
		WhaleID:         whaleID,
		MarketID:        marketID,
		Action:          action,
		Outcome:         t.Outcome,
		OutcomeSide:     t.OutcomeSide,
		Amount:          t.Amount,
		Price:           t.Price,
		Platform:        model.PlatformOpinionTrade,
		Timestamp:       t.Timestamp,
		VisibleToTopAt:  vis.Top,
		VisibleToMidAt:  vis.Mid,
		VisibleToFreeAt: vis.Free,
		CreatedAt:       now,
	}
	if t.TxHash != "" {
		tx := t.TxHash
		a.TxHash = &tx
	}
	a.TradeKey = a.DefaultTradeKey()
	return a
}
