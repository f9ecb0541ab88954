package service

import (
	"context"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

// FeedItem 成交及其鲸鱼和市场
type FeedItem struct {
	*model.Activity
	VisibleAt int64         `json:"visibleAt"`
	Whale     *model.Whale  `json:"whale,omitempty"`
	Market    *model.Market `json:"market,omitempty"`
}

// FeedPage 信息流的一页, NextBefore 为下一页游标, 没有下一页时为 0
type FeedPage struct {
	Items      []*FeedItem `json:"items"`
	NextBefore int64       `json:"nextBefore,omitempty"`
}

// FeedService 按等级延迟的成交信息流
type FeedService struct {
	activities *repository.ActivityRepository
	whales     *repository.WhaleRepository
	markets    *repository.MarketRepository
	clock      Clock
}

// NewFeedService 创建信息流服务
func NewFeedService(activities *repository.ActivityRepository, whales *repository.WhaleRepository, markets *repository.MarketRepository, clock Clock) *FeedService {
	return &FeedService{activities: activities, whales: whales, markets: markets, clock: clock}
}

// Feed 返回当前对等级 t 可见的成交, 按时间倒序; before > 0 时只返回早于 before 的
func (s *FeedService) Feed(ctx context.Context, t tier.Tier, before int64, limit int) (*FeedPage, error) {
	if !t.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "unknown tier %q", t)
	}
	switch {
	case limit <= 0:
		limit = DefaultFeedLimit
	case limit > MaxFeedLimit:
		limit = MaxFeedLimit
	}

	items, err := s.activities.ListVisible(ctx, t, s.clock.NowMs(), before, limit)
	if err != nil {
		return nil, err
	}

	whaleIDs := make([]int64, 0, len(items))
	marketIDs := make([]int64, 0, len(items))
	for _, a := range items {
		whaleIDs = append(whaleIDs, a.WhaleID)
		marketIDs = append(marketIDs, a.MarketID)
	}
	whales, err := s.whales.MapByIDs(ctx, whaleIDs)
	if err != nil {
		return nil, err
	}
	markets, err := s.markets.MapByIDs(ctx, marketIDs)
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Items: make([]*FeedItem, 0, len(items))}
	for _, a := range items {
		vis := tier.Visibility{Top: a.VisibleToTopAt, Mid: a.VisibleToMidAt, Free: a.VisibleToFreeAt}
		page.Items = append(page.Items, &FeedItem{
			Activity:  a,
			VisibleAt: vis.For(t),
			Whale:     whales[a.WhaleID],
			Market:    markets[a.MarketID],
		})
	}
	if len(items) == limit {
		page.NextBefore = items[len(items)-1].Timestamp
	}
	return page, nil
}
