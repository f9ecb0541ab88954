// Package jobs 实现同步管道的定时任务: 市场/鲸鱼/排行榜/提醒价格同步与保留期清理
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
)

// MarketLister 分页拉取市场
type MarketLister interface {
	ListMarkets(ctx context.Context, page, limit int) (*client.RawPage, error)
}

// TradeLister 拉取钱包最近成交
type TradeLister interface {
	ListUserTrades(ctx context.Context, address string, limit int) (*client.RawPage, error)
}

// LeaderboardFetcher 拉取某个指标/周期的排行榜
type LeaderboardFetcher interface {
	Leaderboard(ctx context.Context, dataType string, period int) ([]json.RawMessage, error)
}

// PriceFetcher 拉取 token 最新成交价
type PriceFetcher interface {
	LatestTokenPrice(ctx context.Context, tokenID string) (*client.TokenPrice, error)
}

// Deferrer 延迟执行, 调用方不等待结果
type Deferrer interface {
	After(delay time.Duration, name string, fn func(ctx context.Context)) bool
}

// PriceAlertChecker 价格提醒检查
type PriceAlertChecker interface {
	CheckPriceAlerts(ctx context.Context) (*service.CheckResult, error)
}

// RecentActivityChecker 最近成交的鲸鱼提醒补偿检查
type RecentActivityChecker interface {
	CheckRecentWhaleActivity(ctx context.Context, window time.Duration) (*service.CheckResult, error)
}

// SyncConfig 同步任务参数
type SyncConfig struct {
	// 市场分页
	MarketPageSize  int           `yaml:"market_page_size" json:"market_page_size"`
	MarketPageDelay time.Duration `yaml:"market_page_delay" json:"market_page_delay"`
	MarketMaxPages  int           `yaml:"market_max_pages" json:"market_max_pages"`

	// 鲸鱼分块
	WhaleChunkSize    int           `yaml:"whale_chunk_size" json:"whale_chunk_size"`
	WhaleChunkStagger time.Duration `yaml:"whale_chunk_stagger" json:"whale_chunk_stagger"`
	WhaleTradeLimit   int           `yaml:"whale_trade_limit" json:"whale_trade_limit"`
	WhaleRequestDelay time.Duration `yaml:"whale_request_delay" json:"whale_request_delay"`
	WhaleFetchTimeout time.Duration `yaml:"whale_fetch_timeout" json:"whale_fetch_timeout"`

	// 排行榜
	LeaderboardDelay time.Duration `yaml:"leaderboard_delay" json:"leaderboard_delay"`

	// 提醒价格
	PriceBatchSize  int           `yaml:"price_batch_size" json:"price_batch_size"`
	PriceBatchDelay time.Duration `yaml:"price_batch_delay" json:"price_batch_delay"`

	// 保留期清理
	RetentionDays            int           `yaml:"retention_days" json:"retention_days"`
	CleanupBatchSize         int           `yaml:"cleanup_batch_size" json:"cleanup_batch_size"`
	CleanupContinuationDelay time.Duration `yaml:"cleanup_continuation_delay" json:"cleanup_continuation_delay"`
	CleanupMaxContinuations  int           `yaml:"cleanup_max_continuations" json:"cleanup_max_continuations"`

	// 鲸鱼提醒补偿窗口
	RecentAlertWindow time.Duration `yaml:"recent_alert_window" json:"recent_alert_window"`
}

// DefaultSyncConfig 默认同步参数
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MarketPageSize:           20,
		MarketPageDelay:          500 * time.Millisecond,
		MarketMaxPages:           1000,
		WhaleChunkSize:           10,
		WhaleChunkStagger:        2 * time.Second,
		WhaleTradeLimit:          20,
		WhaleRequestDelay:        200 * time.Millisecond,
		WhaleFetchTimeout:        20 * time.Second,
		LeaderboardDelay:         200 * time.Millisecond,
		PriceBatchSize:           10,
		PriceBatchDelay:          100 * time.Millisecond,
		RetentionDays:            3,
		CleanupBatchSize:         1000,
		CleanupContinuationDelay: time.Second,
		CleanupMaxContinuations:  50,
		RecentAlertWindow:        15 * time.Minute,
	}
}

// WithDefaults 用默认值补齐未设置的参数
func (c SyncConfig) WithDefaults() SyncConfig {
	def := DefaultSyncConfig()
	if c.MarketPageSize <= 0 {
		c.MarketPageSize = def.MarketPageSize
	}
	if c.MarketPageDelay < 0 {
		c.MarketPageDelay = def.MarketPageDelay
	}
	if c.MarketMaxPages <= 0 {
		c.MarketMaxPages = def.MarketMaxPages
	}
	if c.WhaleChunkSize <= 0 {
		c.WhaleChunkSize = def.WhaleChunkSize
	}
	if c.WhaleChunkStagger < 0 {
		c.WhaleChunkStagger = def.WhaleChunkStagger
	}
	if c.WhaleTradeLimit <= 0 {
		c.WhaleTradeLimit = def.WhaleTradeLimit
	}
	if c.WhaleFetchTimeout <= 0 {
		c.WhaleFetchTimeout = def.WhaleFetchTimeout
	}
	if c.PriceBatchSize <= 0 {
		c.PriceBatchSize = def.PriceBatchSize
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = def.RetentionDays
	}
	if c.CleanupBatchSize <= 0 {
		c.CleanupBatchSize = def.CleanupBatchSize
	}
	if c.CleanupMaxContinuations <= 0 {
		c.CleanupMaxContinuations = def.CleanupMaxContinuations
	}
	if c.RecentAlertWindow <= 0 {
		c.RecentAlertWindow = def.RecentAlertWindow
	}
	return c
}
