package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeAction 交易方向
type TradeAction string

const (
	TradeActionBuy  TradeAction = "BUY"
	TradeActionSell TradeAction = "SELL"
)

// Activity 鲸鱼的一笔成交, 入库后不可变, 只会被保留期清理删除
type Activity struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WhaleID     int64           `gorm:"column:whale_id;not null;index:idx_activity_whale_ts,priority:1;uniqueIndex:uk_activity_whale_trade,priority:1" json:"whaleId"`
	MarketID    int64           `gorm:"column:market_id;not null;index:idx_activity_market_ts,priority:1" json:"marketId"`
	Action      TradeAction     `gorm:"column:action;type:varchar(8);not null" json:"action"`
	Outcome     string          `gorm:"column:outcome;type:varchar(64)" json:"outcome"`
	OutcomeSide int             `gorm:"column:outcome_side" json:"outcomeSide"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Price       decimal.Decimal `gorm:"column:price;type:decimal(36,18);not null" json:"price"`
	Platform    string          `gorm:"column:platform;type:varchar(32);not null" json:"platform"`
	TxHash      *string         `gorm:"column:tx_hash;type:varchar(128)" json:"txHash,omitempty"`
	// TradeKey 同一鲸鱼内唯一标识一笔上游成交, 重复拉取时据此去重
	TradeKey    string          `gorm:"column:trade_key;type:varchar(255);not null;uniqueIndex:uk_activity_whale_trade,priority:2" json:"-"`
	Timestamp   int64           `gorm:"column:timestamp;not null;index:idx_activity_ts;index:idx_activity_whale_ts,priority:2;index:idx_activity_market_ts,priority:2" json:"timestamp"`

	VisibleToTopAt  int64 `gorm:"column:visible_to_top_at;not null;index:idx_activity_visible_top" json:"visibleToTopAt"`
	VisibleToMidAt  int64 `gorm:"column:visible_to_mid_at;not null;index:idx_activity_visible_mid" json:"visibleToMidAt"`
	VisibleToFreeAt int64 `gorm:"column:visible_to_free_at;not null;index:idx_activity_visible_free" json:"visibleToFreeAt"`

	CreatedAt int64 `gorm:"column:created_at;not null;index:idx_activity_created" json:"createdAt"`
}

// TableName 表名
func (Activity) TableName() string {
	return "whale_activity"
}

// DefaultTradeKey 由成交自身字段组成的去重键
func (a *Activity) DefaultTradeKey() string {
	txHash := ""
	if a.TxHash != nil {
		txHash = *a.TxHash
	}
	return fmt.Sprintf("%s:%d:%d:%s:%d:%s", txHash, a.Timestamp, a.MarketID, a.Action, a.OutcomeSide, a.Amount.String())
}
