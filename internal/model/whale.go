package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// WhaleDataType 鲸鱼数据来源, 按优先级升序
type WhaleDataType string

const (
	WhaleDataTypeOther       WhaleDataType = "other"
	WhaleDataTypeLeaderboard WhaleDataType = "leaderboard"
)

// Priority 来源优先级, 未知来源为 0
func (t WhaleDataType) Priority() int {
	switch t {
	case WhaleDataTypeOther:
		return 1
	case WhaleDataTypeLeaderboard:
		return 2
	default:
		return 0
	}
}

// Whale 交易员档案, 自然键 address
type Whale struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Address    string         `gorm:"column:address;type:varchar(64);not null;uniqueIndex:uk_whales_address" json:"address"`
	Nickname   *string        `gorm:"column:nickname;type:varchar(128)" json:"nickname,omitempty"`
	Avatar     *string        `gorm:"column:avatar;type:text" json:"avatar,omitempty"`
	IsVerified bool           `gorm:"column:is_verified;not null" json:"isVerified"`
	DataType   *WhaleDataType `gorm:"column:data_type;type:varchar(20)" json:"dataType,omitempty"`
	Platforms  StringList     `gorm:"column:platforms;type:text" json:"platforms"`

	TradeCount    *int64 `gorm:"column:trade_count" json:"tradeCount,omitempty"`
	FollowerCount int64  `gorm:"column:follower_count;not null" json:"followerCount"`
	LastActiveAt  int64  `gorm:"column:last_active_at;not null;index:idx_whales_last_active" json:"lastActiveAt"`

	TotalVolume *float64 `gorm:"column:total_volume" json:"totalVolume,omitempty"`
	Volume24h   *float64 `gorm:"column:volume_24h" json:"volume24h,omitempty"`
	Volume7d    *float64 `gorm:"column:volume_7d" json:"volume7d,omitempty"`
	Volume30d   *float64 `gorm:"column:volume_30d" json:"volume30d,omitempty"`
	TotalPnl    *float64 `gorm:"column:total_pnl" json:"totalPnl,omitempty"`
	Pnl24h      *float64 `gorm:"column:pnl_24h" json:"pnl24h,omitempty"`
	Pnl7d       *float64 `gorm:"column:pnl_7d" json:"pnl7d,omitempty"`
	Pnl30d      *float64 `gorm:"column:pnl_30d" json:"pnl30d,omitempty"`
	TotalPoints *float64 `gorm:"column:total_points" json:"totalPoints,omitempty"`
	Points7d    *float64 `gorm:"column:points_7d" json:"points7d,omitempty"`

	// 每个统计字段最近一次被同步的时间, 用于展示数据新鲜度
	TotalVolumeSyncedAt *int64 `gorm:"column:total_volume_synced_at" json:"totalVolumeSyncedAt,omitempty"`
	Volume24hSyncedAt   *int64 `gorm:"column:volume_24h_synced_at" json:"volume24hSyncedAt,omitempty"`
	Volume7dSyncedAt    *int64 `gorm:"column:volume_7d_synced_at" json:"volume7dSyncedAt,omitempty"`
	Volume30dSyncedAt   *int64 `gorm:"column:volume_30d_synced_at" json:"volume30dSyncedAt,omitempty"`
	TotalPnlSyncedAt    *int64 `gorm:"column:total_pnl_synced_at" json:"totalPnlSyncedAt,omitempty"`
	Pnl24hSyncedAt      *int64 `gorm:"column:pnl_24h_synced_at" json:"pnl24hSyncedAt,omitempty"`
	Pnl7dSyncedAt       *int64 `gorm:"column:pnl_7d_synced_at" json:"pnl7dSyncedAt,omitempty"`
	Pnl30dSyncedAt      *int64 `gorm:"column:pnl_30d_synced_at" json:"pnl30dSyncedAt,omitempty"`
	TotalPointsSyncedAt *int64 `gorm:"column:total_points_synced_at" json:"totalPointsSyncedAt,omitempty"`
	Points7dSyncedAt    *int64 `gorm:"column:points_7d_synced_at" json:"points7dSyncedAt,omitempty"`
	LeaderboardSyncedAt *int64 `gorm:"column:leaderboard_synced_at" json:"leaderboardSyncedAt,omitempty"`

	CreatedAt int64 `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt int64 `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName 表名
func (Whale) TableName() string {
	return "whales"
}

// DisplayName 昵称, 无昵称时使用缩写地址 0x1234...abcd
func (w *Whale) DisplayName() string {
	if w.Nickname != nil && *w.Nickname != "" {
		return *w.Nickname
	}
	if len(w.Address) <= 10 {
		return w.Address
	}
	return w.Address[:6] + "..." + w.Address[len(w.Address)-4:]
}

// StringList 以 JSON 数组存储的字符串列表
type StringList []string

// Value 实现 driver.Valuer 接口
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner 接口
func (s *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported StringList source type %T", value)
	}
}
