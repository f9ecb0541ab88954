package service

import (
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// WhaleStat 来自排行榜的鲸鱼统计项
type WhaleStat string

const (
	StatTotalVolume WhaleStat = "totalVolume"
	StatVolume24h   WhaleStat = "volume24h"
	StatVolume7d    WhaleStat = "volume7d"
	StatVolume30d   WhaleStat = "volume30d"
	StatTotalPnl    WhaleStat = "totalPnl"
	StatPnl24h      WhaleStat = "pnl24h"
	StatPnl7d       WhaleStat = "pnl7d"
	StatPnl30d      WhaleStat = "pnl30d"
	StatTotalPoints WhaleStat = "totalPoints"
	StatPoints7d    WhaleStat = "points7d"
)

// fields 返回统计项的值字段和同步时间字段
func (s WhaleStat) fields(w *model.Whale) (value **float64, syncedAt **int64) {
	switch s {
	case StatTotalVolume:
		return &w.TotalVolume, &w.TotalVolumeSyncedAt
	case StatVolume24h:
		return &w.Volume24h, &w.Volume24hSyncedAt
	case StatVolume7d:
		return &w.Volume7d, &w.Volume7dSyncedAt
	case StatVolume30d:
		return &w.Volume30d, &w.Volume30dSyncedAt
	case StatTotalPnl:
		return &w.TotalPnl, &w.TotalPnlSyncedAt
	case StatPnl24h:
		return &w.Pnl24h, &w.Pnl24hSyncedAt
	case StatPnl7d:
		return &w.Pnl7d, &w.Pnl7dSyncedAt
	case StatPnl30d:
		return &w.Pnl30d, &w.Pnl30dSyncedAt
	case StatTotalPoints:
		return &w.TotalPoints, &w.TotalPointsSyncedAt
	case StatPoints7d:
		return &w.Points7d, &w.Points7dSyncedAt
	}
	return nil, nil
}

// Valid 是否为已知统计项
func (s WhaleStat) Valid() bool {
	v, _ := s.fields(&model.Whale{})
	return v != nil
}

// WhaleUpdate 一次同步要写入鲸鱼的字段, nil 字段保持原值
type WhaleUpdate struct {
	Address    string
	Nickname   *string
	Avatar     *string
	DataType   *model.WhaleDataType
	TradeCount *int64
	Stats      map[WhaleStat]float64
}

// MergeWhale 将 u 合并到 existing (新鲸鱼为 nil) 上, 返回待写入的记录
//
// 数据来源只会升级到更高优先级; 排行榜来源会记录 LeaderboardSyncedAt.
func MergeWhale(existing *model.Whale, u WhaleUpdate, now int64) *model.Whale {
	var w model.Whale
	if existing != nil {
		w = *existing
	} else {
		w = model.Whale{
			Address:       u.Address,
			IsVerified:    false,
			Platforms:     model.StringList{model.PlatformOpinionTrade},
			FollowerCount: 0,
			CreatedAt:     now,
		}
	}

	if u.Nickname != nil {
		w.Nickname = u.Nickname
	}
	if u.Avatar != nil {
		w.Avatar = u.Avatar
	}
	if u.TradeCount != nil {
		w.TradeCount = u.TradeCount
	}
	if u.DataType != nil {
		if w.DataType == nil || u.DataType.Priority() > w.DataType.Priority() {
			dt := *u.DataType
			w.DataType = &dt
		}
		if *u.DataType == model.WhaleDataTypeLeaderboard {
			ts := now
			w.LeaderboardSyncedAt = &ts
		}
	}
	for stat, v := range u.Stats {
		value, syncedAt := stat.fields(&w)
		if value == nil {
			continue
		}
		val, ts := v, now
		*value = &val
		*syncedAt = &ts
	}

	w.LastActiveAt = now
	w.UpdatedAt = now
	return &w
}
