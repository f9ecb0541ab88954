package repository

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// WhaleRepository 鲸鱼档案仓储
type WhaleRepository struct {
	db *gorm.DB
}

// NewWhaleRepository 创建鲸鱼档案仓储
func NewWhaleRepository(db *gorm.DB) *WhaleRepository {
	return &WhaleRepository{db: db}
}

// MergeFunc 由已有记录 (可能为 nil) 计算待写入的记录
type MergeFunc func(existing *model.Whale) *model.Whale

// UpsertMerged 在事务内加行锁读取已有记录, 合并后只写回变化的列
//
// 首次写入与并发写入冲突时 (另一方先插入同一地址), 重新加锁读取并再次合并.
// merge 可能被调用多次, 不能有副作用.
func (r *WhaleRepository) UpsertMerged(ctx context.Context, address string, merge MergeFunc) (*model.Whale, error) {
	var out *model.Whale
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < 2; attempt++ {
			var existing model.Whale
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("address = ?", address).First(&existing).Error
			found, err := notFoundAsNil(&existing, err)
			if err != nil {
				return err
			}

			out = merge(found)
			if found != nil {
				out.ID = found.ID
				changes := whaleChanges(found, out)
				if len(changes) == 0 {
					return nil
				}
				return tx.Model(&model.Whale{}).Where("id = ?", found.ID).Updates(changes).Error
			}

			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				DoNothing: true,
			}).Create(out)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				return nil
			}
		}
		return fmt.Errorf("whale %s: concurrent insert did not become visible", address)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// whaleColumns 可由合并修改的列
func whaleColumns(w *model.Whale) map[string]interface{} {
	return map[string]interface{}{
		"nickname":               w.Nickname,
		"avatar":                 w.Avatar,
		"is_verified":            w.IsVerified,
		"data_type":              w.DataType,
		"platforms":              w.Platforms,
		"trade_count":            w.TradeCount,
		"follower_count":         w.FollowerCount,
		"last_active_at":         w.LastActiveAt,
		"total_volume":           w.TotalVolume,
		"volume_24h":             w.Volume24h,
		"volume_7d":              w.Volume7d,
		"volume_30d":             w.Volume30d,
		"total_pnl":              w.TotalPnl,
		"pnl_24h":                w.Pnl24h,
		"pnl_7d":                 w.Pnl7d,
		"pnl_30d":                w.Pnl30d,
		"total_points":           w.TotalPoints,
		"points_7d":              w.Points7d,
		"total_volume_synced_at": w.TotalVolumeSyncedAt,
		"volume_24h_synced_at":   w.Volume24hSyncedAt,
		"volume_7d_synced_at":    w.Volume7dSyncedAt,
		"volume_30d_synced_at":   w.Volume30dSyncedAt,
		"total_pnl_synced_at":    w.TotalPnlSyncedAt,
		"pnl_24h_synced_at":      w.Pnl24hSyncedAt,
		"pnl_7d_synced_at":       w.Pnl7dSyncedAt,
		"pnl_30d_synced_at":      w.Pnl30dSyncedAt,
		"total_points_synced_at": w.TotalPointsSyncedAt,
		"points_7d_synced_at":    w.Points7dSyncedAt,
		"leaderboard_synced_at":  w.LeaderboardSyncedAt,
		"updated_at":             w.UpdatedAt,
	}
}

// whaleChanges 对比合并前后, 返回值不同的列
func whaleChanges(before, after *model.Whale) map[string]interface{} {
	prev := whaleColumns(before)
	changes := make(map[string]interface{})
	for col, v := range whaleColumns(after) {
		if !reflect.DeepEqual(prev[col], v) {
			changes[col] = v
		}
	}
	return changes
}

// GetByAddress 根据地址查询
func (r *WhaleRepository) GetByAddress(ctx context.Context, address string) (*model.Whale, error) {
	var w model.Whale
	err := conn(ctx, r.db).Where("address = ?", address).First(&w).Error
	return notFoundAsNil(&w, err)
}

// GetByID 根据ID查询
func (r *WhaleRepository) GetByID(ctx context.Context, id int64) (*model.Whale, error) {
	var w model.Whale
	err := conn(ctx, r.db).Where("id = ?", id).First(&w).Error
	return notFoundAsNil(&w, err)
}

// MapByIDs 批量按ID查询
func (r *WhaleRepository) MapByIDs(ctx context.Context, ids []int64) (map[int64]*model.Whale, error) {
	out := make(map[int64]*model.Whale, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var whales []*model.Whale
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&whales).Error; err != nil {
		return nil, err
	}
	for _, w := range whales {
		out[w.ID] = w
	}
	return out, nil
}

// ListAll 返回全部鲸鱼, 按ID升序
func (r *WhaleRepository) ListAll(ctx context.Context) ([]*model.Whale, error) {
	var whales []*model.Whale
	err := conn(ctx, r.db).Order("id").Find(&whales).Error
	return whales, err
}

// UpdateTradeStats 写入上游返回的成交总数和最近活跃时间
func (r *WhaleRepository) UpdateTradeStats(ctx context.Context, id int64, tradeCount int64, lastActiveAt *int64, now int64) error {
	updates := map[string]interface{}{
		"trade_count": tradeCount,
		"updated_at":  now,
	}
	if lastActiveAt != nil {
		updates["last_active_at"] = *lastActiveAt
	}
	return conn(ctx, r.db).Model(&model.Whale{}).Where("id = ?", id).Updates(updates).Error
}
