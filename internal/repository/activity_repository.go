package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
)

// ActivityRepository 鲸鱼成交仓储
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建成交仓储
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create 插入一条成交, 未设置去重键时按成交字段生成
func (r *ActivityRepository) Create(ctx context.Context, a *model.Activity) error {
	if a.TradeKey == "" {
		a.TradeKey = a.DefaultTradeKey()
	}
	return conn(ctx, r.db).Create(a).Error
}

// CreateIfAbsent 插入一条成交; 同一鲸鱼已有相同去重键时不写入并返回 false
func (r *ActivityRepository) CreateIfAbsent(ctx context.Context, a *model.Activity) (bool, error) {
	if a.TradeKey == "" {
		a.TradeKey = a.DefaultTradeKey()
	}
	result := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "whale_id"}, {Name: "trade_key"}},
		DoNothing: true,
	}).Create(a)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByID 根据ID查询
func (r *ActivityRepository) GetByID(ctx context.Context, id int64) (*model.Activity, error) {
	var a model.Activity
	err := conn(ctx, r.db).Where("id = ?", id).First(&a).Error
	return notFoundAsNil(&a, err)
}

// LatestTimestamp 返回鲸鱼最近一笔已入库成交的时间 (水位线), 无记录返回 0
func (r *ActivityRepository) LatestTimestamp(ctx context.Context, whaleID int64) (int64, error) {
	var ts sql.NullInt64
	err := conn(ctx, r.db).
		Model(&model.Activity{}).
		Select("MAX(timestamp)").
		Where("whale_id = ?", whaleID).
		Row().
		Scan(&ts)
	if err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

func visibilityColumn(t tier.Tier) string {
	switch t {
	case tier.ProPlus:
		return "visible_to_top_at"
	case tier.Pro:
		return "visible_to_mid_at"
	default:
		return "visible_to_free_at"
	}
}

// ListVisible 按等级过滤可见成交, 按时间倒序; before > 0 时作为游标
func (r *ActivityRepository) ListVisible(ctx context.Context, t tier.Tier, now, before int64, limit int) ([]*model.Activity, error) {
	var items []*model.Activity
	q := conn(ctx, r.db).
		Where(visibilityColumn(t)+" <= ?", now).
		Order("timestamp DESC, id DESC").
		Limit(limit)
	if before > 0 {
		q = q.Where("timestamp < ?", before)
	}
	err := q.Find(&items).Error
	return items, err
}

// ListLatestPerWhaleSince 窗口内 (created_at >= since) 每个鲸鱼成交时间最新的一条
//
// 按 whale_id 升序分页, afterWhaleID 为上一页最后一个鲸鱼ID.
func (r *ActivityRepository) ListLatestPerWhaleSince(ctx context.Context, since, afterWhaleID int64, limit int) ([]*model.Activity, error) {
	var items []*model.Activity
	err := conn(ctx, r.db).
		Table("whale_activity AS a").
		Select("a.*").
		Where("a.created_at >= ? AND a.whale_id > ?", since, afterWhaleID).
		Where(`NOT EXISTS (
			SELECT 1 FROM whale_activity b
			WHERE b.whale_id = a.whale_id AND b.created_at >= ?
			  AND (b.timestamp > a.timestamp OR (b.timestamp = a.timestamp AND b.id > a.id)))`, since).
		Order("a.whale_id").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// DeleteOlderThan 删除一批成交时间早于 cutoff 的记录
func (r *ActivityRepository) DeleteOlderThan(ctx context.Context, cutoff int64, batchSize int) (int64, error) {
	db := conn(ctx, r.db)
	ids := db.Model(&model.Activity{}).
		Select("id").
		Where("timestamp < ?", cutoff).
		Order("timestamp").
		Limit(batchSize)
	result := db.Where("id IN (?)", ids).Delete(&model.Activity{})
	return result.RowsAffected, result.Error
}

// Count 统计总数
func (r *ActivityRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&model.Activity{}).Count(&n).Error
	return n, err
}
