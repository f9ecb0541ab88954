package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// SyncRunRepository 同步运行记录仓储
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository 创建同步运行记录仓储
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Start 创建 running 状态的运行记录
func (r *SyncRunRepository) Start(ctx context.Context, syncType model.SyncType, now int64) (*model.SyncRun, error) {
	run := &model.SyncRun{
		Type:      syncType,
		Status:    model.SyncStatusRunning,
		StartedAt: now,
	}
	if err := conn(ctx, r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Finish 关闭运行记录; 已关闭的记录不会被再次修改, 返回是否生效
func (r *SyncRunRepository) Finish(ctx context.Context, id int64, status model.SyncStatus, itemCount *int64, message *string, now int64) (bool, error) {
	result := conn(ctx, r.db).
		Model(&model.SyncRun{}).
		Where("id = ? AND status = ?", id, model.SyncStatusRunning).
		Updates(map[string]interface{}{
			"status":     status,
			"ended_at":   now,
			"item_count": itemCount,
			"error":      message,
		})
	return result.RowsAffected == 1, result.Error
}

// GetByID 根据ID查询
func (r *SyncRunRepository) GetByID(ctx context.Context, id int64) (*model.SyncRun, error) {
	var run model.SyncRun
	err := conn(ctx, r.db).Where("id = ?", id).First(&run).Error
	return notFoundAsNil(&run, err)
}

// List 按开始时间倒序查询, syncType 为空时不过滤
func (r *SyncRunRepository) List(ctx context.Context, syncType model.SyncType, limit int) ([]*model.SyncRun, error) {
	var runs []*model.SyncRun
	q := conn(ctx, r.db).Order("started_at DESC, id DESC").Limit(limit)
	if syncType != "" {
		q = q.Where("type = ?", syncType)
	}
	err := q.Find(&runs).Error
	return runs, err
}

// DeleteOlderThan 删除一批 started_at 早于 cutoff 的记录
func (r *SyncRunRepository) DeleteOlderThan(ctx context.Context, cutoff int64, batchSize int) (int64, error) {
	db := conn(ctx, r.db)
	ids := db.Model(&model.SyncRun{}).
		Select("id").
		Where("started_at < ?", cutoff).
		Order("started_at").
		Limit(batchSize)
	result := db.Where("id IN (?)", ids).Delete(&model.SyncRun{})
	return result.RowsAffected, result.Error
}
