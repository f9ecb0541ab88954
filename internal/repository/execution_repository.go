package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// ExecutionRepository 调度任务执行记录仓储
type ExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository 创建执行记录仓储
func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create 创建执行记录
func (r *ExecutionRepository) Create(ctx context.Context, exec *model.JobExecution) error {
	exec.CreatedAt = time.Now().UnixMilli()
	return conn(ctx, r.db).Create(exec).Error
}

// Update 更新执行记录
func (r *ExecutionRepository) Update(ctx context.Context, exec *model.JobExecution) error {
	return conn(ctx, r.db).Save(exec).Error
}

// GetLatestByJobName 获取任务最新执行记录
func (r *ExecutionRepository) GetLatestByJobName(ctx context.Context, jobName string) (*model.JobExecution, error) {
	var exec model.JobExecution
	err := conn(ctx, r.db).
		Where("job_name = ?", jobName).
		Order("started_at DESC, id DESC").
		First(&exec).Error
	return notFoundAsNil(&exec, err)
}

// ListByJobName 查询任务执行历史
func (r *ExecutionRepository) ListByJobName(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error) {
	var execs []*model.JobExecution
	err := conn(ctx, r.db).
		Where("job_name = ?", jobName).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&execs).Error
	return execs, err
}

// GetLastSuccessTime 获取任务上次成功执行时间, 从未成功返回 0
func (r *ExecutionRepository) GetLastSuccessTime(ctx context.Context, jobName string) (int64, error) {
	var exec model.JobExecution
	err := conn(ctx, r.db).
		Where("job_name = ? AND status = ?", jobName, model.JobStatusSuccess).
		Order("finished_at DESC").
		First(&exec).Error
	found, err := notFoundAsNil(&exec, err)
	if err != nil || found == nil {
		return 0, err
	}
	if found.FinishedAt != nil {
		return *found.FinishedAt, nil
	}
	return found.StartedAt, nil
}

// CleanupOldRecords 分批清理旧执行记录
func (r *ExecutionRepository) CleanupOldRecords(ctx context.Context, beforeTime int64, batchSize int) (int64, error) {
	db := conn(ctx, r.db)
	ids := db.Model(&model.JobExecution{}).
		Select("id").
		Where("started_at < ?", beforeTime).
		Order("started_at").
		Limit(batchSize)
	result := db.Where("id IN (?)", ids).Delete(&model.JobExecution{})
	return result.RowsAffected, result.Error
}

// MarkStaleRunningAsFailed 将超时未结束的 running 记录标记为失败
func (r *ExecutionRepository) MarkStaleRunningAsFailed(ctx context.Context, threshold time.Duration) (int64, error) {
	now := time.Now()
	result := conn(ctx, r.db).
		Model(&model.JobExecution{}).
		Where("status = ? AND started_at < ?", model.JobStatusRunning, now.Add(-threshold).UnixMilli()).
		Updates(map[string]interface{}{
			"status":        model.JobStatusFailed,
			"finished_at":   now.UnixMilli(),
			"error_message": "task did not finish (marked as failed on startup)",
		})
	return result.RowsAffected, result.Error
}
