package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// AlertRepository 提醒定义仓储
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository 创建提醒仓储
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create 创建提醒
func (r *AlertRepository) Create(ctx context.Context, a *model.Alert) error {
	return conn(ctx, r.db).Create(a).Error
}

// GetByID 根据ID查询
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*model.Alert, error) {
	var a model.Alert
	err := conn(ctx, r.db).Where("id = ?", id).First(&a).Error
	return notFoundAsNil(&a, err)
}

// ListByUser 查询用户的全部提醒
func (r *AlertRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Alert, error) {
	var alerts []*model.Alert
	err := conn(ctx, r.db).Where("user_id = ?", userID).Order("id").Find(&alerts).Error
	return alerts, err
}

// SetActive 启用/停用
func (r *AlertRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return conn(ctx, r.db).Model(&model.Alert{}).Where("id = ?", id).Update("is_active", active).Error
}

// Delete 删除提醒
func (r *AlertRepository) Delete(ctx context.Context, id int64) error {
	return conn(ctx, r.db).Where("id = ?", id).Delete(&model.Alert{}).Error
}

// ListActiveByType 查询某类型的全部有效提醒
func (r *AlertRepository) ListActiveByType(ctx context.Context, alertType model.AlertType) ([]*model.Alert, error) {
	var alerts []*model.Alert
	err := conn(ctx, r.db).
		Where("is_active = ? AND type = ?", true, alertType).
		Order("id").
		Find(&alerts).Error
	return alerts, err
}

// ListActiveForWhale 查询某鲸鱼的有效提醒
func (r *AlertRepository) ListActiveForWhale(ctx context.Context, whaleID int64) ([]*model.Alert, error) {
	var alerts []*model.Alert
	err := conn(ctx, r.db).
		Where("whale_id = ? AND is_active = ? AND type = ?", whaleID, true, model.AlertTypeWhale).
		Order("id").
		Find(&alerts).Error
	return alerts, err
}

// ActivePriceMarketIDs 有效价格提醒引用的去重市场ID
func (r *AlertRepository) ActivePriceMarketIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := conn(ctx, r.db).
		Model(&model.Alert{}).
		Where("is_active = ? AND type = ? AND market_id IS NOT NULL", true, model.AlertTypePrice).
		Distinct().
		Order("market_id").
		Pluck("market_id", &ids).Error
	return ids, err
}

// MarkTriggered 原子地记录一次触发: 仅当不在冷却期内才生效, 返回是否生效
func (r *AlertRepository) MarkTriggered(ctx context.Context, id int64, now, cooldownMs int64) (bool, error) {
	result := conn(ctx, r.db).
		Model(&model.Alert{}).
		Where("id = ? AND (last_triggered_at IS NULL OR last_triggered_at <= ?)", id, now-cooldownMs).
		Updates(map[string]interface{}{
			"last_triggered_at": now,
			"trigger_count":     gorm.Expr("trigger_count + 1"),
		})
	return result.RowsAffected == 1, result.Error
}
