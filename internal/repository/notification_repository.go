package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// NotificationRepository 通知日志仓储
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create 写入通知
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return conn(ctx, r.db).Create(n).Error
}

// GetByID 根据ID查询
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	err := conn(ctx, r.db).Where("id = ?", id).First(&n).Error
	return notFoundAsNil(&n, err)
}

// TransitionFromPending 仅当当前为 pending 时更新状态, 返回是否生效
func (r *NotificationRepository) TransitionFromPending(ctx context.Context, id int64, status model.NotificationStatus, errMsg *string, now int64) (bool, error) {
	result := conn(ctx, r.db).
		Model(&model.Notification{}).
		Where("id = ? AND status = ?", id, model.NotificationPending).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"updated_at":    now,
		})
	return result.RowsAffected == 1, result.Error
}

// ListRecentByUser 查询用户最近的通知
func (r *NotificationRepository) ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	var items []*model.Notification
	err := conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("sent_at DESC, id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ListByAlert 查询某提醒产生的通知
func (r *NotificationRepository) ListByAlert(ctx context.Context, alertID int64) ([]*model.Notification, error) {
	var items []*model.Notification
	err := conn(ctx, r.db).Where("alert_id = ?", alertID).Order("id").Find(&items).Error
	return items, err
}
