package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationService 通知历史查询, 接收投递方回报的结果
type NotificationService struct {
	notifications *repository.NotificationRepository
	clock         Clock
	log           *zap.Logger
}

// NewNotificationService 创建通知服务
func NewNotificationService(notifications *repository.NotificationRepository, clock Clock) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		clock:         clock,
		log:           logger.Named("notifications"),
	}
}

// ListRecent 返回用户最近的通知, 按时间倒序
func (s *NotificationService) ListRecent(ctx context.Context, userID int64, limit int) ([]*model.Notification, error) {
	switch {
	case limit <= 0:
		limit = defaultNotificationLimit
	case limit > maxNotificationLimit:
		limit = maxNotificationLimit
	}
	return s.notifications.ListRecentByUser(ctx, userID, limit)
}

// UpdateStatus 记录投递结果; 只有 pending 能转为 sent 或 failed, 其他情况为冲突
func (s *NotificationService) UpdateStatus(ctx context.Context, id int64, status model.NotificationStatus, errMsg string) (*model.Notification, error) {
	if status != model.NotificationSent && status != model.NotificationFailed {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "status must be sent or failed, got %q", status)
	}
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "notification %d", id)
	}
	if !n.Status.CanTransitionTo(status) {
		return nil, errors.Wrapf(errors.ErrConflict, "notification %d is %s", id, n.Status)
	}

	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	now := s.clock.NowMs()
	ok, err := s.notifications.TransitionFromPending(ctx, id, status, msg, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrConflict, "notification %d changed concurrently", id)
	}

	n.Status, n.ErrorMessage, n.UpdatedAt = status, msg, now
	s.log.Info("notification status updated",
		zap.Int64("notification_id", id),
		zap.String("status", string(status)))
	return n, nil
}
