package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// NotificationManager 通知查询与状态回写
type NotificationManager interface {
	ListRecent(ctx context.Context, userID int64, limit int) ([]*model.Notification, error)
	UpdateStatus(ctx context.Context, id int64, status model.NotificationStatus, errMsg string) (*model.Notification, error)
}

// NotificationHandler 通知收件箱, 外部投递方通过它回报投递结果
type NotificationHandler struct {
	notifications NotificationManager
}

func NewNotificationHandler(notifications NotificationManager) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List GET /api/v1/users/:userId/notifications?limit=
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	items, err := h.notifications.ListRecent(c.Request.Context(), userID, int(limit))
	if err != nil {
		Error(c, err)
		return
	}
	if items == nil {
		items = []*model.Notification{}
	}
	Success(c, items)
}

type updateStatusRequest struct {
	Status       model.NotificationStatus `json:"status" binding:"required"`
	ErrorMessage string                   `json:"errorMessage"`
}

// UpdateStatus POST /api/v1/notifications/:id/status
func (h *NotificationHandler) UpdateStatus(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.Status != model.NotificationSent && req.Status != model.NotificationFailed {
		BadRequest(c, "status must be sent or failed")
		return
	}
	n, err := h.notifications.UpdateStatus(c.Request.Context(), id, req.Status, req.ErrorMessage)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, n)
}
