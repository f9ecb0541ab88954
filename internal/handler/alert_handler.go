package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
)

// AlertManager 用户提醒管理
type AlertManager interface {
	List(ctx context.Context, userID int64) ([]*model.Alert, *service.AlertUsage, error)
	CreatePriceAlert(ctx context.Context, userID, marketID int64, cond model.Condition) (*model.Alert, error)
	CreateWhaleAlert(ctx context.Context, userID, whaleID int64) (*model.Alert, error)
	SetActive(ctx context.Context, userID, alertID int64, active bool) (*model.Alert, error)
	Delete(ctx context.Context, userID, alertID int64) error
}

// AlertHandler 提醒增删改查, 挂在 /users/:userId/alerts 下
type AlertHandler struct {
	alerts AlertManager
}

func NewAlertHandler(alerts AlertManager) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

type alertList struct {
	Alerts []*model.Alert       `json:"alerts"`
	Usage  *service.AlertUsage `json:"usage"`
}

// List GET /api/v1/users/:userId/alerts
func (h *AlertHandler) List(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	alerts, usage, err := h.alerts.List(c.Request.Context(), userID)
	if err != nil {
		Error(c, err)
		return
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}
	Success(c, &alertList{Alerts: alerts, Usage: usage})
}

type createPriceAlertRequest struct {
	MarketID int64               `json:"marketId" binding:"required"`
	Operator model.AlertOperator `json:"operator" binding:"required"`
	Value    *float64            `json:"value" binding:"required"`
}

// CreatePrice POST /api/v1/users/:userId/alerts/price
func (h *AlertHandler) CreatePrice(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	var req createPriceAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	alert, err := h.alerts.CreatePriceAlert(c.Request.Context(), userID, req.MarketID,
		model.Condition{Operator: req.Operator, Value: *req.Value})
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, alert)
}

type createWhaleAlertRequest struct {
	WhaleID int64 `json:"whaleId" binding:"required"`
}

// CreateWhale POST /api/v1/users/:userId/alerts/whale
func (h *AlertHandler) CreateWhale(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	var req createWhaleAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	alert, err := h.alerts.CreateWhaleAlert(c.Request.Context(), userID, req.WhaleID)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, alert)
}

type updateAlertRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// Update PATCH /api/v1/users/:userId/alerts/:id
func (h *AlertHandler) Update(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	alertID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	alert, err := h.alerts.SetActive(c.Request.Context(), userID, alertID, *req.IsActive)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, alert)
}

// Delete DELETE /api/v1/users/:userId/alerts/:id
func (h *AlertHandler) Delete(c *gin.Context) {
	userID, ok := int64Param(c, "userId")
	if !ok {
		return
	}
	alertID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.alerts.Delete(c.Request.Context(), userID, alertID); err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"id": alertID})
}
