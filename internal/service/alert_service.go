package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// AlertUsage 用户提醒数与等级配额
type AlertUsage struct {
	Tier  tier.Tier `json:"tier"`
	Count int       `json:"count"`
	Limit int       `json:"limit"` // 不限时为 -1
}

// AlertService 用户提醒管理
type AlertService struct {
	alerts  *repository.AlertRepository
	users   *repository.UserRepository
	markets *repository.MarketRepository
	whales  *repository.WhaleRepository
	clock   Clock
	log     *zap.Logger
}

// NewAlertService 创建提醒管理服务
func NewAlertService(
	alerts *repository.AlertRepository,
	users *repository.UserRepository,
	markets *repository.MarketRepository,
	whales *repository.WhaleRepository,
	clock Clock,
) *AlertService {
	return &AlertService{
		alerts:  alerts,
		users:   users,
		markets: markets,
		whales:  whales,
		clock:   clock,
		log:     logger.Named("alerts"),
	}
}

func (s *AlertService) user(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "user %d", userID)
	}
	return u, nil
}

// List 返回用户的提醒和配额使用情况
func (s *AlertService) List(ctx context.Context, userID int64) ([]*model.Alert, *AlertUsage, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	alerts, err := s.alerts.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return alerts, &AlertUsage{Tier: u.Tier, Count: len(alerts), Limit: tier.LimitsFor(u.Tier).MaxAlerts}, nil
}

// CreatePriceAlert 创建价格提醒, 每个用户每个市场只能有一个
func (s *AlertService) CreatePriceAlert(ctx context.Context, userID, marketID int64, cond model.Condition) (*model.Alert, error) {
	if err := cond.Validate(); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "%v", err)
	}
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "market %d", marketID)
	}
	return s.create(ctx, userID, model.PriceTarget{MarketID: marketID, Condition: cond}, func(a *model.Alert) bool {
		return a.Type == model.AlertTypePrice && a.MarketID != nil && *a.MarketID == marketID
	})
}

// CreateWhaleAlert 创建鲸鱼提醒, 每个用户每个鲸鱼只能关注一次
func (s *AlertService) CreateWhaleAlert(ctx context.Context, userID, whaleID int64) (*model.Alert, error) {
	whale, err := s.whales.GetByID(ctx, whaleID)
	if err != nil {
		return nil, err
	}
	if whale == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "whale %d", whaleID)
	}
	return s.create(ctx, userID, model.WhaleTarget{WhaleID: whaleID}, func(a *model.Alert) bool {
		return a.Type == model.AlertTypeWhale && a.WhaleID != nil && *a.WhaleID == whaleID
	})
}

func (s *AlertService) create(ctx context.Context, userID int64, target model.AlertTarget, duplicate func(*model.Alert) bool) (*model.Alert, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.alerts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !tier.CanAddAlert(u.Tier, len(existing)) {
		return nil, errors.Wrapf(errors.ErrLimitExceeded, "tier %s allows %d alerts", u.Tier, tier.LimitsFor(u.Tier).MaxAlerts)
	}
	for _, a := range existing {
		if duplicate(a) {
			return nil, errors.Wrapf(errors.ErrConflict, "alert %d already covers this target", a.ID)
		}
	}

	alert, err := model.NewAlert(userID, target, s.clock.NowMs())
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "%v", err)
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	s.log.Info("alert created",
		zap.Int64("user_id", userID),
		zap.Int64("alert_id", alert.ID),
		zap.String("type", string(alert.Type)))
	return alert, nil
}

func (s *AlertService) owned(ctx context.Context, userID, alertID int64) (*model.Alert, error) {
	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.UserID != userID {
		return nil, errors.Wrapf(errors.ErrNotFound, "alert %d", alertID)
	}
	return a, nil
}

// SetActive 启用或停用用户的提醒
func (s *AlertService) SetActive(ctx context.Context, userID, alertID int64, active bool) (*model.Alert, error) {
	a, err := s.owned(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if err := s.alerts.SetActive(ctx, alertID, active); err != nil {
		return nil, err
	}
	a.IsActive = active
	return a, nil
}

// Delete 删除用户的提醒
func (s *AlertService) Delete(ctx context.Context, userID, alertID int64) error {
	if _, err := s.owned(ctx, userID, alertID); err != nil {
		return err
	}
	return s.alerts.Delete(ctx, alertID)
}
