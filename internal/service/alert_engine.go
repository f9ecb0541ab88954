package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

var recentActivityBatch = 500

// AlertEngine 评估提醒并写入通知记录
//
// 用户等级在每轮评估开始时读取一次, 本轮所有冷却判断都使用它.
// 冷却本身由条件更新保证, 两轮重叠的评估不会在同一窗口内重复触发同一提醒.
type AlertEngine struct {
	alerts        *repository.AlertRepository
	markets       *repository.MarketRepository
	whales        *repository.WhaleRepository
	activities    *repository.ActivityRepository
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
	tx            *repository.Transactor
	dispatcher    EmailDispatcher
	clock         Clock
	log           *zap.Logger
}

// NewAlertEngine 创建提醒引擎
//
// dispatcher 可以为 nil, 此时邮件记录保持 pending, 由外部发送方处理.
func NewAlertEngine(
	alerts *repository.AlertRepository,
	markets *repository.MarketRepository,
	whales *repository.WhaleRepository,
	activities *repository.ActivityRepository,
	users *repository.UserRepository,
	notifications *repository.NotificationRepository,
	tx *repository.Transactor,
	dispatcher EmailDispatcher,
	clock Clock,
) *AlertEngine {
	return &AlertEngine{
		alerts:        alerts,
		markets:       markets,
		whales:        whales,
		activities:    activities,
		users:         users,
		notifications: notifications,
		tx:            tx,
		dispatcher:    dispatcher,
		clock:         clock,
		log:           logger.Named("alert-engine"),
	}
}

// CheckPriceAlerts 用市场当前 yes 价格评估全部启用的价格提醒
func (e *AlertEngine) CheckPriceAlerts(ctx context.Context) (*CheckResult, error) {
	now := e.clock.NowMs()
	res := &CheckResult{}

	alerts, err := e.alerts.ListActiveByType(ctx, model.AlertTypePrice)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return res, nil
	}

	marketIDs := make([]int64, 0, len(alerts))
	userIDs := make([]int64, 0, len(alerts))
	for _, a := range alerts {
		if a.MarketID != nil {
			marketIDs = append(marketIDs, *a.MarketID)
		}
		userIDs = append(userIDs, a.UserID)
	}
	markets, err := e.markets.MapByIDs(ctx, marketIDs)
	if err != nil {
		return nil, err
	}
	users, err := e.users.MapByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	for _, a := range alerts {
		res.Checked++
		target, err := a.Target()
		if err != nil {
			res.Skipped++
			e.record(model.AlertTypePrice, "skipped")
			e.log.Warn("malformed price alert", zap.Int64("alert_id", a.ID), zap.Error(err))
			continue
		}
		pt := target.(model.PriceTarget)

		user, market := users[a.UserID], markets[pt.MarketID]
		if user == nil || market == nil {
			res.Skipped++
			e.record(model.AlertTypePrice, "skipped")
			continue
		}
		if tier.InCooldown(user.Tier, a.LastTriggeredAt, now) {
			res.Cooldown++
			e.record(model.AlertTypePrice, "cooldown")
			continue
		}
		if !pt.Condition.Matches(market.YesPrice) {
			e.record(model.AlertTypePrice, "not_matched")
			continue
		}

		fired, err := e.trigger(ctx, a, user, nil, PriceAlertContent(market), now)
		if err != nil {
			res.Errors++
			e.record(model.AlertTypePrice, "error")
			e.log.Error("price alert trigger failed", zap.Int64("alert_id", a.ID), zap.Error(err))
			continue
		}
		if fired {
			res.Triggered++
		} else {
			res.Cooldown++
		}
	}

	e.log.Info("price alerts checked",
		zap.Int("checked", res.Checked),
		zap.Int("triggered", res.Triggered),
		zap.Int("cooldown", res.Cooldown),
		zap.Int("errors", res.Errors))
	return res, nil
}

// CheckWhaleAlerts 对一笔新入库的成交执行鲸鱼提醒评估
func (e *AlertEngine) CheckWhaleAlerts(ctx context.Context, whaleID, activityID int64) (*CheckResult, error) {
	now := e.clock.NowMs()
	res := &CheckResult{}

	alerts, err := e.alerts.ListActiveForWhale(ctx, whaleID)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return res, nil
	}

	activity, err := e.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	whale, err := e.whales.GetByID(ctx, whaleID)
	if err != nil {
		return nil, err
	}
	if activity == nil || whale == nil || activity.WhaleID != whaleID {
		return nil, errors.Wrapf(errors.ErrNotFound, "activity %d of whale %d", activityID, whaleID)
	}
	market, err := e.markets.GetByID(ctx, activity.MarketID)
	if err != nil {
		return nil, err
	}

	userIDs := make([]int64, 0, len(alerts))
	for _, a := range alerts {
		userIDs = append(userIDs, a.UserID)
	}
	users, err := e.users.MapByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	content := WhaleAlertContent(whale, activity, market)
	for _, a := range alerts {
		res.Checked++
		user := users[a.UserID]
		if user == nil {
			res.Skipped++
			e.record(model.AlertTypeWhale, "skipped")
			continue
		}
		if tier.InCooldown(user.Tier, a.LastTriggeredAt, now) {
			res.Cooldown++
			e.record(model.AlertTypeWhale, "cooldown")
			continue
		}
		actID := activity.ID
		fired, err := e.trigger(ctx, a, user, &actID, content, now)
		if err != nil {
			res.Errors++
			e.record(model.AlertTypeWhale, "error")
			e.log.Error("whale alert trigger failed",
				zap.Int64("alert_id", a.ID),
				zap.Int64("activity_id", activity.ID),
				zap.Error(err))
			continue
		}
		if fired {
			res.Triggered++
		} else {
			res.Cooldown++
		}
	}
	return res, nil
}

// CheckRecentWhaleActivity 窗口内有新成交的每个鲸鱼评估一次, 使用其成交时间最新的一笔
//
// 按鲸鱼分页, 窗口内成交再多也不会被截断; 冷却保证重复扫描无副作用.
func (e *AlertEngine) CheckRecentWhaleActivity(ctx context.Context, window time.Duration) (*CheckResult, error) {
	since := e.clock.NowMs() - window.Milliseconds()

	total := &CheckResult{}
	whales := 0
	var after int64
	for {
		page, err := e.activities.ListLatestPerWhaleSince(ctx, since, after, recentActivityBatch)
		if err != nil {
			return total, err
		}
		for _, a := range page {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			whales++
			r, err := e.CheckWhaleAlerts(ctx, a.WhaleID, a.ID)
			if err != nil {
				total.Errors++
				e.log.Warn("whale alert check failed", zap.Int64("activity_id", a.ID), zap.Error(err))
				continue
			}
			total.add(r)
		}
		if len(page) < recentActivityBatch {
			break
		}
		after = page[len(page)-1].WhaleID
	}

	e.log.Info("recent whale activity checked",
		zap.Int("whales", whales),
		zap.Int("triggered", total.Triggered),
		zap.Int("errors", total.Errors))
	return total, nil
}

// trigger 在同一事务内记录触发并写入通知, 触发记录不会脱离站内通知单独存在
//
// 其他评估先触发时返回 false. 事务提交后才把邮件交给 dispatcher.
func (e *AlertEngine) trigger(ctx context.Context, a *model.Alert, user *model.User, activityID *int64, content string, now int64) (bool, error) {
	alertID := a.ID
	newRecord := func(channel model.NotificationChannel, status model.NotificationStatus) *model.Notification {
		return &model.Notification{
			UserID:     a.UserID,
			AlertID:    &alertID,
			ActivityID: activityID,
			Type:       a.Type,
			Channel:    channel,
			Status:     status,
			Content:    content,
			SentAt:     now,
			UpdatedAt:  now,
		}
	}

	var fired bool
	var email *model.Notification
	err := e.tx.Transaction(ctx, func(ctx context.Context) error {
		ok, err := e.alerts.MarkTriggered(ctx, a.ID, now, tier.Cooldown(user.Tier).Milliseconds())
		if err != nil || !ok {
			return err
		}
		if err := e.notifications.Create(ctx, newRecord(model.ChannelInApp, model.NotificationSent)); err != nil {
			return err
		}
		if user.WantsEmail() {
			email = newRecord(model.ChannelEmail, model.NotificationPending)
			if err := e.notifications.Create(ctx, email); err != nil {
				return err
			}
		}
		fired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !fired {
		e.record(a.Type, "cooldown")
		return false, nil
	}

	e.record(a.Type, "triggered")
	metrics.NotificationsTotal.WithLabelValues(string(model.ChannelInApp), string(model.NotificationSent)).Inc()
	if email == nil {
		return true, nil
	}
	metrics.NotificationsTotal.WithLabelValues(string(model.ChannelEmail), string(model.NotificationPending)).Inc()

	if e.dispatcher == nil {
		return true, nil
	}
	if err := e.dispatcher.DispatchEmail(ctx, email, user); err != nil {
		e.log.Warn("email dispatch failed",
			zap.Int64("notification_id", email.ID),
			zap.Int64("alert_id", a.ID),
			zap.Error(err))
		msg := errors.Wrap(errors.ErrDispatch, err).Error()
		if _, terr := e.notifications.TransitionFromPending(ctx, email.ID, model.NotificationFailed, &msg, now); terr != nil {
			// 触发已提交, 记录保持 pending
			e.log.Error("mark email failed", zap.Int64("notification_id", email.ID), zap.Error(terr))
			return true, nil
		}
		metrics.NotificationsTotal.WithLabelValues(string(model.ChannelEmail), string(model.NotificationFailed)).Inc()
	}
	return true, nil
}

func (e *AlertEngine) record(t model.AlertType, result string) {
	metrics.AlertsEvaluatedTotal.WithLabelValues(string(t), result).Inc()
}
