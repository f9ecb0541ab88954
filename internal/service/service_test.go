package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/testutil"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db            *gorm.DB
	clock         *fakeClock
	markets       *repository.MarketRepository
	whales        *repository.WhaleRepository
	activities    *repository.ActivityRepository
	alerts        *repository.AlertRepository
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	return &testEnv{
		db:            db,
		clock:         &fakeClock{now: baseTime},
		markets:       repository.NewMarketRepository(db),
		whales:        repository.NewWhaleRepository(db),
		activities:    repository.NewActivityRepository(db),
		alerts:        repository.NewAlertRepository(db),
		users:         repository.NewUserRepository(db),
		notifications: repository.NewNotificationRepository(db),
	}
}

func (e *testEnv) NowMs() int64 { return e.clock.Now().UnixMilli() }

func (e *testEnv) engine(d EmailDispatcher) *AlertEngine {
	return NewAlertEngine(e.alerts, e.markets, e.whales, e.activities, e.users, e.notifications, repository.NewTransactor(e.db), d, e.clock.Now)
}

func (e *testEnv) user(t *testing.T, tr tier.Tier, email string) *model.User {
	t.Helper()
	u := &model.User{Tier: tr, CreatedAt: e.NowMs(), UpdatedAt: e.NowMs()}
	if email != "" {
		u.Email = &email
		u.EmailNotifications = true
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) market(t *testing.T, externalID, title string, yes float64) *model.Market {
	t.Helper()
	ctx := context.Background()
	m := &model.Market{
		Platform:   model.PlatformOpinionTrade,
		ExternalID: externalID,
		Title:      title,
		Category:   "prediction",
		YesPrice:   yes,
		NoPrice:    1 - yes,
		CreatedAt:  e.NowMs(),
		UpdatedAt:  e.NowMs(),
	}
	require.NoError(t, e.markets.Upsert(ctx, m))
	got, err := e.markets.GetByExternalID(ctx, model.PlatformOpinionTrade, externalID)
	require.NoError(t, err)
	return got
}

func (e *testEnv) whale(t *testing.T, address string, nickname *string) *model.Whale {
	t.Helper()
	w, err := e.whales.UpsertMerged(context.Background(), address, func(existing *model.Whale) *model.Whale {
		return MergeWhale(existing, WhaleUpdate{Address: address, Nickname: nickname}, e.NowMs())
	})
	require.NoError(t, err)
	return w
}

func (e *testEnv) priceAlert(t *testing.T, userID, marketID int64, op model.AlertOperator, v float64) *model.Alert {
	t.Helper()
	a, err := model.NewAlert(userID, model.PriceTarget{MarketID: marketID, Condition: model.Condition{Operator: op, Value: v}}, e.NowMs())
	require.NoError(t, err)
	require.NoError(t, e.alerts.Create(context.Background(), a))
	return a
}

func (e *testEnv) whaleAlert(t *testing.T, userID, whaleID int64) *model.Alert {
	t.Helper()
	a, err := model.NewAlert(userID, model.WhaleTarget{WhaleID: whaleID}, e.NowMs())
	require.NoError(t, err)
	require.NoError(t, e.alerts.Create(context.Background(), a))
	return a
}

func strPtr(s string) *string { return &s }
