package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/repository"
	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/internal/testutil"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db            *gorm.DB
	now           time.Time
	markets       *repository.MarketRepository
	whales        *repository.WhaleRepository
	activities    *repository.ActivityRepository
	alerts        *repository.AlertRepository
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
	syncRuns      *repository.SyncRunRepository
	executions    *repository.ExecutionRepository
	deferrer      *fakeDeferrer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	return &testEnv{
		db:            db,
		now:           baseTime,
		markets:       repository.NewMarketRepository(db),
		whales:        repository.NewWhaleRepository(db),
		activities:    repository.NewActivityRepository(db),
		alerts:        repository.NewAlertRepository(db),
		users:         repository.NewUserRepository(db),
		notifications: repository.NewNotificationRepository(db),
		syncRuns:      repository.NewSyncRunRepository(db),
		executions:    repository.NewExecutionRepository(db),
		deferrer:      &fakeDeferrer{},
	}
}

func (e *testEnv) clock() time.Time { return e.now }

func (e *testEnv) nowMs() int64 { return e.now.UnixMilli() }

func (e *testEnv) tracker() *SyncTracker {
	return NewSyncTracker(e.syncRuns, e.clock)
}

func (e *testEnv) ingestion() *service.IngestionService {
	return service.NewIngestionService(e.markets, e.whales, e.activities, nil, e.clock)
}

func (e *testEnv) engine() *service.AlertEngine {
	return service.NewAlertEngine(e.alerts, e.markets, e.whales, e.activities, e.users, e.notifications, repository.NewTransactor(e.db), nil, e.clock)
}

// lastRun 返回某类型最近一次同步记录
func (e *testEnv) lastRun(t *testing.T, syncType model.SyncType) *model.SyncRun {
	t.Helper()
	runs, err := e.syncRuns.List(context.Background(), syncType, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func (e *testEnv) market(t *testing.T, externalID string, yesToken, noToken string) *model.Market {
	t.Helper()
	ctx := context.Background()
	m := &model.Market{
		Platform:   model.PlatformOpinionTrade,
		ExternalID: externalID,
		Title:      "Market " + externalID,
		Category:   "prediction",
		YesPrice:   0.5,
		NoPrice:    0.5,
		CreatedAt:  e.nowMs(),
		UpdatedAt:  e.nowMs(),
	}
	if yesToken != "" {
		m.YesTokenID = &yesToken
	}
	if noToken != "" {
		m.NoTokenID = &noToken
	}
	require.NoError(t, e.markets.Upsert(ctx, m))
	got, err := e.markets.GetByExternalID(ctx, model.PlatformOpinionTrade, externalID)
	require.NoError(t, err)
	return got
}

func (e *testEnv) whale(t *testing.T, address string) *model.Whale {
	t.Helper()
	w, err := e.ingestion().UpsertWhale(context.Background(), service.WhaleUpdate{Address: address})
	require.NoError(t, err)
	return w
}

func (e *testEnv) user(t *testing.T, tr tier.Tier) *model.User {
	t.Helper()
	u := &model.User{Tier: tr, CreatedAt: e.nowMs(), UpdatedAt: e.nowMs()}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func testSyncConfig() SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.MarketPageDelay = 0
	cfg.WhaleRequestDelay = 0
	cfg.LeaderboardDelay = 0
	cfg.CleanupContinuationDelay = 0
	return cfg
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// fakeDeferrer 记录排期的任务, 由测试按顺序手动执行
type fakeDeferrer struct {
	mu    sync.Mutex
	tasks []deferredTask
	ran   int
}

type deferredTask struct {
	delay time.Duration
	name  string
	fn    func(ctx context.Context)
}

func (d *fakeDeferrer) After(delay time.Duration, name string, fn func(ctx context.Context)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, deferredTask{delay: delay, name: name, fn: fn})
	return true
}

func (d *fakeDeferrer) pending() []deferredTask {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deferredTask(nil), d.tasks...)
}

// runNext 执行最早排期的任务, 没有任务时返回 false
func (d *fakeDeferrer) runNext() bool {
	d.mu.Lock()
	if len(d.tasks) == 0 {
		d.mu.Unlock()
		return false
	}
	task := d.tasks[0]
	d.tasks = d.tasks[1:]
	d.ran++
	d.mu.Unlock()

	task.fn(context.Background())
	return true
}

// drain 执行任务直到队列为空 (任务可能继续排期), 返回执行次数
func (d *fakeDeferrer) drain(t *testing.T, limit int) int {
	t.Helper()
	n := 0
	for d.runNext() {
		n++
		require.LessOrEqual(t, n, limit, "deferred tasks did not settle")
	}
	return n
}

// fakeUpstream 实现全部上游接口
type fakeUpstream struct {
	mu sync.Mutex

	marketPages map[int]*client.RawPage
	marketErr   error
	marketCalls int

	trades     map[string]*client.RawPage
	tradeErrs  map[string]error
	tradeCalls []string

	boards     map[string][]json.RawMessage
	boardErrs  map[string]error
	boardCalls []string

	prices     map[string]string
	priceErrs  map[string]error
	priceCalls int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		marketPages: map[int]*client.RawPage{},
		trades:      map[string]*client.RawPage{},
		tradeErrs:   map[string]error{},
		boards:      map[string][]json.RawMessage{},
		boardErrs:   map[string]error{},
		prices:      map[string]string{},
		priceErrs:   map[string]error{},
	}
}

func (f *fakeUpstream) ListMarkets(_ context.Context, page, _ int) (*client.RawPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketCalls++
	if f.marketErr != nil {
		return nil, f.marketErr
	}
	if p, ok := f.marketPages[page]; ok {
		return p, nil
	}
	return &client.RawPage{List: []json.RawMessage{}}, nil
}

func (f *fakeUpstream) ListUserTrades(ctx context.Context, address string, _ int) (*client.RawPage, error) {
	f.mu.Lock()
	f.tradeCalls = append(f.tradeCalls, address)
	err, page := f.tradeErrs[address], f.trades[address]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if page == nil {
		return &client.RawPage{List: []json.RawMessage{}}, nil
	}
	return page, nil
}

func boardKey(dataType string, period int) string {
	return fmt.Sprintf("%s/%d", dataType, period)
}

func (f *fakeUpstream) Leaderboard(_ context.Context, dataType string, period int) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := boardKey(dataType, period)
	f.boardCalls = append(f.boardCalls, key)
	if err := f.boardErrs[key]; err != nil {
		return nil, err
	}
	return f.boards[key], nil
}

func (f *fakeUpstream) LatestTokenPrice(_ context.Context, tokenID string) (*client.TokenPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if err := f.priceErrs[tokenID]; err != nil {
		return nil, err
	}
	p, ok := f.prices[tokenID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUpstream, "token %s: no trades", tokenID)
	}
	return client.DecodeTokenPrice(json.RawMessage(fmt.Sprintf(`{"tokenId":%q,"price":%q,"side":"BUY"}`, tokenID, p)))
}
