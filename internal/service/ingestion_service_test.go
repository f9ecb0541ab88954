package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
)

type recordingChecker struct {
	calls [][2]int64
}

func (c *recordingChecker) CheckWhaleAlerts(_ context.Context, whaleID, activityID int64) (*CheckResult, error) {
	c.calls = append(c.calls, [2]int64{whaleID, activityID})
	return &CheckResult{}, nil
}

func (e *testEnv) ingestion(checker WhaleAlertChecker) *IngestionService {
	return NewIngestionService(e.markets, e.whales, e.activities, checker, e.clock.Now)
}

func trade(marketID string, ts int64, amount string) *client.Trade {
	return &client.Trade{
		MarketExternalID: marketID,
		Amount:           decimal.RequireFromString(amount),
		Price:            decimal.RequireFromString("0.5"),
		Timestamp:        ts,
	}
}

func TestUpsertMarket_InsertThenUpdateKeepsPrices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.ingestion(nil)

	flat := client.FlatMarket{
		ExternalID:       "77",
		Title:            "Parent: Child",
		Rules:            "rules",
		ThumbnailURL:     "thumb.png",
		YesTokenID:       "y",
		NoTokenID:        "n",
		Volume:           "12.5",
		Volume24h:        "oops",
		ChainID:          "56",
		CutoffAt:         1000,
		ParentExternalID: "7",
	}
	require.NoError(t, svc.UpsertMarket(ctx, flat))

	m, err := env.markets.GetByExternalID(ctx, model.PlatformOpinionTrade, "77")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 0.5, m.YesPrice)
	assert.Equal(t, 0.5, m.NoPrice)
	assert.Equal(t, 12.5, m.Volume)
	assert.Equal(t, 0.0, m.Volume24h)
	assert.Equal(t, "prediction", m.Category)
	assert.Equal(t, "https://app.opinion.trade/detail?topicId=77", m.URL)
	assert.Equal(t, "thumb.png", *m.ImageURL)
	assert.Equal(t, 56, *m.ChainID)
	assert.Equal(t, int64(1000), *m.EndDate)
	assert.Nil(t, m.ResolvedAt)
	assert.Equal(t, "7", *m.ParentExternalID)
	assert.True(t, m.HasTokens())

	yes := 0.81
	require.NoError(t, env.markets.UpdatePrices(ctx, m.ID, &yes, nil, env.NowMs()))

	flat.Title = "Parent: Renamed"
	flat.ResolvedAt = 2000
	require.NoError(t, svc.UpsertMarket(ctx, flat))

	m2, err := env.markets.GetByExternalID(ctx, model.PlatformOpinionTrade, "77")
	require.NoError(t, err)
	assert.Equal(t, m.ID, m2.ID)
	assert.Equal(t, "Parent: Renamed", m2.Title)
	assert.Equal(t, 0.81, m2.YesPrice)
	assert.Equal(t, int64(2000), *m2.ResolvedAt)
}

func TestUpsertWhale_Persists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.ingestion(nil)

	lb := model.WhaleDataTypeLeaderboard
	_, err := svc.UpsertWhale(ctx, WhaleUpdate{Address: "0xw", DataType: &lb, Stats: map[WhaleStat]float64{StatTotalPoints: 9}})
	require.NoError(t, err)
	other := model.WhaleDataTypeOther
	_, err = svc.UpsertWhale(ctx, WhaleUpdate{Address: "0xw", DataType: &other, Nickname: strPtr("w")})
	require.NoError(t, err)

	w, err := env.whales.GetByAddress(ctx, "0xw")
	require.NoError(t, err)
	assert.Equal(t, model.WhaleDataTypeLeaderboard, *w.DataType)
	assert.Equal(t, "w", *w.Nickname)
	assert.Equal(t, 9.0, *w.TotalPoints)
	assert.Equal(t, model.StringList{model.PlatformOpinionTrade}, w.Platforms)
}

func TestIngestWhaleTrades_Watermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.market(t, "5", "M", 0.5)
	w := env.whale(t, "0xw", nil)
	checker := &recordingChecker{}
	svc := env.ingestion(checker)

	first := []*client.Trade{trade("5", 3000, "30"), trade("5", 2000, "20"), trade("404", 2500, "1")}
	res, err := svc.IngestWhaleTrades(ctx, w, 12, first)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, checker.calls, 2)

	stored, err := env.whales.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), *stored.TradeCount)
	assert.Equal(t, int64(3000), stored.LastActiveAt)

	// re-running the same page never duplicates rows
	res, err = svc.IngestWhaleTrades(ctx, w, 12, first)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 3, res.Skipped)

	second := []*client.Trade{trade("5", 4000, "40"), trade("5", 3000, "30")}
	res, err = svc.IngestWhaleTrades(ctx, w, 13, second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	n, err := env.activities.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	latest, err := env.activities.LatestTimestamp(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), latest)
}

func TestIngestWhaleTrades_Visibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "5", "M", 0.5)
	w := env.whale(t, "0xw", nil)

	tr := trade("5", 1_700_000_000_000, "100")
	tr.Sell = true
	tr.TxHash = "0xtx"
	_, err := env.ingestion(nil).IngestWhaleTrades(ctx, w, 1, []*client.Trade{tr})
	require.NoError(t, err)

	items, err := env.activities.ListVisible(ctx, tier.ProPlus, 1_700_000_000_000, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	a := items[0]
	assert.Equal(t, m.ID, a.MarketID)
	assert.Equal(t, model.TradeActionSell, a.Action)
	assert.Equal(t, "0xtx", *a.TxHash)
	assert.Equal(t, int64(1_700_000_000_000), a.VisibleToTopAt)
	assert.Equal(t, int64(1_700_000_030_000), a.VisibleToMidAt)
	assert.Equal(t, int64(1_700_000_900_000), a.VisibleToFreeAt)
	assert.True(t, a.Amount.Equal(decimal.NewFromInt(100)))
}

func TestIngestWhaleTrades_ZeroTotalLeavesStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.whale(t, "0xw", nil)

	res, err := env.ingestion(nil).IngestWhaleTrades(ctx, w, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)

	stored, _ := env.whales.GetByID(ctx, w.ID)
	assert.Nil(t, stored.TradeCount)
}

type hookChecker struct {
	calls int
	hook  func()
}

func (c *hookChecker) CheckWhaleAlerts(context.Context, int64, int64) (*CheckResult, error) {
	c.calls++
	if c.hook != nil {
		c.hook()
		c.hook = nil
	}
	return &CheckResult{}, nil
}

func TestIngestWhaleTrades_OverlappingRunStoresTradeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "5", "M", 0.5)
	w := env.whale(t, "0xw", nil)

	page := []*client.Trade{trade("5", 2000, "20"), trade("5", 1000, "10")}
	// another run read the same watermark and stores the newer trade
	// while this run is still working through the page
	checker := &hookChecker{hook: func() {
		require.NoError(t, env.activities.Create(ctx, newActivity(w.ID, m.ID, page[0], env.NowMs())))
	}}

	res, err := env.ingestion(checker).IngestWhaleTrades(ctx, w, 2, page)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 1, checker.calls)

	n, err := env.activities.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
