package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos-whalesync/internal/client"
	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
	"github.com/eidos-exchange/eidos-whalesync/pkg/retry"
)

func testRetrier() *retry.Retrier {
	return retry.New(retry.Config{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 2})
}

func binaryMarket(id int64, title string) map[string]interface{} {
	return map[string]interface{}{
		"marketId":    id,
		"marketTitle": title,
		"marketType":  client.MarketTypeBinary,
		"yesTokenId":  "",
		"noTokenId":   "",
		"volume":      "100",
	}
}

func TestMarketSync_PaginatesAndFlattens(t *testing.T) {
	env := newTestEnv(t)
	src := newFakeUpstream()

	categorical := map[string]interface{}{
		"marketId":    int64(10),
		"marketTitle": "Who wins",
		"marketType":  client.MarketTypeCategorical,
		"childMarkets": []map[string]interface{}{
			{"marketId": 11, "marketTitle": "Alice", "yesTokenId": "y11", "noTokenId": "n11"},
			{"marketId": 12, "marketTitle": "Bob", "yesTokenId": "", "noTokenId": "n12"},
		},
	}
	page1 := []json.RawMessage{mustJSON(t, binaryMarket(1, "One")), mustJSON(t, categorical)}
	page2 := []json.RawMessage{
		mustJSON(t, binaryMarket(2, "Two")),
		json.RawMessage(`{"marketId":3,"marketTitle":"  "}`),
	}
	src.marketPages[1] = &client.RawPage{Total: 4, List: page1}
	src.marketPages[2] = &client.RawPage{Total: 4, List: page2}

	cfg := testSyncConfig()
	cfg.MarketPageSize = 2
	job := NewMarketSyncJob(src, env.ingestion(), env.tracker(), testRetrier(), cfg)

	res, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.marketCalls)
	assert.Equal(t, 3, res.ProcessedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, "Processed: 3, Errors: 0, Skipped: 1", res.Summary)

	ctx := context.Background()
	child, err := env.markets.GetByExternalID(ctx, model.PlatformOpinionTrade, "11")
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, "Who wins: Alice", child.Title)
	assert.Equal(t, "10", *child.ParentExternalID)

	parent, err := env.markets.GetByExternalID(ctx, model.PlatformOpinionTrade, "10")
	require.NoError(t, err)
	assert.Nil(t, parent)

	// 没有 token 的二元市场照样入库
	one, err := env.markets.GetByExternalID(ctx, model.PlatformOpinionTrade, "1")
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.False(t, one.HasTokens())

	run := env.lastRun(t, model.SyncTypeMarkets)
	assert.Equal(t, model.SyncStatusCompleted, run.Status)
	assert.Equal(t, int64(3), *run.ItemCount)
	require.NotNil(t, run.Error)
	assert.Equal(t, "Processed: 3, Errors: 0, Skipped: 1", *run.Error)
}

func TestMarketSync_StopsOnEmptyPage(t *testing.T) {
	env := newTestEnv(t)
	src := newFakeUpstream()
	src.marketPages[1] = &client.RawPage{Total: 100, List: []json.RawMessage{mustJSON(t, binaryMarket(1, "One"))}}

	job := NewMarketSyncJob(src, env.ingestion(), env.tracker(), testRetrier(), testSyncConfig())
	res, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.marketCalls)
	assert.Equal(t, 1, res.ProcessedCount)

	run := env.lastRun(t, model.SyncTypeMarkets)
	assert.Nil(t, run.Error)
}

func TestMarketSync_FetchFailureRetriedThenMarksRunFailed(t *testing.T) {
	env := newTestEnv(t)
	src := newFakeUpstream()
	src.marketErr = errors.Wrapf(errors.ErrUpstream, "GET /market: status 502")

	job := NewMarketSyncJob(src, env.ingestion(), env.tracker(), testRetrier(), testSyncConfig())
	_, err := job.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUpstream))
	assert.Equal(t, 2, src.marketCalls)

	run := env.lastRun(t, model.SyncTypeMarkets)
	assert.Equal(t, model.SyncStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, *run.Error, "status 502")
	require.NotNil(t, run.EndedAt)
}

func TestMarketSync_ConfigurationErrorNotRetried(t *testing.T) {
	env := newTestEnv(t)
	src := newFakeUpstream()
	src.marketErr = errors.Wrapf(errors.ErrConfiguration, "upstream api key is not set")

	job := NewMarketSyncJob(src, env.ingestion(), env.tracker(), testRetrier(), testSyncConfig())
	_, err := job.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, src.marketCalls)
	assert.Equal(t, model.SyncStatusFailed, env.lastRun(t, model.SyncTypeMarkets).Status)
}

func TestMarketSync_AllInvalidIsFailed(t *testing.T) {
	env := newTestEnv(t)
	src := newFakeUpstream()
	src.marketPages[1] = &client.RawPage{Total: 1, List: []json.RawMessage{json.RawMessage(`{"marketTitle":"no id"}`)}}

	job := NewMarketSyncJob(src, env.ingestion(), env.tracker(), testRetrier(), testSyncConfig())
	res, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.ProcessedCount)
	assert.Equal(t, model.SyncStatusFailed, env.lastRun(t, model.SyncTypeMarkets).Status)
}
