package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
	"github.com/eidos-exchange/eidos-whalesync/internal/testutil"
)

func TestExecutionRepository_CreateAndLatest(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewExecutionRepository(db)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	first := &model.JobExecution{JobName: "market_sync", Status: model.JobStatusSuccess, StartedAt: now - 1000}
	second := &model.JobExecution{JobName: "market_sync", Status: model.JobStatusRunning, StartedAt: now,
		Result: model.JSONResult{"processed_count": 3}}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.NotZero(t, second.ID)
	assert.NotZero(t, second.CreatedAt)

	latest, err := repo.GetLatestByJobName(ctx, "market_sync")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.EqualValues(t, 3, latest.Result["processed_count"])

	missing, err := repo.GetLatestByJobName(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestExecutionRepository_GetLastSuccessTime(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewExecutionRepository(db)
	ctx := context.Background()

	ts, err := repo.GetLastSuccessTime(ctx, "whale_sync")
	require.NoError(t, err)
	assert.Zero(t, ts)

	finished := int64(5000)
	require.NoError(t, repo.Create(ctx, &model.JobExecution{
		JobName: "whale_sync", Status: model.JobStatusSuccess, StartedAt: 4000, FinishedAt: &finished,
	}))

	ts, err = repo.GetLastSuccessTime(ctx, "whale_sync")
	require.NoError(t, err)
	assert.Equal(t, finished, ts)
}

func TestExecutionRepository_MarkStaleRunningAsFailed(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewExecutionRepository(db)
	ctx := context.Background()

	stale := &model.JobExecution{JobName: "leaderboard_sync", Status: model.JobStatusRunning,
		StartedAt: time.Now().Add(-2 * time.Hour).UnixMilli()}
	fresh := &model.JobExecution{JobName: "leaderboard_sync", Status: model.JobStatusRunning,
		StartedAt: time.Now().UnixMilli()}
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))

	n, err := repo.MarkStaleRunningAsFailed(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	execs, err := repo.ListByJobName(ctx, "leaderboard_sync", 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, model.JobStatusRunning, execs[0].Status)
	assert.Equal(t, model.JobStatusFailed, execs[1].Status)
}

func TestExecutionRepository_CleanupOldRecords(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewExecutionRepository(db)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, repo.Create(ctx, &model.JobExecution{JobName: "x", Status: model.JobStatusSuccess, StartedAt: i}))
	}

	n, err := repo.CleanupOldRecords(ctx, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	execs, err := repo.ListByJobName(ctx, "x", 10)
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}
