package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

func TestFeed_TierDelays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "1", "M", 0.5)
	w := env.whale(t, "0xw", strPtr("orca"))
	svc := NewFeedService(env.activities, env.whales, env.markets, env.clock.Now)

	now := env.NowMs()
	createActivity(t, env, w.ID, m.ID, now-time.Hour.Milliseconds(), "1")      // visible to all
	createActivity(t, env, w.ID, m.ID, now-5*time.Minute.Milliseconds(), "2")  // top + mid
	createActivity(t, env, w.ID, m.ID, now-10*time.Second.Milliseconds(), "3") // top only

	counts := map[tier.Tier]int{tier.ProPlus: 3, tier.Pro: 2, tier.Free: 1}
	for tr, want := range counts {
		page, err := svc.Feed(ctx, tr, 0, 0)
		require.NoError(t, err)
		assert.Len(t, page.Items, want, tr)
		for _, it := range page.Items {
			assert.LessOrEqual(t, it.VisibleAt, now)
			assert.Equal(t, "orca", *it.Whale.Nickname)
			assert.Equal(t, "M", it.Market.Title)
		}
	}
}

func TestFeed_Cursor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	m := env.market(t, "1", "M", 0.5)
	w := env.whale(t, "0xw", nil)
	svc := NewFeedService(env.activities, env.whales, env.markets, env.clock.Now)

	now := env.NowMs()
	for i := int64(1); i <= 5; i++ {
		createActivity(t, env, w.ID, m.ID, now-i*1000, "1")
	}

	page, err := svc.Feed(ctx, tier.ProPlus, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, now-1000, page.Items[0].Timestamp)
	assert.Equal(t, now-2000, page.NextBefore)

	page, err = svc.Feed(ctx, tier.ProPlus, page.NextBefore, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Zero(t, page.NextBefore)

	_, err = svc.Feed(ctx, "gold", 0, 10)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}
