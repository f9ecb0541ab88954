package tier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeVisibility(t *testing.T) {
	const ts int64 = 1_700_000_000_000
	v := ComputeVisibility(ts)

	assert.Equal(t, ts, v.Top)
	assert.Equal(t, ts+30_000, v.Mid)
	assert.Equal(t, ts+900_000, v.Free)
	assert.Equal(t, v.Top, v.For(ProPlus))
	assert.Equal(t, v.Mid, v.For(Pro))
	assert.Equal(t, v.Free, v.For(Free))
}

func TestComputeVisibility_Ordering(t *testing.T) {
	for _, ts := range []int64{0, 1, 59_999, 1_700_000_000_000, 4_102_444_800_000} {
		v := ComputeVisibility(ts)
		assert.LessOrEqual(t, v.Top, v.Mid)
		assert.LessOrEqual(t, v.Mid, v.Free)
	}
}

func TestCooldown(t *testing.T) {
	assert.Equal(t, time.Hour, Cooldown(Free))
	assert.Equal(t, 30*time.Minute, Cooldown(Pro))
	assert.Equal(t, 15*time.Minute, Cooldown(ProPlus))
}

func TestInCooldown_Boundary(t *testing.T) {
	const now int64 = 10_000_000
	for _, tr := range All {
		cd := Cooldown(tr).Milliseconds()

		justInside := now - (cd - 1)
		assert.True(t, InCooldown(tr, &justInside, now), tr)

		exact := now - cd
		assert.False(t, InCooldown(tr, &exact, now), tr)
	}
	assert.False(t, InCooldown(Free, nil, now))
}

func TestCanAddAlert(t *testing.T) {
	assert.True(t, CanAddAlert(Free, 2))
	assert.False(t, CanAddAlert(Free, 3))
	assert.True(t, CanAddAlert(Pro, 49))
	assert.False(t, CanAddAlert(Pro, 50))
	assert.True(t, CanAddAlert(ProPlus, 10_000))
}

func TestParse(t *testing.T) {
	tr, err := Parse("pro_plus")
	require.NoError(t, err)
	assert.Equal(t, ProPlus, tr)

	_, err = Parse("gold")
	assert.Error(t, err)
}
