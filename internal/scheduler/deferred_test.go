package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeferred_RunsAfterDelay(t *testing.T) {
	d := NewDeferred(context.Background())

	var ran int32
	start := time.Now()
	done := make(chan time.Duration, 1)
	assert.True(t, d.After(50*time.Millisecond, "first", func(ctx context.Context) {
		atomic.StoreInt32(&ran, 1)
		done <- time.Since(start)
	}))

	select {
	case elapsed := <-done:
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred task did not run")
	}
	d.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestDeferred_CancelDropsPendingTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDeferred(ctx)

	var ran int32
	d.After(time.Hour, "never", func(ctx context.Context) { atomic.AddInt32(&ran, 1) })

	cancel()
	d.Wait()
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	assert.False(t, d.After(time.Millisecond, "late", func(ctx context.Context) {}))
}

func TestDeferred_PanicIsContained(t *testing.T) {
	d := NewDeferred(context.Background())

	var ran int32
	d.After(0, "panics", func(ctx context.Context) { panic("chunk exploded") })
	d.After(10*time.Millisecond, "sibling", func(ctx context.Context) { atomic.AddInt32(&ran, 1) })

	d.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestDeferred_WaitRefusesNewTasks(t *testing.T) {
	d := NewDeferred(context.Background())

	var ran int32
	started := make(chan struct{})
	release := make(chan struct{})
	d.After(0, "chunk", func(ctx context.Context) {
		close(started)
		<-release
		atomic.AddInt32(&ran, 1)
	})
	<-started

	waited := make(chan struct{})
	go func() {
		d.Wait()
		close(waited)
	}()

	assert.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.stopped
	}, time.Second, time.Millisecond)

	// Wait 开始后再排期的任务 (例如续跑) 被拒绝
	assert.False(t, d.After(0, "continuation", func(ctx context.Context) { atomic.AddInt32(&ran, 10) }))

	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}
