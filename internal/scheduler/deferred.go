package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos-whalesync/internal/metrics"
	"github.com/eidos-exchange/eidos-whalesync/pkg/logger"
)

// Deferred 延迟任务执行器
//
// 每个任务独立排期, 调用方不等待结果; 任务结果只体现在任务自身的日志和存储副作用上.
// 父 context 取消后未到期的任务直接丢弃, 已开始的任务收到取消信号.
type Deferred struct {
	ctx context.Context
	log *zap.Logger

	// mu 保证 wg.Add 不会与 Wait 并发
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDeferred 创建延迟任务执行器
func NewDeferred(ctx context.Context) *Deferred {
	return &Deferred{
		ctx: ctx,
		log: logger.Named("deferred"),
	}
}

// After 在 delay 之后执行 fn, 执行器已停止时返回 false
func (d *Deferred) After(delay time.Duration, name string, fn func(ctx context.Context)) bool {
	d.mu.Lock()
	if d.stopped || d.ctx.Err() != nil {
		d.mu.Unlock()
		d.log.Warn("deferred task dropped, runner stopped", zap.String("task", name))
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	metrics.DeferredTasksGauge.Inc()
	go func() {
		defer d.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-d.ctx.Done():
			metrics.DeferredTasksGauge.Dec()
			d.log.Debug("deferred task canceled before start", zap.String("task", name))
			return
		case <-timer.C:
		}
		metrics.DeferredTasksGauge.Dec()

		defer func() {
			if r := recover(); r != nil {
				d.log.Error("deferred task panicked",
					zap.String("task", name),
					zap.Any("panic", r))
			}
		}()
		fn(d.ctx)
	}()
	return true
}

// Wait 停止接收新任务, 并等待全部已排期任务退出
func (d *Deferred) Wait() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.wg.Wait()
}
