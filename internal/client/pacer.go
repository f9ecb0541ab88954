package client

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// MaxRequestsPerSecond 上游限速上限
const MaxRequestsPerSecond = 15

// Pacer 按固定间隔放行请求, 第一次 Wait 立即返回
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer 每个 interval 放行一次, interval <= 0 时不限速
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait 阻塞到允许下一次请求或 ctx 结束
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// BatchInterval 每批 batchSize 个并发请求之间的间隔
//
// 保证总速率不超过 MaxRequestsPerSecond, 且不小于 floor.
func BatchInterval(batchSize int, floor time.Duration) time.Duration {
	need := time.Duration(batchSize) * time.Second / MaxRequestsPerSecond
	if need < floor {
		return floor
	}
	return need
}
