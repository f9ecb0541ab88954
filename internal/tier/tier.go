// Package tier 订阅等级规则: 推送延迟, 提醒冷却和数量限制
//
// 入库, 提醒引擎和信息流共用.
package tier

import (
	"fmt"
	"time"
)

// Tier 用户订阅等级
type Tier string

const (
	Free    Tier = "free"
	Pro     Tier = "pro"      // 中档
	ProPlus Tier = "pro_plus" // 顶档
)

// All 由低到高列出全部等级
var All = []Tier{Free, Pro, ProPlus}

// Parse 校验等级名称
func Parse(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Valid 是否为已知等级
func (t Tier) Valid() bool {
	switch t {
	case Free, Pro, ProPlus:
		return true
	}
	return false
}

const (
	midDelay  = 30 * time.Second
	freeDelay = 15 * time.Minute
)

// Visibility 事件对各等级可见的时刻 (毫秒), Top <= Mid <= Free
type Visibility struct {
	Top  int64
	Mid  int64
	Free int64
}

// ComputeVisibility 由事件时间 (毫秒) 计算各等级可见时刻
func ComputeVisibility(eventTimestamp int64) Visibility {
	return Visibility{
		Top:  eventTimestamp,
		Mid:  eventTimestamp + midDelay.Milliseconds(),
		Free: eventTimestamp + freeDelay.Milliseconds(),
	}
}

// For 返回等级 t 的可见时刻, 未知等级按免费档延迟
func (v Visibility) For(t Tier) int64 {
	switch t {
	case ProPlus:
		return v.Top
	case Pro:
		return v.Mid
	default:
		return v.Free
	}
}

// Cooldown 同一提醒两次触发的最小间隔
func Cooldown(t Tier) time.Duration {
	switch t {
	case ProPlus:
		return 15 * time.Minute
	case Pro:
		return 30 * time.Minute
	default:
		return time.Hour
	}
}

// InCooldown 上次触发于 lastTriggeredAt (毫秒, 从未触发为 nil) 的提醒在 now 时是否仍在冷却
//
// 间隔恰好等于冷却时长时视为已结束冷却.
func InCooldown(t Tier, lastTriggeredAt *int64, now int64) bool {
	if lastTriggeredAt == nil {
		return false
	}
	return now-*lastTriggeredAt < Cooldown(t).Milliseconds()
}

// Unlimited 不设上限
const Unlimited = -1

// Limits 各等级的资源配额
type Limits struct {
	MaxAlerts int
}

// LimitsFor 返回等级 t 的配额
func LimitsFor(t Tier) Limits {
	switch t {
	case ProPlus:
		return Limits{MaxAlerts: Unlimited}
	case Pro:
		return Limits{MaxAlerts: 50}
	default:
		return Limits{MaxAlerts: 3}
	}
}

// CanAddAlert 已有 current 个提醒的用户能否再创建一个
func CanAddAlert(t Tier, current int) bool {
	limit := LimitsFor(t).MaxAlerts
	return limit == Unlimited || current < limit
}
