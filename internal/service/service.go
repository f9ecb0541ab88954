// Package service 位于同步任务, HTTP 接口与仓储之间的合并, 提醒和查询逻辑
package service

import (
	"context"
	"time"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// Clock 返回当前时间, 每个操作只读取一次
type Clock func() time.Time

// NowMs 当前毫秒时间戳
func (c Clock) NowMs() int64 {
	if c == nil {
		return time.Now().UnixMilli()
	}
	return c().UnixMilli()
}

// EmailDispatcher 把 pending 邮件通知交给投递渠道
//
// 投递在服务外完成, 最终状态通过 NotificationService 回报.
type EmailDispatcher interface {
	DispatchEmail(ctx context.Context, n *model.Notification, user *model.User) error
}

// WhaleAlertChecker 对一笔新成交执行鲸鱼提醒评估
type WhaleAlertChecker interface {
	CheckWhaleAlerts(ctx context.Context, whaleID, activityID int64) (*CheckResult, error)
}

// CheckResult 一轮提醒评估的统计
type CheckResult struct {
	Checked   int `json:"checked"`
	Triggered int `json:"triggered"`
	Cooldown  int `json:"cooldown"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

func (r *CheckResult) add(o *CheckResult) {
	if o == nil {
		return
	}
	r.Checked += o.Checked
	r.Triggered += o.Triggered
	r.Cooldown += o.Cooldown
	r.Skipped += o.Skipped
	r.Errors += o.Errors
}
