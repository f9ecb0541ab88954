package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos-whalesync/internal/service"
	"github.com/eidos-exchange/eidos-whalesync/internal/tier"
)

// FeedReader 分级信息流查询
type FeedReader interface {
	Feed(ctx context.Context, t tier.Tier, before int64, limit int) (*service.FeedPage, error)
}

// FeedHandler 按等级延迟的鲸鱼成交信息流
type FeedHandler struct {
	feed FeedReader
}

func NewFeedHandler(feed FeedReader) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// Feed GET /api/v1/feed?tier=&before=&limit=
//
// tier 默认 free, before 为不含边界的事件时间游标
func (h *FeedHandler) Feed(c *gin.Context) {
	t := tier.Free
	if raw := c.Query("tier"); raw != "" {
		parsed, err := tier.Parse(raw)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		t = parsed
	}
	before, ok := intQuery(c, "before", 0)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}

	page, err := h.feed.Feed(c.Request.Context(), t, before, int(limit))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, page)
}
