package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

var hundred = decimal.NewFromInt(100)

// PriceAlertContent 生成 "<title> reached <pct>%"
func PriceAlertContent(m *model.Market) string {
	pct := decimal.NewFromFloat(m.YesPrice).Mul(hundred).Round(0)
	return fmt.Sprintf("%s reached %s%%", m.Title, pct.String())
}

// WhaleAlertContent 生成 "<whale> <buy|sell> $<amount> on <market>", 市场缺失时为 "a market"
func WhaleAlertContent(w *model.Whale, a *model.Activity, m *model.Market) string {
	title := "a market"
	if m != nil && m.Title != "" {
		title = m.Title
	}
	return fmt.Sprintf("%s %s $%s on %s",
		w.DisplayName(), strings.ToLower(string(a.Action)), FormatAmount(a.Amount), title)
}

// FormatAmount 保留两位小数, 去掉末尾的 0, 整数部分千分位分组: 1234.5 -> "1,234.5"
func FormatAmount(d decimal.Decimal) string {
	s := d.Round(2).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
