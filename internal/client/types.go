package client

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eidos-exchange/eidos-whalesync/pkg/errors"
)

// 上游市场类型
const (
	MarketTypeBinary      = 0
	MarketTypeCategorical = 1
)

// NumericString 接受 JSON 字符串或数字, 保留原文
//
// 上游对链ID和小数时而加引号时而不加.
type NumericString string

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (s *NumericString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = NumericString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = NumericString(n.String())
	return nil
}

// Float 解析数值, 空串或非数字返回 ok=false
func (s NumericString) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// FloatOrZero 解析失败时返回 0
func (s NumericString) FloatOrZero() float64 {
	f, _ := s.Float()
	return f
}

// ChildMarketRecord 多选市场下可交易的子市场
type ChildMarketRecord struct {
	MarketID    *int64        `json:"marketId"`
	MarketTitle string        `json:"marketTitle"`
	Rules       string        `json:"rules"`
	YesTokenID  string        `json:"yesTokenId"`
	NoTokenID   string        `json:"noTokenId"`
	Volume      NumericString `json:"volume"`
	QuoteToken  string        `json:"quoteToken"`
	ChainID     NumericString `json:"chainId"`
	CutoffAt    int64         `json:"cutoffAt"`
	ResolvedAt  int64         `json:"resolvedAt"`
}

// MarketRecord 上游列出的市场
type MarketRecord struct {
	MarketID     *int64              `json:"marketId"`
	MarketTitle  *string             `json:"marketTitle"`
	MarketType   int                 `json:"marketType"`
	ThumbnailURL string              `json:"thumbnailUrl"`
	Rules        string              `json:"rules"`
	YesTokenID   string              `json:"yesTokenId"`
	NoTokenID    string              `json:"noTokenId"`
	Volume       NumericString       `json:"volume"`
	Volume24h    NumericString       `json:"volume24h"`
	Volume7d     NumericString       `json:"volume7d"`
	QuoteToken   string              `json:"quoteToken"`
	ChainID      NumericString       `json:"chainId"`
	CutoffAt     int64               `json:"cutoffAt"`
	ResolvedAt   int64               `json:"resolvedAt"`
	ChildMarkets []ChildMarketRecord `json:"childMarkets"`
}

// DecodeMarket 解码并校验一个市场: marketId 必须为整数, 标题非空
func DecodeMarket(raw json.RawMessage) (*MarketRecord, error) {
	var m MarketRecord
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.WrapWithCause(errors.ErrValidation, err, "market")
	}
	if m.MarketID == nil {
		return nil, errors.Wrapf(errors.ErrValidation, "market: missing marketId")
	}
	if m.MarketTitle == nil || strings.TrimSpace(*m.MarketTitle) == "" {
		return nil, errors.Wrapf(errors.ErrValidation, "market %d: empty title", *m.MarketID)
	}
	return &m, nil
}

// FlatMarket 展开多选父市场后的写入单元
type FlatMarket struct {
	ExternalID       string
	Title            string
	Rules            string
	ThumbnailURL     string
	YesTokenID       string
	NoTokenID        string
	Volume           NumericString
	Volume24h        NumericString
	Volume7d         NumericString
	QuoteToken       string
	ChainID          NumericString
	CutoffAt         int64
	ResolvedAt       int64
	ParentExternalID string
}

// FlattenMarkets 二元市场原样保留, 多选父市场替换为同时带两个代币ID的子市场
//
// 其他类型丢弃.
func FlattenMarkets(markets []*MarketRecord) []FlatMarket {
	out := make([]FlatMarket, 0, len(markets))
	for _, m := range markets {
		switch m.MarketType {
		case MarketTypeBinary:
			out = append(out, FlatMarket{
				ExternalID:   strconv.FormatInt(*m.MarketID, 10),
				Title:        *m.MarketTitle,
				Rules:        m.Rules,
				ThumbnailURL: m.ThumbnailURL,
				YesTokenID:   m.YesTokenID,
				NoTokenID:    m.NoTokenID,
				Volume:       m.Volume,
				Volume24h:    m.Volume24h,
				Volume7d:     m.Volume7d,
				QuoteToken:   m.QuoteToken,
				ChainID:      m.ChainID,
				CutoffAt:     m.CutoffAt,
				ResolvedAt:   m.ResolvedAt,
			})
		case MarketTypeCategorical:
			parentID := strconv.FormatInt(*m.MarketID, 10)
			for _, c := range m.ChildMarkets {
				if c.MarketID == nil || c.YesTokenID == "" || c.NoTokenID == "" {
					continue
				}
				rules := c.Rules
				if rules == "" {
					rules = m.Rules
				}
				cutoff := c.CutoffAt
				if cutoff == 0 {
					cutoff = m.CutoffAt
				}
				out = append(out, FlatMarket{
					ExternalID:       strconv.FormatInt(*c.MarketID, 10),
					Title:            *m.MarketTitle + ": " + c.MarketTitle,
					Rules:            rules,
					ThumbnailURL:     m.ThumbnailURL,
					YesTokenID:       c.YesTokenID,
					NoTokenID:        c.NoTokenID,
					Volume:           c.Volume,
					QuoteToken:       c.QuoteToken,
					ChainID:          c.ChainID,
					CutoffAt:         cutoff,
					ResolvedAt:       c.ResolvedAt,
					ParentExternalID: parentID,
				})
			}
		}
	}
	return out
}

// TradeRecord 钱包成交历史中的一笔
type TradeRecord struct {
	TxHash      string        `json:"txHash"`
	MarketID    *int64        `json:"marketId"`
	Side        string        `json:"side"`
	Outcome     string        `json:"outcome"`
	OutcomeSide int           `json:"outcomeSide"`
	Price       NumericString `json:"price"`
	Amount      NumericString `json:"amount"`
	CreatedAt   *int64        `json:"createdAt"`
}

// Trade 校验后的成交, 数值已解析, 时间戳为毫秒
type Trade struct {
	MarketExternalID string
	Sell             bool
	Outcome          string
	OutcomeSide      int
	Amount           decimal.Decimal
	Price            decimal.Decimal
	TxHash           string
	Timestamp        int64
}

// DecodeTrade 解码并校验一笔成交, 秒级时间戳转换为毫秒
func DecodeTrade(raw json.RawMessage) (*Trade, error) {
	var t TradeRecord
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.WrapWithCause(errors.ErrValidation, err, "trade")
	}
	if t.MarketID == nil {
		return nil, errors.Wrapf(errors.ErrValidation, "trade: missing marketId")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(string(t.Amount)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "trade %s: bad amount %q", t.TxHash, t.Amount)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(string(t.Price)))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "trade %s: bad price %q", t.TxHash, t.Price)
	}
	if t.CreatedAt == nil || *t.CreatedAt == 0 {
		return nil, errors.Wrapf(errors.ErrValidation, "trade %s: missing createdAt", t.TxHash)
	}
	ts := *t.CreatedAt
	if ts < 1e12 {
		ts *= 1000
	}
	return &Trade{
		MarketExternalID: strconv.FormatInt(*t.MarketID, 10),
		Sell:             strings.EqualFold(t.Side, "SELL"),
		Outcome:          t.Outcome,
		OutcomeSide:      t.OutcomeSide,
		Amount:           amount,
		Price:            price,
		TxHash:           t.TxHash,
		Timestamp:        ts,
	}, nil
}

// LeaderboardTrader 排行榜条目, id/rankingChange/rankingType 只校验不入库
type LeaderboardTrader struct {
	ID            *int64  `json:"id"`
	WalletAddress string  `json:"walletAddress"`
	UserName      *string `json:"userName"`
	Avatar        *string `json:"avatar"`
	RankingValue  *string `json:"rankingValue"`
	RankingChange *int64  `json:"rankingChange"`
	RankingType   *int64  `json:"rankingType"`
	XUsername     string  `json:"xUsername"`

	// Value 解析后的 RankingValue
	Value float64 `json:"-"`
}

// DecodeLeaderboardTrader 解码并校验一个排行榜条目
func DecodeLeaderboardTrader(raw json.RawMessage) (*LeaderboardTrader, error) {
	var t LeaderboardTrader
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.WrapWithCause(errors.ErrValidation, err, "leaderboard trader")
	}
	switch {
	case t.ID == nil:
		return nil, errors.Wrapf(errors.ErrValidation, "leaderboard trader: missing id")
	case strings.TrimSpace(t.WalletAddress) == "":
		return nil, errors.Wrapf(errors.ErrValidation, "leaderboard trader %d: empty walletAddress", *t.ID)
	case t.UserName == nil, t.Avatar == nil:
		return nil, errors.Wrapf(errors.ErrValidation, "leaderboard trader %s: missing profile", t.WalletAddress)
	case t.RankingChange == nil, t.RankingType == nil:
		return nil, errors.Wrapf(errors.ErrValidation, "leaderboard trader %s: missing ranking", t.WalletAddress)
	case t.RankingValue == nil:
		return nil, errors.Wrapf(errors.ErrValidation, "leaderboard trader %s: missing rankingValue", t.WalletAddress)
	}
	v, ok := NumericString(*t.RankingValue).Float()
	if !ok {
		return nil, errors.Wrapf(errors.ErrValidation, "leaderboard trader %s: bad rankingValue %q", t.WalletAddress, *t.RankingValue)
	}
	t.Value = v
	return &t, nil
}

// TokenPrice 结果代币的最新成交价
type TokenPrice struct {
	TokenID   string        `json:"tokenId"`
	Price     NumericString `json:"price"`
	Side      string        `json:"side"`
	Timestamp int64         `json:"timestamp"`

	Value float64 `json:"-"`
}

// DecodeTokenPrice 解码并校验最新价结果
func DecodeTokenPrice(raw json.RawMessage) (*TokenPrice, error) {
	var p TokenPrice
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.WrapWithCause(errors.ErrUpstream, err, "token price")
	}
	v, ok := p.Price.Float()
	if !ok {
		return nil, errors.Wrapf(errors.ErrUpstream, "token %s: bad price %q", p.TokenID, p.Price)
	}
	p.Value = v
	return &p, nil
}
