package model

import (
	"errors"
	"fmt"
	"math"
)

// AlertType 提醒类型
type AlertType string

const (
	AlertTypePrice AlertType = "price"
	AlertTypeWhale AlertType = "whale"
)

// AlertOperator 价格条件比较符
type AlertOperator string

const (
	OperatorGT  AlertOperator = "gt"
	OperatorLT  AlertOperator = "lt"
	OperatorGTE AlertOperator = "gte"
	OperatorLTE AlertOperator = "lte"
	OperatorEQ  AlertOperator = "eq"
)

// PriceEqualEpsilon eq 条件的容差
const PriceEqualEpsilon = 0.01

// ErrMalformedAlert 行数据不符合任一提醒变体
var ErrMalformedAlert = errors.New("malformed alert")

// Condition 价格条件, Value 为 [0,1] 内的概率价格
type Condition struct {
	Operator AlertOperator `json:"operator"`
	Value    float64       `json:"value"`
}

// Validate 校验比较符与取值范围
func (c Condition) Validate() error {
	switch c.Operator {
	case OperatorGT, OperatorLT, OperatorGTE, OperatorLTE, OperatorEQ:
	default:
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if math.IsNaN(c.Value) || c.Value < 0 || c.Value > 1 {
		return fmt.Errorf("condition value must be between 0 and 1, got %v", c.Value)
	}
	return nil
}

// Matches 判断当前 yes 价格是否满足条件
func (c Condition) Matches(price float64) bool {
	switch c.Operator {
	case OperatorGT:
		return price > c.Value
	case OperatorLT:
		return price < c.Value
	case OperatorGTE:
		return price >= c.Value
	case OperatorLTE:
		return price <= c.Value
	case OperatorEQ:
		return math.Abs(price-c.Value) < PriceEqualEpsilon
	}
	return false
}

// AlertTarget 提醒目标, 只有 PriceTarget 和 WhaleTarget 两种实现
type AlertTarget interface {
	alertType() AlertType
}

// PriceTarget 价格提醒: 某个市场 + 条件
type PriceTarget struct {
	MarketID  int64
	Condition Condition
}

func (PriceTarget) alertType() AlertType { return AlertTypePrice }

// WhaleTarget 鲸鱼提醒: 某个鲸鱼的新成交
type WhaleTarget struct {
	WhaleID int64
}

func (WhaleTarget) alertType() AlertType { return AlertTypeWhale }

// Alert 用户提醒定义
type Alert struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID          int64          `gorm:"column:user_id;not null;index:idx_alerts_user" json:"userId"`
	Type            AlertType      `gorm:"column:type;type:varchar(16);not null;index:idx_alerts_active_type,priority:2" json:"type"`
	MarketID        *int64         `gorm:"column:market_id;index:idx_alerts_market" json:"marketId,omitempty"`
	WhaleID         *int64         `gorm:"column:whale_id;index:idx_alerts_whale" json:"whaleId,omitempty"`
	Operator        *AlertOperator `gorm:"column:operator;type:varchar(8)" json:"operator,omitempty"`
	Value           *float64       `gorm:"column:value" json:"value,omitempty"`
	IsActive        bool           `gorm:"column:is_active;not null;index:idx_alerts_active_type,priority:1" json:"isActive"`
	LastTriggeredAt *int64         `gorm:"column:last_triggered_at" json:"lastTriggeredAt,omitempty"`
	TriggerCount    int64          `gorm:"column:trigger_count;not null" json:"triggerCount"`
	CreatedAt       int64          `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName 表名
func (Alert) TableName() string {
	return "alerts"
}

// NewAlert 由目标变体构造提醒, 保证只填充该变体的字段
func NewAlert(userID int64, target AlertTarget, now int64) (*Alert, error) {
	a := &Alert{
		UserID:    userID,
		IsActive:  true,
		CreatedAt: now,
	}
	switch t := target.(type) {
	case PriceTarget:
		if err := t.Condition.Validate(); err != nil {
			return nil, err
		}
		marketID, op, value := t.MarketID, t.Condition.Operator, t.Condition.Value
		a.Type = AlertTypePrice
		a.MarketID = &marketID
		a.Operator = &op
		a.Value = &value
	case WhaleTarget:
		whaleID := t.WhaleID
		a.Type = AlertTypeWhale
		a.WhaleID = &whaleID
	default:
		return nil, fmt.Errorf("%w: unsupported target %T", ErrMalformedAlert, target)
	}
	return a, nil
}

// Target 还原提醒目标, 行数据同时带有两种变体字段或缺字段时报错
func (a *Alert) Target() (AlertTarget, error) {
	switch a.Type {
	case AlertTypePrice:
		if a.MarketID == nil || a.Operator == nil || a.Value == nil || a.WhaleID != nil {
			return nil, fmt.Errorf("%w: price alert %d", ErrMalformedAlert, a.ID)
		}
		return PriceTarget{
			MarketID:  *a.MarketID,
			Condition: Condition{Operator: *a.Operator, Value: *a.Value},
		}, nil
	case AlertTypeWhale:
		if a.WhaleID == nil || a.MarketID != nil || a.Operator != nil || a.Value != nil {
			return nil, fmt.Errorf("%w: whale alert %d", ErrMalformedAlert, a.ID)
		}
		return WhaleTarget{WhaleID: *a.WhaleID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedAlert, a.Type)
	}
}
