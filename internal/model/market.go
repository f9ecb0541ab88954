package model

// PlatformOpinionTrade 上游平台标识
const PlatformOpinionTrade = "opinion_trade"

// Market 预测市场
//
// 自然键 (platform, external_id). 价格由 alert-price 同步维护,
// 市场同步只在新建时写入 0.5 默认值.
type Market struct {
	ID               int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Platform         string  `gorm:"column:platform;type:varchar(32);not null;uniqueIndex:uk_markets_platform_external,priority:1" json:"platform"`
	ExternalID       string  `gorm:"column:external_id;type:varchar(64);not null;uniqueIndex:uk_markets_platform_external,priority:2" json:"externalId"`
	Title            string  `gorm:"column:title;type:text;not null" json:"title"`
	Description      string  `gorm:"column:description;type:text" json:"description,omitempty"`
	Category         string  `gorm:"column:category;type:varchar(32);not null" json:"category"`
	YesTokenID       *string `gorm:"column:yes_token_id;type:varchar(128)" json:"yesTokenId,omitempty"`
	NoTokenID        *string `gorm:"column:no_token_id;type:varchar(128)" json:"noTokenId,omitempty"`
	ParentExternalID *string `gorm:"column:parent_external_id;type:varchar(64);index:idx_markets_parent" json:"parentExternalId,omitempty"`
	YesPrice         float64 `gorm:"column:yes_price;not null" json:"yesPrice"`
	NoPrice          float64 `gorm:"column:no_price;not null" json:"noPrice"`
	Volume           float64 `gorm:"column:volume;not null" json:"volume"`
	Volume24h        float64 `gorm:"column:volume_24h;not null" json:"volume24h"`
	Volume7d         float64 `gorm:"column:volume_7d;not null" json:"volume7d"`
	Liquidity        float64 `gorm:"column:liquidity;not null" json:"liquidity"`
	EndDate          *int64  `gorm:"column:end_date" json:"endDate,omitempty"`
	ResolvedAt       *int64  `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
	URL              string  `gorm:"column:url;type:text" json:"url"`
	ImageURL         *string `gorm:"column:image_url;type:text" json:"imageUrl,omitempty"`
	ChainID          *int    `gorm:"column:chain_id" json:"chainId,omitempty"`
	QuoteToken       *string `gorm:"column:quote_token;type:varchar(128)" json:"quoteToken,omitempty"`
	PriceSyncedAt    *int64  `gorm:"column:price_synced_at" json:"priceSyncedAt,omitempty"`
	CreatedAt        int64   `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt        int64   `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName 表名
func (Market) TableName() string {
	return "markets"
}

// HasTokens 是否同时具备 yes/no token, 只有这样的市场参与价格同步
func (m *Market) HasTokens() bool {
	return m.YesTokenID != nil && *m.YesTokenID != "" && m.NoTokenID != nil && *m.NoTokenID != ""
}
