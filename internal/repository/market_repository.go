package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// marketSyncColumns 市场同步允许覆盖的列; yes/no 价格由价格同步独占
var marketSyncColumns = []string{
	"title", "description", "category", "yes_token_id", "no_token_id", "parent_external_id",
	"volume", "volume_24h", "volume_7d", "liquidity", "end_date", "resolved_at",
	"url", "image_url", "chain_id", "quote_token", "updated_at",
}

// MarketRepository 市场仓储
type MarketRepository struct {
	db *gorm.DB
}

// NewMarketRepository 创建市场仓储
func NewMarketRepository(db *gorm.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// Upsert 按 (platform, external_id) 插入或更新
func (r *MarketRepository) Upsert(ctx context.Context, m *model.Market) error {
	return conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(marketSyncColumns),
		}).
		Create(m).Error
}

// GetByID 根据ID查询
func (r *MarketRepository) GetByID(ctx context.Context, id int64) (*model.Market, error) {
	var m model.Market
	err := conn(ctx, r.db).Where("id = ?", id).First(&m).Error
	return notFoundAsNil(&m, err)
}

// GetByExternalID 根据自然键查询
func (r *MarketRepository) GetByExternalID(ctx context.Context, platform, externalID string) (*model.Market, error) {
	var m model.Market
	err := conn(ctx, r.db).
		Where("platform = ? AND external_id = ?", platform, externalID).
		First(&m).Error
	return notFoundAsNil(&m, err)
}

// MapByExternalIDs 批量按自然键查询, 返回 externalID -> market
func (r *MarketRepository) MapByExternalIDs(ctx context.Context, platform string, externalIDs []string) (map[string]*model.Market, error) {
	out := make(map[string]*model.Market, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}
	var markets []*model.Market
	err := conn(ctx, r.db).
		Where("platform = ? AND external_id IN ?", platform, externalIDs).
		Find(&markets).Error
	if err != nil {
		return nil, err
	}
	for _, m := range markets {
		out[m.ExternalID] = m
	}
	return out, nil
}

// MapByIDs 批量按ID查询
func (r *MarketRepository) MapByIDs(ctx context.Context, ids []int64) (map[int64]*model.Market, error) {
	out := make(map[int64]*model.Market, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var markets []*model.Market
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&markets).Error; err != nil {
		return nil, err
	}
	for _, m := range markets {
		out[m.ID] = m
	}
	return out, nil
}

// ListWithTokens 返回给定ID中同时具备 yes/no token 的市场
func (r *MarketRepository) ListWithTokens(ctx context.Context, ids []int64) ([]*model.Market, error) {
	var markets []*model.Market
	if len(ids) == 0 {
		return markets, nil
	}
	err := conn(ctx, r.db).
		Where("id IN ?", ids).
		Where("yes_token_id IS NOT NULL AND yes_token_id <> ''").
		Where("no_token_id IS NOT NULL AND no_token_id <> ''").
		Order("id").
		Find(&markets).Error
	return markets, err
}

// UpdatePrices 只写入非空价格
func (r *MarketRepository) UpdatePrices(ctx context.Context, id int64, yesPrice, noPrice *float64, now int64) error {
	updates := map[string]interface{}{
		"price_synced_at": now,
		"updated_at":      now,
	}
	if yesPrice != nil {
		updates["yes_price"] = *yesPrice
	}
	if noPrice != nil {
		updates["no_price"] = *noPrice
	}
	return conn(ctx, r.db).Model(&model.Market{}).Where("id = ?", id).Updates(updates).Error
}
