package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-whalesync/internal/model"
)

// UserRepository 用户只读视图, 写入仅用于初始化和测试
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return conn(ctx, r.db).Create(u).Error
}

// GetByID 根据ID查询
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := conn(ctx, r.db).Where("id = ?", id).First(&u).Error
	return notFoundAsNil(&u, err)
}

// MapByIDs 批量按ID查询
func (r *UserRepository) MapByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	out := make(map[int64]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []*model.User
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
