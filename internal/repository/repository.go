// Package repository 提供基于 gorm 的数据访问
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// notFoundAsNil 将未找到转换为 (nil, nil)
func notFoundAsNil[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// txKey 事务上下文键
type txKey struct{}

// conn 上下文中有事务时使用事务, 否则使用 db
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Transactor 跨仓储事务
//
// fn 收到的 ctx 携带事务, 用它调用任意仓储方法都会落在同一事务内.
type Transactor struct {
	db *gorm.DB
}

// NewTransactor 创建事务执行器
func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// Transaction 执行事务, fn 返回错误时回滚
func (t *Transactor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return conn(ctx, t.db).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
