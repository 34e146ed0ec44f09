// internal/service/checkout/infrastructure/tx.go
package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/service/checkout/domain"
)

// gormTx 把同一个 *gorm.DB 事务句柄暴露为各仓储视图。
type gormTx struct {
	orders  *GormOrderRepository
	carts   *GormCartRepository
	catalog *GormProductCatalog
}

func (t *gormTx) Orders() domain.OrderRepository { return t.orders }
func (t *gormTx) Carts() domain.CartRepository   { return t.carts }
func (t *gormTx) Catalog() domain.ProductCatalog { return t.catalog }

// GormTxManager 是 domain.TxManager 的 GORM 实现。
// fn 返回错误或 panic 时整个事务回滚。
type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{
			orders:  NewGormOrderRepository(tx),
			carts:   NewGormCartRepository(tx),
			catalog: NewGormProductCatalog(tx),
		})
	})
	return pkgerrors.WithStack(err)
}
