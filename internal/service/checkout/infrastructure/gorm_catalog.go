// internal/service/checkout/infrastructure/gorm_catalog.go
package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/service/checkout/domain"
)

// GormProductCatalog 是 domain.ProductCatalog 的 GORM 实现。
type GormProductCatalog struct {
	db *gorm.DB
}

func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

func (c *GormProductCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel
	err := c.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrapf(domain.ErrNotFound, "product %s", id)
		}
		return nil, pkgerrors.Wrap(err, "failed to find product")
	}
	return toDomainProduct(&model), nil
}

// DecrementStock 条件扣减：WHERE 子句保证库存永不为负，
// 没扣到行就是并发下被别人抢光了，返回 ErrConflict。
func (c *GormProductCatalog) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return pkgerrors.Wrapf(domain.ErrValidation, "invalid decrement quantity %d", qty)
	}
	result := c.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND available_quantity >= ?", id, qty).
		Update("available_quantity", gorm.Expr("available_quantity - ?", qty))
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "failed to decrement stock")
	}
	if result.RowsAffected == 0 {
		return pkgerrors.Wrapf(domain.ErrConflict, "insufficient stock for product %s", id)
	}
	return nil
}
