// internal/service/checkout/infrastructure/gorm_cart_repository.go
package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/service/checkout/domain"
)

// GormCartRepository 是 domain.CartRepository 的 GORM 实现。
type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) *GormCartRepository {
	return &GormCartRepository{db: db}
}

func (r *GormCartRepository) FindByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	var model CartModel
	err := r.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrapf(domain.ErrNotFound, "cart for user %s", userID)
		}
		return nil, pkgerrors.Wrap(err, "failed to find cart")
	}
	return toDomainCart(&model), nil
}

// Save 整体落盘购物车：行项先删后插，车头 upsert。
// 购物车行项很少，整体替换比逐行 diff 简单得多。
func (r *GormCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := CartModel{
			ID:        cart.ID,
			UserID:    cart.UserID,
			CreatedAt: cart.CreatedAt,
			UpdatedAt: cart.UpdatedAt,
		}
		if model.ID == 0 {
			if err := tx.Create(&model).Error; err != nil {
				return pkgerrors.Wrap(err, "failed to create cart")
			}
			cart.ID = model.ID
		} else {
			if err := tx.Save(&model).Error; err != nil {
				return pkgerrors.Wrap(err, "failed to update cart")
			}
			if err := tx.Where("cart_id = ?", model.ID).Delete(&CartItemModel{}).Error; err != nil {
				return pkgerrors.Wrap(err, "failed to clear cart items")
			}
		}

		if len(cart.Items) == 0 {
			return nil
		}
		items := make([]CartItemModel, 0, len(cart.Items))
		for _, it := range cart.Items {
			items = append(items, CartItemModel{
				CartID:        model.ID,
				ProductID:     it.ProductID,
				ProductName:   it.ProductName,
				Quantity:      it.Quantity,
				PriceSnapshot: it.PriceSnapshot,
				AddedAt:       it.AddedAt,
			})
		}
		if err := tx.Create(&items).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to save cart items")
		}
		for i := range items {
			cart.Items[i].ID = items[i].ID
		}
		return nil
	})
}

// Clear 删除用户购物车的全部行项。购物车不存在时静默成功。
func (r *GormCartRepository) Clear(ctx context.Context, userID string) error {
	var model CartModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(err, "failed to find cart for clear")
	}
	err = r.db.WithContext(ctx).Where("cart_id = ?", model.ID).Delete(&CartItemModel{}).Error
	return pkgerrors.Wrap(err, "failed to clear cart items")
}
