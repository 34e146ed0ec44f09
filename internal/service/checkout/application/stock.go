// internal/service/checkout/application/stock.go
package application

import (
	"context"
	"errors"
	"fmt"

	"bazaar/internal/service/checkout/domain"
)

// StockValidation 是一次库存校验的结果。
// 校验不会在第一个违规处停下，而是把所有问题一次性收集给调用方。
type StockValidation struct {
	IsValid bool
	Errors  []string
}

// ValidateStock 逐行检查 requested <= available。
func ValidateStock(ctx context.Context, catalog domain.ProductCatalog, items []domain.SnapshotItem) (*StockValidation, error) {
	result := &StockValidation{IsValid: true}
	for _, item := range items {
		product, err := catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				result.IsValid = false
				result.Errors = append(result.Errors, fmt.Sprintf("product %s no longer exists", item.ProductID))
				continue
			}
			return nil, err
		}
		if item.Quantity > product.AvailableQuantity {
			result.IsValid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"insufficient stock for %s: requested %d, available %d",
				item.ProductID, item.Quantity, product.AvailableQuantity))
		}
	}
	return result, nil
}

// DecrementStock 对每一行执行带条件的库存扣减。
// 只能在订单创建的同一事务内、且校验通过后调用；
// 目录实现会在提交点再次校验（乐观并发），并发冲突时返回 ErrConflict
// 使整个事务回滚。
func DecrementStock(ctx context.Context, catalog domain.ProductCatalog, items []domain.SnapshotItem) error {
	for _, item := range items {
		if err := catalog.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("failed to decrement stock for %s: %w", item.ProductID, err)
		}
	}
	return nil
}
