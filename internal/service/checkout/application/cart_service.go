// internal/service/checkout/application/cart_service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/service/checkout/domain"
)

// CartService 负责购物车的聚合定价与变更。
type CartService struct {
	carts       domain.CartRepository
	catalog     domain.ProductCatalog
	shippingFee int64
	tracer      trace.Tracer
}

func NewCartService(carts domain.CartRepository, catalog domain.ProductCatalog, shippingFee int64, tracer trace.Tracer) *CartService {
	return &CartService{carts: carts, catalog: catalog, shippingFee: shippingFee, tracer: tracer}
}

// BuildSnapshot 把原始购物车行与商品目录连接，算出定价快照。
// 纯读操作。商品已下架、数量或价格快照非正的行会被过滤掉：
// 快照里绝不出现悬空引用。行小计用加购时的价格快照计算，
// 所以总价不读目录也能重算。
func BuildSnapshot(ctx context.Context, carts domain.CartRepository, catalog domain.ProductCatalog, userID string, shippingFee int64) (*domain.CartSnapshot, error) {
	snap := &domain.CartSnapshot{
		UserID:      userID,
		ShippingFee: shippingFee,
		TakenAt:     time.Now(),
	}

	cart, err := carts.FindByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// 还没有购物车：当作空车走同一条出口，总价照样算上运费。
		cart = &domain.Cart{UserID: userID}
	}

	for _, item := range cart.Items {
		if item.Quantity <= 0 || item.PriceSnapshot <= 0 {
			continue
		}
		if _, err := catalog.GetProduct(ctx, item.ProductID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue // 商品已不存在，行作废
			}
			return nil, err
		}
		snap.Items = append(snap.Items, domain.SnapshotItem{
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			Quantity:      item.Quantity,
			PriceSnapshot: item.PriceSnapshot,
			LineTotal:     item.LineTotal(),
		})
		snap.Subtotal += item.LineTotal()
	}
	snap.Total = snap.Subtotal + snap.ShippingFee
	return snap, nil
}

// GetPricedCart 返回用户购物车的完整定价快照；没有购物车时返回空快照。
// 结算永远走这个不分页版本，避免漏算。
func (s *CartService) GetPricedCart(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "cart.GetPricedCart")
	defer span.End()
	return BuildSnapshot(ctx, s.carts, s.catalog, userID, s.shippingFee)
}

// GetPagedCart 是给 UI 列表用的只读分页变体，不影响结算总价。
func (s *CartService) GetPagedCart(ctx context.Context, userID string, page, limit int) (*PagedCart, error) {
	ctx, span := s.tracer.Start(ctx, "cart.GetPagedCart")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	snap, err := BuildSnapshot(ctx, s.carts, s.catalog, userID, s.shippingFee)
	if err != nil {
		return nil, err
	}

	total := len(snap.Items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &PagedCart{
		Items:       snap.Items[start:end],
		Subtotal:    snap.Subtotal,
		ShippingFee: snap.ShippingFee,
		Total:       snap.Total,
		Page:        page,
		Limit:       limit,
		TotalItems:  total,
		TotalPages:  (total + limit - 1) / limit,
	}, nil
}

// AddItem 向购物车添加商品。购物车在第一次加购时惰性创建。
// 商品不存在返回 ErrNotFound，价格快照在此刻捕获。
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem")
	defer span.End()

	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		cart = &domain.Cart{UserID: userID}
	}

	if idx := cart.FindItem(productID); idx >= 0 {
		cart.Items[idx].Quantity += quantity
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:     productID,
			ProductName:   product.Name,
			Quantity:      quantity,
			PriceSnapshot: product.Price,
			AddedAt:       time.Now(),
		})
	}
	return s.carts.Save(ctx, cart)
}

// UpdateQuantity 修改某行数量；数量 <= 0 等价于移除该行。
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) error {
	ctx, span := s.tracer.Start(ctx, "cart.UpdateQuantity")
	defer span.End()

	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return err
	}

	idx := cart.FindItem(productID)
	if idx < 0 {
		return fmt.Errorf("%w: product %s is not in the cart", domain.ErrNotFound, productID)
	}

	if quantity <= 0 {
		cart.RemoveItem(productID)
	} else {
		cart.Items[idx].Quantity = quantity
	}
	return s.carts.Save(ctx, cart)
}

// RemoveItem 移除某行。
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) error {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem")
	defer span.End()

	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		return err
	}
	if cart.FindItem(productID) < 0 {
		return fmt.Errorf("%w: product %s is not in the cart", domain.ErrNotFound, productID)
	}
	cart.RemoveItem(productID)
	return s.carts.Save(ctx, cart)
}

// Clear 清空购物车。
func (s *CartService) Clear(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "cart.Clear")
	defer span.End()
	return s.carts.Clear(ctx, userID)
}
