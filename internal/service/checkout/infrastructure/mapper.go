// internal/service/checkout/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"

	"bazaar/internal/service/checkout/domain"
)

// toDomainOrder 将数据库模型转换为领域模型。
func toDomainOrder(m *OrderModel) *domain.Order {
	if m == nil {
		return nil
	}
	order := &domain.Order{
		ID:                m.ID,
		BuyerID:           m.BuyerID,
		Subtotal:          m.Subtotal,
		ShippingFee:       m.ShippingFee,
		TotalPrice:        m.TotalPrice,
		Reference:         m.Reference,
		IsPaid:            m.IsPaid,
		Status:            domain.Status(m.Status),
		EstimatedDelivery: m.EstimatedDelivery,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.PaymentReference.Valid {
		order.PaymentReference = m.PaymentReference.String
	}
	if m.PaidAt.Valid {
		t := m.PaidAt.Time
		order.PaidAt = &t
	}
	for _, im := range m.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:            im.ID,
			ProductID:     im.ProductID,
			ProductName:   im.ProductName,
			Quantity:      im.Quantity,
			PriceSnapshot: im.PriceSnapshot,
			LineTotal:     im.LineTotal,
		})
	}
	return order
}

// fromDomainOrder 将领域模型转换为数据库模型（用于插入）。
func fromDomainOrder(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:                o.ID,
		BuyerID:           o.BuyerID,
		Subtotal:          o.Subtotal,
		ShippingFee:       o.ShippingFee,
		TotalPrice:        o.TotalPrice,
		Reference:         o.Reference,
		IsPaid:            o.IsPaid,
		Status:            string(o.Status),
		EstimatedDelivery: o.EstimatedDelivery,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if o.PaymentReference != "" {
		m.PaymentReference = sql.NullString{String: o.PaymentReference, Valid: true}
	}
	if o.PaidAt != nil {
		m.PaidAt = sql.NullTime{Time: *o.PaidAt, Valid: true}
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			ProductID:     it.ProductID,
			ProductName:   it.ProductName,
			Quantity:      it.Quantity,
			PriceSnapshot: it.PriceSnapshot,
			LineTotal:     it.LineTotal,
		})
	}
	return m
}

func toDomainCart(m *CartModel) *domain.Cart {
	if m == nil {
		return nil
	}
	cart := &domain.Cart{
		ID:        m.ID,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, im := range m.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:            im.ID,
			ProductID:     im.ProductID,
			ProductName:   im.ProductName,
			Quantity:      im.Quantity,
			PriceSnapshot: im.PriceSnapshot,
			AddedAt:       im.AddedAt,
		})
	}
	return cart
}

func toDomainProduct(m *ProductModel) *domain.Product {
	if m == nil {
		return nil
	}
	return &domain.Product{
		ID:                m.ID,
		Name:              m.Name,
		Price:             m.Price,
		AvailableQuantity: m.AvailableQuantity,
	}
}
