// internal/service/checkout/domain/order.go
package domain

import (
	"fmt"
	"time"
)

// Order 是购买行为的聚合根，也是整个核心的事实来源(system of record)。
type Order struct {
	ID                uint
	BuyerID           string
	Items             []OrderItem
	Subtotal          int64
	ShippingFee       int64
	TotalPrice        int64 // 创建时冻结为 Subtotal + ShippingFee，之后绝不重算
	Reference         string
	PaymentReference  string
	IsPaid            bool
	PaidAt            *time.Time
	Status            Status
	EstimatedDelivery time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderItem 是订单行的值对象，价格是下单时刻的快照。
type OrderItem struct {
	ID            uint
	ProductID     string
	ProductName   string
	Quantity      int
	PriceSnapshot int64
	LineTotal     int64
}

// NewOrderFromSnapshot 用定价快照创建一个待支付订单。
// 金额在这里冻结：买家同意支付的价格之后不受商品目录变动影响。
func NewOrderFromSnapshot(buyerID, reference string, snap *CartSnapshot, deliveryLeadDays int) (*Order, error) {
	if buyerID == "" || reference == "" {
		return nil, fmt.Errorf("%w: buyer id and reference are required", ErrValidation)
	}
	if snap.IsEmpty() {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}

	items := make([]OrderItem, 0, len(snap.Items))
	for _, si := range snap.Items {
		items = append(items, OrderItem{
			ProductID:     si.ProductID,
			ProductName:   si.ProductName,
			Quantity:      si.Quantity,
			PriceSnapshot: si.PriceSnapshot,
			LineTotal:     si.LineTotal,
		})
	}

	now := time.Now()
	return &Order{
		BuyerID:           buyerID,
		Items:             items,
		Subtotal:          snap.Subtotal,
		ShippingFee:       snap.ShippingFee,
		TotalPrice:        snap.Subtotal + snap.ShippingFee,
		Reference:         reference,
		Status:            StatusPending,
		EstimatedDelivery: now.AddDate(0, 0, deliveryLeadDays),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// MarkAsPaid 将订单标记为已支付。
// 幂等：已支付的订单再次调用不产生任何变化，返回 false。
func (o *Order) MarkAsPaid(paymentReference string, at time.Time) (bool, error) {
	if o.IsPaid {
		return false, nil
	}
	if !CanTransition(o.Status, StatusPaid) {
		return false, fmt.Errorf("%w: cannot pay order in status %s", ErrConflict, o.Status)
	}
	o.Status = StatusPaid
	o.IsPaid = true
	o.PaidAt = &at
	if paymentReference != "" {
		o.PaymentReference = paymentReference
	}
	o.UpdatedAt = at
	return true, nil
}

// Cancel 取消订单。待支付和已支付的订单都允许取消。
func (o *Order) Cancel() error {
	if !CanTransition(o.Status, StatusCancelled) {
		return fmt.Errorf("%w: cannot cancel order in status %s", ErrConflict, o.Status)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsDelivered 标记订单已送达，只允许从已支付进入。
func (o *Order) MarkAsDelivered() error {
	if !CanTransition(o.Status, StatusDelivered) {
		return fmt.Errorf("%w: cannot deliver order in status %s", ErrConflict, o.Status)
	}
	o.Status = StatusDelivered
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsFailed 在网关报告不可恢复的支付失败时调用。
func (o *Order) MarkAsFailed() error {
	if !CanTransition(o.Status, StatusFailed) {
		return fmt.Errorf("%w: cannot fail order in status %s", ErrConflict, o.Status)
	}
	o.Status = StatusFailed
	o.UpdatedAt = time.Now()
	return nil
}
