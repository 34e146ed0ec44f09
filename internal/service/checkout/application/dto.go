// internal/service/checkout/application/dto.go
package application

import "bazaar/internal/service/checkout/domain"

// PagedCart 是分页后的购物车视图，附带分页元数据。
type PagedCart struct {
	Items       []domain.SnapshotItem `json:"items"`
	Subtotal    int64                 `json:"subtotal"`
	ShippingFee int64                 `json:"shippingFee"`
	Total       int64                 `json:"total"`
	Page        int                   `json:"page"`
	Limit       int                   `json:"limit"`
	TotalItems  int                   `json:"totalItems"`
	TotalPages  int                   `json:"totalPages"`
}

// CheckoutResult 是一次结算请求的应答：
// 订单已经落库，AuthorizationURL 供客户端跳转支付。
type CheckoutResult struct {
	OrderID          uint          `json:"orderId"`
	Reference        string        `json:"reference"`
	PaymentReference string        `json:"paymentReference,omitempty"`
	AuthorizationURL string        `json:"authorizationUrl,omitempty"`
	Status           domain.Status `json:"status"`
	TotalPrice       int64         `json:"totalPrice"`
}

// PagedOrders 是管理端订单列表的分页应答。
type PagedOrders struct {
	Orders     []domain.Order `json:"orders"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalItems int64          `json:"totalItems"`
}

// createOrderOptions 控制 createOrderFromCart 的变体行为。
type createOrderOptions struct {
	// paymentReference 非空表示支付先于订单存在（恢复路径）：
	// 订单直接以该引用创建并标记为已支付。
	paymentReference string
	performedBy      string
	actorType        string
}
