// internal/service/checkout/domain/cart.go
package domain

import "time"

// Cart 是一个用户的购物车。每个用户最多持有一个。
type Cart struct {
	ID        uint
	UserID    string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem 是购物车中的一行。PriceSnapshot 在加购时捕获，
// 不随商品目录变动，保证总价始终可以离线重算。
type CartItem struct {
	ID            uint
	ProductID     string
	ProductName   string
	Quantity      int
	PriceSnapshot int64 // 最小货币单位
	AddedAt       time.Time
}

// LineTotal 返回该行的小计。
func (i CartItem) LineTotal() int64 {
	return i.PriceSnapshot * int64(i.Quantity)
}

// FindItem 按商品 ID 查找行，返回索引；不存在时返回 -1。
func (c *Cart) FindItem(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// RemoveItem 删除指定商品的行。
func (c *Cart) RemoveItem(productID string) {
	idx := c.FindItem(productID)
	if idx < 0 {
		return
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
}

// SnapshotItem 是定价后快照中的一行。
type SnapshotItem struct {
	ProductID     string `json:"productId"`
	ProductName   string `json:"productName"`
	Quantity      int    `json:"quantity"`
	PriceSnapshot int64  `json:"priceSnapshot"`
	LineTotal     int64  `json:"lineTotal"`
}

// CartSnapshot 是某一时刻购物车的定价视图：
// 不变量 Total == Subtotal + ShippingFee，且 Subtotal == Σ LineTotal。
type CartSnapshot struct {
	UserID      string         `json:"userId"`
	Items       []SnapshotItem `json:"items"`
	Subtotal    int64          `json:"subtotal"`
	ShippingFee int64          `json:"shippingFee"`
	Total       int64          `json:"total"`
	TakenAt     time.Time      `json:"takenAt"`
}

// IsEmpty 判断快照是否没有任何有效行。
func (s *CartSnapshot) IsEmpty() bool {
	return s == nil || len(s.Items) == 0
}
