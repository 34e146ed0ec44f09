// internal/service/checkout/infrastructure/models.go
package infrastructure

import (
	"database/sql"
	"time"
)

// OrderModel 对应数据库中的 orders 表。
type OrderModel struct {
	ID                uint           `gorm:"primaryKey"`
	BuyerID           string         `gorm:"size:64;index;not null"`
	Subtotal          int64          `gorm:"not null"`
	ShippingFee       int64          `gorm:"not null"`
	TotalPrice        int64          `gorm:"not null"`
	Reference         string         `gorm:"size:128;uniqueIndex;not null"`
	PaymentReference  sql.NullString `gorm:"size:128;index"`
	IsPaid            bool           `gorm:"not null;default:false"`
	PaidAt            sql.NullTime
	Status            string `gorm:"type:varchar(20);index;not null"`
	EstimatedDelivery time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 对应 order_items 表，价格是下单时刻的快照。
type OrderItemModel struct {
	ID            uint   `gorm:"primaryKey"`
	OrderID       uint   `gorm:"index;not null"`
	ProductID     string `gorm:"size:64;index;not null"`
	ProductName   string `gorm:"size:255"`
	Quantity      int    `gorm:"not null"`
	PriceSnapshot int64  `gorm:"not null"`
	LineTotal     int64  `gorm:"not null"`
}

func (OrderItemModel) TableName() string { return "order_items" }

// OrderLogModel 对应 order_logs 表。只插入，不更新不删除。
type OrderLogModel struct {
	ID          uint   `gorm:"primaryKey"`
	OrderID     uint   `gorm:"index;not null"`
	Action      string `gorm:"size:32;not null"`
	PerformedBy string `gorm:"size:64;not null"`
	ActorType   string `gorm:"size:16;not null"`
	Metadata    string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (OrderLogModel) TableName() string { return "order_logs" }

// CartModel 对应 carts 表。UserID 唯一索引保证一人一车。
type CartModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []CartItemModel `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
}

func (CartModel) TableName() string { return "carts" }

// CartItemModel 对应 cart_items 表。
type CartItemModel struct {
	ID            uint   `gorm:"primaryKey"`
	CartID        uint   `gorm:"index;not null"`
	ProductID     string `gorm:"size:64;index;not null"`
	ProductName   string `gorm:"size:255"`
	Quantity      int    `gorm:"not null"`
	PriceSnapshot int64  `gorm:"not null"`
	AddedAt       time.Time
}

func (CartItemModel) TableName() string { return "cart_items" }

// ProductModel 对应 products 表（商品目录的结算视图）。
type ProductModel struct {
	ID                string `gorm:"primaryKey;size:64"`
	Name              string `gorm:"size:255"`
	Price             int64  `gorm:"not null"`
	AvailableQuantity int    `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (ProductModel) TableName() string { return "products" }
