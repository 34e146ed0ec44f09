// internal/service/checkout/domain/repository.go
package domain

import "context"

// Product 是商品目录中与结算相关的最小视图。
type Product struct {
	ID                string
	Name              string
	Price             int64
	AvailableQuantity int
}

// OrderStats 是管理端的聚合统计。
type OrderStats struct {
	CountsByStatus map[Status]int64
	TotalRevenue   int64 // 已支付订单的 TotalPrice 之和
}

// PaidMark 是支付确认转移时随状态一起落库的字段。
type PaidMark struct {
	PaymentReference string
	PaidAt           int64 // unix 秒
}

// OrderRepository 定义了订单聚合的持久化接口。
// 位于领域层，由基础设施层实现。
type OrderRepository interface {
	// Create 持久化一个新订单及其订单行。
	// reference 冲突（唯一索引）返回 ErrConflict。
	Create(ctx context.Context, order *Order) error

	FindByID(ctx context.Context, id uint) (*Order, error)

	// FindByReference 按 reference 或 paymentReference 查找订单。
	FindByReference(ctx context.Context, reference string) (*Order, error)

	FindByBuyer(ctx context.Context, buyerID string, page, limit int) ([]Order, int64, error)
	FindAll(ctx context.Context, page, limit int) ([]Order, int64, error)

	// TransitionStatus 执行条件状态更新（对 status 字段的 CAS）：
	// 仅当当前状态是 to 的合法前驱时更新才生效。
	// 返回是否真的发生了转移；并发竞争者中最多一个得到 true。
	// paid 非空时，isPaid/paidAt/paymentReference 随同一条 UPDATE 写入。
	TransitionStatus(ctx context.Context, orderID uint, to Status, paid *PaidMark) (bool, error)

	// AssignPaymentReference 把网关分配的引用写到订单上。
	// 只在支付初始化成功后调用一次。
	AssignPaymentReference(ctx context.Context, orderID uint, paymentReference string) error

	// AppendLog 追加一条审计日志。日志只增不改。
	AppendLog(ctx context.Context, log *OrderLog) error

	CountLogs(ctx context.Context, orderID uint, action LogAction) (int64, error)

	Stats(ctx context.Context) (*OrderStats, error)
}

// CartRepository 定义了购物车的持久化接口。
type CartRepository interface {
	// FindByUser 返回用户的购物车；不存在时返回 ErrNotFound。
	FindByUser(ctx context.Context, userID string) (*Cart, error)

	// Save 创建或整体更新购物车（含行项）。
	Save(ctx context.Context, cart *Cart) error

	// Clear 清空用户的购物车行项。
	Clear(ctx context.Context, userID string) error
}

// ProductCatalog 是商品目录的读写接口（外部协作者）。
type ProductCatalog interface {
	GetProduct(ctx context.Context, id string) (*Product, error)

	// DecrementStock 条件扣减库存：可用数量不足时返回 ErrConflict，
	// 绝不把库存扣成负数。必须在订单创建的同一事务内调用。
	DecrementStock(ctx context.Context, id string, qty int) error
}

// Tx 暴露同一数据库事务内的各仓储视图。
type Tx interface {
	Orders() OrderRepository
	Carts() CartRepository
	Catalog() ProductCatalog
}

// TxManager 执行事务边界：fn 返回错误时整体回滚，任何部分都不提交。
type TxManager interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
