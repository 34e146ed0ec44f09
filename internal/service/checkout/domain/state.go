// internal/service/checkout/domain/state.go
package domain

// Status 定义了订单的生命周期状态
type Status string

const (
	StatusPending   Status = "PENDING"   // 订单已创建，等待支付确认
	StatusPaid      Status = "PAID"      // 支付已确认
	StatusDelivered Status = "DELIVERED" // 已送达（终态）
	StatusCancelled Status = "CANCELLED" // 已取消（终态）
	StatusFailed    Status = "FAILED"    // 支付不可恢复地失败
)

// transitions 是状态机的转移表。只有表中列出的前驱状态可以进入目标状态。
var transitions = map[Status][]Status{
	StatusPaid:      {StatusPending},
	StatusDelivered: {StatusPaid},
	StatusCancelled: {StatusPending, StatusPaid},
	StatusFailed:    {StatusPending},
}

// ValidPredecessors 返回能进入 target 状态的所有前驱状态。
// 仓储层用它来做条件更新（CAS），保证并发转移只有一个成功。
func ValidPredecessors(target Status) []Status {
	return transitions[target]
}

// CanTransition 判断 from -> to 是否是合法的状态转移。
func CanTransition(from, to Status) bool {
	for _, p := range transitions[to] {
		if p == from {
			return true
		}
	}
	return false
}

// IsTerminal 判断状态是否为终态。
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}
