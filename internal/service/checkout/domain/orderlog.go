// internal/service/checkout/domain/orderlog.go
package domain

import "time"

// LogAction 是订单审计日志的动作枚举。
type LogAction string

const (
	LogActionCreated   LogAction = "created"
	LogActionPaid      LogAction = "paid"
	LogActionCancelled LogAction = "cancelled"
	LogActionDelivered LogAction = "delivered"
	LogActionFailed    LogAction = "failed"
	LogActionAssigned  LogAction = "assigned"
)

// ActorSystem 是系统自身驱动转移时使用的执行者标识。
const ActorSystem = "system"

// OrderLog 是 append-only 的审计记录：每次状态转移恰好写一条，
// 永不修改、永不删除。
type OrderLog struct {
	ID          uint
	OrderID     uint
	Action      LogAction
	PerformedBy string
	ActorType   string // "user" | "admin" | "system"
	Metadata    string
	CreatedAt   time.Time
}

// ActionForStatus 返回进入某个状态时应记录的日志动作。
func ActionForStatus(s Status) LogAction {
	switch s {
	case StatusPaid:
		return LogActionPaid
	case StatusCancelled:
		return LogActionCancelled
	case StatusDelivered:
		return LogActionDelivered
	case StatusFailed:
		return LogActionFailed
	default:
		return LogActionCreated
	}
}
