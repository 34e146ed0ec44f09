// internal/service/checkout/domain/events.go
package domain

import (
	"encoding/json"
	"fmt"
)

// WebhookEventKind 是入站 webhook 事件的标签。
type WebhookEventKind string

const (
	WebhookChargeSuccess WebhookEventKind = "charge.success"
	WebhookChargeFailed  WebhookEventKind = "charge.failed"
	WebhookUnknown       WebhookEventKind = "unknown"
)

// WebhookEvent 是对动态 webhook 请求体的类型化视图（带未知事件变体的标签联合），
// 未识别的形状在入口处被拒绝，不会流入业务逻辑深处。
type WebhookEvent struct {
	Kind      WebhookEventKind
	Reference string
	Amount    int64
	Status    string
}

type rawWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}

// ParseWebhookEvent 把原始请求体解析为标签联合。
// 形状非法返回 ErrValidation；事件种类未知则返回 Kind=WebhookUnknown 的事件，
// 由调用方决定记录后忽略。
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var raw rawWebhookPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body: %v", ErrValidation, err)
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("%w: webhook body has no event field", ErrValidation)
	}

	ev := &WebhookEvent{
		Reference: raw.Data.Reference,
		Amount:    raw.Data.Amount,
		Status:    raw.Data.Status,
	}
	switch WebhookEventKind(raw.Event) {
	case WebhookChargeSuccess:
		ev.Kind = WebhookChargeSuccess
		if ev.Reference == "" {
			return nil, fmt.Errorf("%w: charge.success event has no reference", ErrValidation)
		}
	case WebhookChargeFailed:
		ev.Kind = WebhookChargeFailed
	default:
		ev.Kind = WebhookUnknown
	}
	return ev, nil
}

// NotificationKind 标识一次出站通知的种类。
type NotificationKind string

const (
	NotifyPaymentConfirmed NotificationKind = "payment-confirmed"
	NotifyOrderCancelled   NotificationKind = "order-cancelled"
	NotifyOrderDelivered   NotificationKind = "order-delivered"
	NotifyPaymentFailed    NotificationKind = "payment-failed"
)

// NotificationKindForStatus 把订单状态映射为恰好一种通知。
// 返回 false 表示该状态不触发通知。
func NotificationKindForStatus(s Status) (NotificationKind, bool) {
	switch s {
	case StatusPaid:
		return NotifyPaymentConfirmed, true
	case StatusCancelled:
		return NotifyOrderCancelled, true
	case StatusDelivered:
		return NotifyOrderDelivered, true
	case StatusFailed:
		return NotifyPaymentFailed, true
	default:
		return "", false
	}
}

// OrderSummary 是通知里携带的订单摘要。
type OrderSummary struct {
	OrderID           uint           `json:"orderId"`
	Reference         string         `json:"reference"`
	Items             []SnapshotItem `json:"items"`
	TotalAmount       int64          `json:"totalAmount"`
	EstimatedDelivery string         `json:"estimatedDeliveryDate"`
}

// NotificationEvent 是交给通知分发器（外部协作者）的载荷。
// 核心只决定"通知什么"，不关心投递方式。
type NotificationEvent struct {
	UserID  string           `json:"userId"`
	Email   string           `json:"email"`
	Kind    NotificationKind `json:"kind"`
	Summary OrderSummary     `json:"summary"`
}
