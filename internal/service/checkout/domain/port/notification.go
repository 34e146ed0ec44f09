// internal/service/checkout/domain/port/notification.go
package port

import (
	"context"

	"bazaar/internal/service/checkout/domain"
)

// NotificationProducer 是通知分发器的出站端口。
// 核心只决定"通知谁、通知什么"，投递机制由实现负责。
type NotificationProducer interface {
	SendOrderNotification(ctx context.Context, event *domain.NotificationEvent) error
}

// User 是身份服务提供的最小用户视图。
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
}

// IdentityService 是身份系统的出站端口（外部协作者，本核心不签发凭证）。
type IdentityService interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}
