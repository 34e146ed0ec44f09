// internal/service/checkout/domain/reference.go
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 支付引用格式：TXN-<unix秒>-<userId>-<随机后缀>。
// 其中内嵌的 userId 是承载契约的：先支付后建单的恢复路径靠它找回用户。
// 改动这个格式必须同步修改 UserIDFromReference。
const referencePrefix = "TXN"

// NewPaymentReference 生成一个全局唯一、可从中还原用户的支付引用。
func NewPaymentReference(userID string) string {
	return fmt.Sprintf("%s-%d-%s-%s", referencePrefix, time.Now().Unix(), userID, uuid.New().String()[:8])
}

// NewOrderReference 生成订单自身的关联 ID（与支付引用区分开）。
func NewOrderReference(userID string) string {
	return fmt.Sprintf("ORD-%d-%s-%s", time.Now().Unix(), userID, uuid.New().String()[:8])
}

// UserIDFromReference 从支付引用中解析出所属用户。
// 随机后缀是最后一段，userId 可以包含连字符。
// 解析不出时返回 ErrNotFound：恢复路径宁可失败也不猜测。
func UserIDFromReference(reference string) (string, error) {
	parts := strings.Split(reference, "-")
	if len(parts) < 4 || parts[0] != referencePrefix {
		return "", fmt.Errorf("%w: reference %q does not carry a user id", ErrNotFound, reference)
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
		return "", fmt.Errorf("%w: reference %q has a malformed timestamp", ErrNotFound, reference)
	}
	userID := strings.Join(parts[2:len(parts)-1], "-")
	if userID == "" {
		return "", fmt.Errorf("%w: reference %q has an empty user id", ErrNotFound, reference)
	}
	return userID, nil
}
