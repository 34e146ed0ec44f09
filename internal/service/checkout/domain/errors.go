// internal/service/checkout/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 错误分类。调用方用 errors.Is 区分语义，基础设施层用 pkg/errors 包装堆栈。
var (
	// ErrValidation 表示输入不合法，调用方的问题，不应重试。
	ErrValidation = errors.New("validation failed")

	// ErrNotFound 表示购物车/订单/商品不存在。
	ErrNotFound = errors.New("not found")

	// ErrConflict 表示库存不足、非法状态转移或引用重复。
	ErrConflict = errors.New("conflict")

	// ErrInvariantViolation 表示内部不变量被破坏（例如未配置签名密钥），
	// 属于硬失败，绝不静默放行。
	ErrInvariantViolation = errors.New("internal invariant violation")
)

// GatewayErrorKind 区分网关失败的具体类别，
// 让运维能分辨"我们的密钥错了"和"对方服务挂了"。
type GatewayErrorKind string

const (
	GatewayAuthFailed        GatewayErrorKind = "auth_failed"
	GatewayMalformedResponse GatewayErrorKind = "malformed_response"
	GatewayTimeout           GatewayErrorKind = "timeout"
	GatewayUnavailable       GatewayErrorKind = "unavailable"
)

// GatewayError 是外部支付网关交互失败的类型化错误。
type GatewayError struct {
	Kind    GatewayErrorKind
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

// NewGatewayError 构造一个网关错误。
func NewGatewayError(kind GatewayErrorKind, format string, args ...interface{}) *GatewayError {
	return &GatewayError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsGatewayError 判断 err 是否为网关错误，并返回其类别。
func IsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
