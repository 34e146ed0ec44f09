// internal/service/checkout/domain/port/payment.go
package port

import "context"

// InitializeResult 是支付初始化成功后的返回值：
// 客户端拿 AuthorizationURL 跳转，Reference 用于后续对账。
type InitializeResult struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode"`
	Reference        string `json:"reference"`
}

// VerifiedTransaction 是服务端向网关核实后的交易视图。
// webhook 请求体的金额与状态从不被直接信任，一切以这里为准。
type VerifiedTransaction struct {
	Reference string
	Amount    int64
	Status    string // "success" | 其他
	UserID    string // 从初始化时写入的 metadata 中回读
	Email     string
}

// Succeeded 判断交易是否被网关确认为成功。
func (t *VerifiedTransaction) Succeeded() bool {
	return t != nil && t.Status == "success"
}

// PaymentGateway 是支付网关的出站端口。
type PaymentGateway interface {
	// Initialize 以用户购物车当前总额发起一笔网关交易。
	// 空购物车或金额低于网关最低限额返回 ErrValidation。
	Initialize(ctx context.Context, userID, email string) (*InitializeResult, error)

	// Verify 拉式核实一笔交易的真实状态。
	Verify(ctx context.Context, reference string) (*VerifiedTransaction, error)

	// VerifyWebhookSignature 校验入站 webhook 的签名。
	// 缺密钥、缺签名头、空请求体一律判失败，绝不放行。
	VerifyWebhookSignature(rawBody []byte, signatureHeader string) error
}
