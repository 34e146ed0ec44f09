// internal/service/checkout/infrastructure/adapter/paystack_http_adapter.go
package adapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"

	"bazaar/internal/pkg/httpclient"
	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/metrics"
	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
)

// SnapshotFunc 计算用户购物车的实时定价快照。
// 由组装根注入，适配器不直接依赖应用层。
type SnapshotFunc func(ctx context.Context, userID string) (*domain.CartSnapshot, error)

// PaystackConfig 是网关适配器的全部外部参数。
type PaystackConfig struct {
	BaseURL        string
	SecretKey      string
	CallbackURL    string
	Currency       string
	MinAmount      int64 // 网关接受的最小金额（最小货币单位）
	RequestTimeout time.Duration
	MaxRetries     int
}

// PaystackAdapter 是 port.PaymentGateway 的 Paystack HTTP 实现。
// 防腐层：网关的动态 JSON 在这里被翻译成类型化结果或类型化错误，
// 不让对方的数据形状渗进领域层。
type PaystackAdapter struct {
	httpc    *httpclient.Client
	cache    port.SnapshotCache
	snapshot SnapshotFunc
	cfg      PaystackConfig
}

func NewPaystackAdapter(httpc *httpclient.Client, cache port.SnapshotCache, snapshot SnapshotFunc, cfg PaystackConfig) *PaystackAdapter {
	return &PaystackAdapter{httpc: httpc, cache: cache, snapshot: snapshot, cfg: cfg}
}

type initializePayload struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize 以用户购物车当前总额向网关发起一笔交易。
// 金额优先取刚下单时缓存的快照，未命中再实时重算。
func (a *PaystackAdapter) Initialize(ctx context.Context, userID, email string) (*port.InitializeResult, error) {
	snap, err := a.cache.Get(ctx, userID)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("user", userID).Msg("snapshot cache read failed, falling back to live cart")
	}
	if snap.IsEmpty() {
		snap, err = a.snapshot(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	if snap.IsEmpty() {
		return nil, fmt.Errorf("%w: cannot initialize payment for an empty cart", domain.ErrValidation)
	}
	if snap.Total < a.cfg.MinAmount {
		return nil, fmt.Errorf("%w: amount %d is below gateway minimum %d", domain.ErrValidation, snap.Total, a.cfg.MinAmount)
	}

	reference := domain.NewPaymentReference(userID)
	payload, err := json.Marshal(initializePayload{
		Email:       email,
		Amount:      snap.Total,
		Currency:    a.cfg.Currency,
		Reference:   reference,
		CallbackURL: a.cfg.CallbackURL,
		// metadata 随交易存在网关侧，核实时回读，
		// 是恢复路径找回用户的首选来源。
		Metadata: map[string]string{"user_id": userID},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to marshal initialize payload")
	}

	body, err := a.doWithRetry(ctx, "initialize", http.MethodPost, a.cfg.BaseURL+"/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}

	var resp initializeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "initialize response is not valid JSON: %v", err)
	}
	if !resp.Status {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "gateway declined initialization: %s", resp.Message)
	}
	if resp.Data.AuthorizationURL == "" {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "initialize response has no authorization_url")
	}
	if resp.Data.AccessCode == "" {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "initialize response has no access_code")
	}
	if resp.Data.Reference == "" {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "initialize response has no reference")
	}

	return &port.InitializeResult{
		AuthorizationURL: resp.Data.AuthorizationURL,
		AccessCode:       resp.Data.AccessCode,
		Reference:        resp.Data.Reference,
	}, nil
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata struct {
			UserID string `json:"user_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// Verify 向网关核实一笔交易的真实状态。
func (a *PaystackAdapter) Verify(ctx context.Context, reference string) (*port.VerifiedTransaction, error) {
	body, err := a.doWithRetry(ctx, "verify", http.MethodGet, a.cfg.BaseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "verify response is not valid JSON: %v", err)
	}
	if !resp.Status {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "gateway could not verify %s: %s", reference, resp.Message)
	}
	if resp.Data.Status == "" {
		return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "verify response has no transaction status")
	}

	return &port.VerifiedTransaction{
		Reference: resp.Data.Reference,
		Amount:    resp.Data.Amount,
		Status:    resp.Data.Status,
		UserID:    resp.Data.Metadata.UserID,
		Email:     resp.Data.Customer.Email,
	}, nil
}

// VerifyWebhookSignature 校验入站 webhook 的 HMAC-SHA512 签名。
// 密钥未配置是不变量破坏：绝不因为没配密钥就放行任何 webhook。
func (a *PaystackAdapter) VerifyWebhookSignature(rawBody []byte, signatureHeader string) error {
	if a.cfg.SecretKey == "" {
		return fmt.Errorf("%w: webhook secret key is not configured", domain.ErrInvariantViolation)
	}
	if signatureHeader == "" {
		return fmt.Errorf("%w: webhook has no signature header", domain.ErrValidation)
	}
	if len(rawBody) == 0 {
		return fmt.Errorf("%w: webhook has an empty body", domain.ErrValidation)
	}

	mac := hmac.New(sha512.New, []byte(a.cfg.SecretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(signatureHeader)) != 1 {
		return fmt.Errorf("%w: webhook signature mismatch", domain.ErrValidation)
	}
	return nil
}

// doWithRetry 执行一次网关调用：超时与 5xx 指数退避重试，
// 4xx 不重试（重发同样的坏请求没有意义）。
func (a *PaystackAdapter) doWithRetry(ctx context.Context, operation, method, url string, payload []byte) ([]byte, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + a.cfg.SecretKey,
		"Content-Type":  "application/json",
	}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, domain.NewGatewayError(domain.GatewayTimeout, "%s aborted: %v", operation, ctx.Err())
			}
			logger.Ctx(ctx).Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Msg("retrying gateway request")
		}

		start := time.Now()
		reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
		resp, err := a.httpc.Do(reqCtx, method, url, headers, payload)
		cancel()

		switch {
		case err != nil:
			metrics.GatewayRequestDuration.WithLabelValues(operation, "error").Observe(time.Since(start).Seconds())
			if reqErr := reqCtxError(err); reqErr != nil {
				lastErr = reqErr
				continue
			}
			lastErr = domain.NewGatewayError(domain.GatewayUnavailable, "%s request failed: %v", operation, err)
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			metrics.GatewayRequestDuration.WithLabelValues(operation, "auth_failed").Observe(time.Since(start).Seconds())
			return nil, domain.NewGatewayError(domain.GatewayAuthFailed, "%s rejected with status %d, check the secret key", operation, resp.StatusCode)

		case resp.StatusCode >= http.StatusInternalServerError:
			metrics.GatewayRequestDuration.WithLabelValues(operation, "server_error").Observe(time.Since(start).Seconds())
			lastErr = domain.NewGatewayError(domain.GatewayUnavailable, "%s returned status %d", operation, resp.StatusCode)
			continue

		case resp.StatusCode >= http.StatusBadRequest:
			metrics.GatewayRequestDuration.WithLabelValues(operation, "client_error").Observe(time.Since(start).Seconds())
			return nil, domain.NewGatewayError(domain.GatewayMalformedResponse, "%s returned status %d: %s", operation, resp.StatusCode, string(resp.Body))

		default:
			metrics.GatewayRequestDuration.WithLabelValues(operation, "success").Observe(time.Since(start).Seconds())
			return resp.Body, nil
		}
	}
	return nil, lastErr
}

// reqCtxError 把 context 级别的失败翻译成超时类网关错误；其他返回 nil。
func reqCtxError(err error) error {
	if pkgerrors.Is(err, context.DeadlineExceeded) || pkgerrors.Is(err, context.Canceled) {
		return domain.NewGatewayError(domain.GatewayTimeout, "gateway request timed out: %v", err)
	}
	return nil
}
