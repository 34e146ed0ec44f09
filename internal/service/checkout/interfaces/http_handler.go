// internal/service/checkout/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/metrics"
	"bazaar/internal/pkg/mq"
	"bazaar/internal/service/checkout/application"
	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
)

const (
	signatureHeader = "X-Paystack-Signature"

	// webhook 请求体上限。网关的事件体很小，超过即异常流量。
	maxWebhookBody = 1 << 20
)

// CheckoutHandler 封装了结算域的全部 HTTP 入口。
type CheckoutHandler struct {
	carts         *application.CartService
	checkout      *application.CheckoutService
	gateway       port.PaymentGateway
	paymentWriter *kafka.Writer
}

func NewCheckoutHandler(
	carts *application.CartService,
	checkout *application.CheckoutService,
	gateway port.PaymentGateway,
	paymentWriter *kafka.Writer,
) *CheckoutHandler {
	return &CheckoutHandler{carts: carts, checkout: checkout, gateway: gateway, paymentWriter: paymentWriter}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/cart", h.withUser(h.getCart))
	mux.HandleFunc("POST /api/cart/items", h.withUser(h.addCartItem))
	mux.HandleFunc("PUT /api/cart/items/{productId}", h.withUser(h.updateCartItem))
	mux.HandleFunc("DELETE /api/cart/items/{productId}", h.withUser(h.removeCartItem))
	mux.HandleFunc("DELETE /api/cart", h.withUser(h.clearCart))

	mux.HandleFunc("POST /api/checkout", h.withUser(h.doCheckout))
	mux.HandleFunc("GET /api/payments/verify", h.verifyPayment)
	mux.HandleFunc("POST /api/payments/webhook", h.handleWebhook)

	mux.HandleFunc("GET /api/orders", h.withUser(h.listMyOrders))
	mux.HandleFunc("GET /api/orders/{reference}", h.getOrder)

	mux.HandleFunc("GET /api/admin/orders", h.listAllOrders)
	mux.HandleFunc("GET /api/admin/orders/stats", h.getStats)
	mux.HandleFunc("PATCH /api/admin/orders/{id}/status", h.updateOrderStatus)
}

// withUser 提取调用方身份。身份由上游网关认证后以头部传入，
// 本服务只消费，不签发。
func (h *CheckoutHandler) withUser(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing X-User-ID header"})
			return
		}
		next(w, r, userID)
	}
}

func (h *CheckoutHandler) getCart(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := extractTraceContext(r)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	cart, err := h.carts.GetPagedCart(ctx, userID, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *CheckoutHandler) addCartItem(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := extractTraceContext(r)

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "productId and quantity are required"})
		return
	}
	if err := h.carts.AddItem(ctx, userID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "item added"})
}

func (h *CheckoutHandler) updateCartItem(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := extractTraceContext(r)

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity is required"})
		return
	}
	if err := h.carts.UpdateQuantity(ctx, userID, r.PathValue("productId"), req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "item updated"})
}

func (h *CheckoutHandler) removeCartItem(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := extractTraceContext(r)
	if err := h.carts.RemoveItem(ctx, userID, r.PathValue("productId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "item removed"})
}

func (h *CheckoutHandler) clearCart(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := extractTraceContext(r)
	if err := h.carts.Clear(ctx, userID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}

func (h *CheckoutHandler) doCheckout(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := extractTraceContext(r)
	email := r.Header.Get("X-User-Email")

	result, err := h.checkout.Checkout(ctx, userID, email)
	if err != nil {
		if result != nil {
			// 订单已创建但支付发起失败：返回订单信息和错误，客户端可重试支付。
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"order": result,
				"error": "payment initialization failed, retry via /api/payments/verify",
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *CheckoutHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reference is required"})
		return
	}

	result, err := h.checkout.VerifyPayment(ctx, reference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleWebhook 是支付网关的回调入口。职责刻意最小化：
// 验签、解析、入队，立刻应答。真正的对账在消费端做，
// 网关的超时预算从不被数据库或二次核实消耗。
// 验签失败也应答 200：不给探测者任何差异信号，拒绝只反映在日志与指标里。
func (h *CheckoutHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to read webhook body")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.gateway.VerifyWebhookSignature(body, r.Header.Get(signatureHeader)); err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			// 密钥没配是我们自己的故障，这个必须大声失败。
			logger.Ctx(ctx).Error().Err(err).Msg("webhook rejected: signing secret not configured")
			metrics.WebhookEventsTotal.WithLabelValues("rejected_signature").Inc()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		logger.Ctx(ctx).Warn().Err(err).Str("remote", r.RemoteAddr).Msg("webhook signature rejected")
		metrics.WebhookEventsTotal.WithLabelValues("rejected_signature").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	event, err := domain.ParseWebhookEvent(body)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("webhook body rejected")
		metrics.WebhookEventsTotal.WithLabelValues("ignored_event").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	if event.Kind == domain.WebhookUnknown {
		logger.Ctx(ctx).Info().Str("reference", event.Reference).Msg("ignoring unrecognized webhook event kind")
		metrics.WebhookEventsTotal.WithLabelValues("ignored_event").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	value, err := json.Marshal(event)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to marshal webhook event")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	// 入队失败返回 5xx，让网关按自己的策略重投。
	if err := mq.ProduceMessage(ctx, h.paymentWriter, []byte(event.Reference), value); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("reference", event.Reference).Msg("failed to enqueue payment event")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues("accepted").Inc()
	logger.Ctx(ctx).Info().
		Str("kind", string(event.Kind)).
		Str("reference", event.Reference).
		Msg("webhook event enqueued")
	w.WriteHeader(http.StatusOK)
}

func (h *CheckoutHandler) listMyOrders(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := extractTraceContext(r)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.checkout.GetOrdersByBuyer(ctx, userID, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	order, err := h.checkout.GetOrderByReference(ctx, r.PathValue("reference"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *CheckoutHandler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.checkout.GetAllOrders(ctx, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *CheckoutHandler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	stats, err := h.checkout.GetStats(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *CheckoutHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	orderID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order id"})
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	performedBy := r.Header.Get("X-User-ID")
	if performedBy == "" {
		performedBy = domain.ActorSystem
	}

	order, err := h.checkout.UpdateStatus(ctx, uint(orderID), domain.Status(req.Status), performedBy, "admin")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// extractTraceContext 恢复上游注入的追踪上下文。
func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError 把领域错误映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	default:
		if ge, ok := domain.IsGatewayError(err); ok {
			switch ge.Kind {
			case domain.GatewayTimeout:
				status = http.StatusGatewayTimeout
			default:
				status = http.StatusBadGateway
			}
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		logger.Ctx(ctx).Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
