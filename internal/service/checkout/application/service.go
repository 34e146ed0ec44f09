// internal/service/checkout/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/pkg/metrics"
	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
)

// CheckoutService 是结算编排器：把购物车聚合、库存校验、订单仓储
// 组合成一个事务性的"从购物车创建订单"操作，并用支付网关事件
// 驱动订单状态机。依赖是单向的：这里依赖各端口，端口不回依赖这里。
type CheckoutService struct {
	txm      domain.TxManager
	orders   domain.OrderRepository
	gateway  port.PaymentGateway
	notifier port.NotificationProducer
	identity port.IdentityService
	cache    port.SnapshotCache
	locker   port.ReferenceLocker
	policy   *CheckoutPolicy
	tracer   trace.Tracer

	shippingFee      int64
	deliveryLeadDays int
	cacheTTL         time.Duration
}

func NewCheckoutService(
	txm domain.TxManager,
	orders domain.OrderRepository,
	gateway port.PaymentGateway,
	notifier port.NotificationProducer,
	identity port.IdentityService,
	cache port.SnapshotCache,
	locker port.ReferenceLocker,
	policy *CheckoutPolicy,
	tracer trace.Tracer,
	shippingFee int64,
	deliveryLeadDays int,
	cacheTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		txm: txm, orders: orders, gateway: gateway, notifier: notifier,
		identity: identity, cache: cache, locker: locker, policy: policy,
		tracer: tracer, shippingFee: shippingFee,
		deliveryLeadDays: deliveryLeadDays, cacheTTL: cacheTTL,
	}
}

// Checkout 处理一次客户端结算：建单（事务内）、缓存快照、发起支付。
// 网关不可用时订单保持 PENDING 并带错误返回，客户端可稍后重试支付。
func (s *CheckoutService) Checkout(ctx context.Context, userID, email string) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	order, snap, err := s.createOrderFromCart(ctx, userID, createOrderOptions{
		performedBy: userID,
		actorType:   "user",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		metrics.CheckoutTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.CheckoutTotal.WithLabelValues("success").Inc()

	result := &CheckoutResult{
		OrderID:    order.ID,
		Reference:  order.Reference,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
	}

	// 购物车已随事务清空；把下单用的快照放入短 TTL 缓存，
	// 让紧随其后的支付初始化（以及连击重试）不必重读购物车。
	if cacheErr := s.cache.Set(ctx, userID, snap, s.cacheTTL); cacheErr != nil {
		logger.Ctx(ctx).Warn().Err(cacheErr).Str("user", userID).Msg("failed to cache cart snapshot")
	}

	init, err := s.gateway.Initialize(ctx, userID, email)
	if err != nil {
		// 订单已存在，支付可以之后补发起；错误原样上抛让客户端知道。
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.Reference).Msg("payment initialization failed after order creation")
		span.RecordError(err)
		return result, err
	}

	if err := s.orders.AssignPaymentReference(ctx, order.ID, init.Reference); err != nil {
		return result, err
	}
	s.appendLog(ctx, order.ID, domain.LogActionAssigned, domain.ActorSystem, "system",
		fmt.Sprintf("payment reference %s assigned", init.Reference))

	result.PaymentReference = init.Reference
	result.AuthorizationURL = init.AuthorizationURL
	return result, nil
}

// createOrderFromCart 在单个事务内完成：快照购物车、策略校验、库存校验、
// 持久化冻结总价的订单、扣减库存、写创建日志、清空购物车。
// 事务内任何一步失败，整体回滚，什么都不会部分提交。
// opts.paymentReference 非空表示支付先于订单（恢复路径）：订单以该引用
// 创建并直接标记为已支付。
func (s *CheckoutService) createOrderFromCart(ctx context.Context, userID string, opts createOrderOptions) (*domain.Order, *domain.CartSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateOrderFromCart")
	defer span.End()

	var (
		order *domain.Order
		snap  *domain.CartSnapshot
	)

	err := s.txm.RunInTx(ctx, func(tx domain.Tx) error {
		var err error
		snap, err = BuildSnapshot(ctx, tx.Carts(), tx.Catalog(), userID, s.shippingFee)
		if err != nil {
			return err
		}

		if snap.IsEmpty() && opts.paymentReference != "" {
			// 恢复路径下购物车可能已被并发请求清空，退回到缓存的快照。
			cached, cacheErr := s.cache.Get(ctx, userID)
			if cacheErr != nil {
				logger.Ctx(ctx).Warn().Err(cacheErr).Str("user", userID).Msg("snapshot cache read failed during recovery")
			} else if cached != nil {
				snap = cached
			}
		}
		if snap.IsEmpty() {
			return fmt.Errorf("%w: cart is empty", domain.ErrValidation)
		}

		if err := s.policy.Evaluate(snap); err != nil {
			return err
		}

		validation, err := ValidateStock(ctx, tx.Catalog(), snap.Items)
		if err != nil {
			return err
		}
		if !validation.IsValid {
			return fmt.Errorf("%w: %s", domain.ErrConflict, strings.Join(validation.Errors, "; "))
		}

		reference := opts.paymentReference
		if reference == "" {
			reference = domain.NewOrderReference(userID)
		}

		order, err = domain.NewOrderFromSnapshot(userID, reference, snap, s.deliveryLeadDays)
		if err != nil {
			return err
		}
		if opts.paymentReference != "" {
			if _, err := order.MarkAsPaid(opts.paymentReference, time.Now()); err != nil {
				return err
			}
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		if err := DecrementStock(ctx, tx.Catalog(), snap.Items); err != nil {
			return err
		}

		if err := tx.Orders().AppendLog(ctx, &domain.OrderLog{
			OrderID:     order.ID,
			Action:      domain.LogActionCreated,
			PerformedBy: opts.performedBy,
			ActorType:   opts.actorType,
		}); err != nil {
			return err
		}
		if order.IsPaid {
			if err := tx.Orders().AppendLog(ctx, &domain.OrderLog{
				OrderID:     order.ID,
				Action:      domain.LogActionPaid,
				PerformedBy: domain.ActorSystem,
				ActorType:   "system",
				Metadata:    fmt.Sprintf("payment reference %s", opts.paymentReference),
			}); err != nil {
				return err
			}
		}

		return tx.Carts().Clear(ctx, userID)
	})
	if err != nil {
		return nil, nil, err
	}

	if cacheErr := s.cache.Invalidate(ctx, userID); cacheErr != nil {
		logger.Ctx(ctx).Warn().Err(cacheErr).Str("user", userID).Msg("failed to invalidate snapshot cache")
	}

	logger.Ctx(ctx).Info().
		Str("user", userID).
		Str("reference", order.Reference).
		Int64("total", order.TotalPrice).
		Bool("paid", order.IsPaid).
		Msg("order created")
	span.AddEvent("order persisted with frozen totals")
	return order, snap, nil
}

// MarkOrderAsPaid 将支付确认对账到订单上。幂等：重复调用是空操作。
// 订单不存在时走"先支付后建单"的恢复路径：优先用核实交易里回读的
// metadata 用户 ID，退而从引用结构里解析，然后代用户合成订单并标记已支付。
func (s *CheckoutService) MarkOrderAsPaid(ctx context.Context, reference string, verified *port.VerifiedTransaction) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.MarkOrderAsPaid")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference))

	// 网关重试风暴会并发触发同一引用的对账，这里按引用串行化。
	release, err := s.locker.Acquire(ctx, reference)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.orders.FindByReference(ctx, reference)
	switch {
	case err == nil:
		return s.confirmExistingOrder(ctx, order, reference)
	case errors.Is(err, domain.ErrNotFound):
		return s.recoverMissingOrder(ctx, reference, verified)
	default:
		return nil, err
	}
}

func (s *CheckoutService) confirmExistingOrder(ctx context.Context, order *domain.Order, reference string) (*domain.Order, error) {
	if order.IsPaid {
		// 已支付：确认是幂等且终结的，金额字段不再改变。
		logger.Ctx(ctx).Info().Str("reference", reference).Msg("payment already reconciled, no-op")
		return order, nil
	}

	now := time.Now()
	changed, err := s.orders.TransitionStatus(ctx, order.ID, domain.StatusPaid, &domain.PaidMark{
		PaymentReference: reference,
		PaidAt:           now.Unix(),
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		// 并发竞争者已完成转移；重读并返回，不重复日志与通知。
		return s.orders.FindByID(ctx, order.ID)
	}

	s.appendLog(ctx, order.ID, domain.LogActionPaid, domain.ActorSystem, "system",
		fmt.Sprintf("payment reference %s", reference))
	metrics.PaymentsConfirmedTotal.Inc()

	order.Status = domain.StatusPaid
	order.IsPaid = true
	order.PaidAt = &now
	order.PaymentReference = reference

	s.notifyStatus(ctx, order, domain.StatusPaid)
	logger.Ctx(ctx).Info().Str("reference", reference).Uint("order", order.ID).Msg("order marked as paid")
	return order, nil
}

func (s *CheckoutService) recoverMissingOrder(ctx context.Context, reference string, verified *port.VerifiedTransaction) (*domain.Order, error) {
	userID := ""
	if verified != nil && verified.UserID != "" {
		userID = verified.UserID
	} else {
		parsed, err := domain.UserIDFromReference(reference)
		if err != nil {
			// 解析不出所属用户：宁可报 NotFound 也不猜测。
			return nil, err
		}
		userID = parsed
	}

	logger.Ctx(ctx).Warn().
		Str("reference", reference).
		Str("user", userID).
		Msg("payment arrived before order, synthesizing order")

	order, _, err := s.createOrderFromCart(ctx, userID, createOrderOptions{
		paymentReference: reference,
		performedBy:      domain.ActorSystem,
		actorType:        "system",
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// 并发恢复者抢先建了单；按引用重读即可。
			return s.orders.FindByReference(ctx, reference)
		}
		return nil, err
	}

	metrics.PaymentsConfirmedTotal.Inc()
	s.notifyStatus(ctx, order, domain.StatusPaid)
	return order, nil
}

// UpdateStatus 是唯一的订单状态变更入口：一次合法转移恰好写一条日志、
// 触发一次对应的通知分发。非法转移返回 ErrConflict 且不改变任何状态。
func (s *CheckoutService) UpdateStatus(ctx context.Context, orderID uint, to domain.Status, performedBy, actorType string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.UpdateStatus")
	defer span.End()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if to == domain.StatusPaid {
		return s.confirmExistingOrder(ctx, order, order.PaymentReference)
	}

	if !domain.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: transition %s -> %s is not allowed", domain.ErrConflict, order.Status, to)
	}

	changed, err := s.orders.TransitionStatus(ctx, orderID, to, nil)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: order %d changed concurrently", domain.ErrConflict, orderID)
	}

	s.appendLog(ctx, orderID, domain.ActionForStatus(to), performedBy, actorType, "")
	order.Status = to

	s.notifyStatus(ctx, order, to)
	logger.Ctx(ctx).Info().Uint("order", orderID).Str("status", string(to)).Str("by", performedBy).Msg("order status updated")
	return order, nil
}

// VerifyResult 是客户端拉取式支付查询的应答。
type VerifyResult struct {
	GatewayStatus string        `json:"gatewayStatus"`
	Order         *domain.Order `json:"order,omitempty"`
}

// VerifyPayment 供客户端轮询"我的支付成功了吗"。
// 向网关核实后，成功的交易顺手完成对账。
func (s *CheckoutService) VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.VerifyPayment")
	defer span.End()

	verified, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{GatewayStatus: verified.Status}
	if !verified.Succeeded() {
		return result, nil
	}

	order, err := s.MarkOrderAsPaid(ctx, reference, verified)
	if err != nil {
		return nil, err
	}
	result.Order = order
	return result, nil
}

// HandlePaymentEvent 处理经过签名认证、已入队的 webhook 事件。
// charge.success 先向网关做服务端复核（绝不只信 webhook 请求体），
// 复核通过才对账；charge.failed 把待支付订单转为 FAILED。
func (s *CheckoutService) HandlePaymentEvent(ctx context.Context, event *domain.WebhookEvent) error {
	ctx, span := s.tracer.Start(ctx, "checkout.HandlePaymentEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("event.kind", string(event.Kind)),
		attribute.String("payment.reference", event.Reference),
	)

	switch event.Kind {
	case domain.WebhookChargeSuccess:
		verified, err := s.gateway.Verify(ctx, event.Reference)
		if err != nil {
			return err
		}
		if !verified.Succeeded() {
			logger.Ctx(ctx).Warn().
				Str("reference", event.Reference).
				Str("gateway_status", verified.Status).
				Msg("webhook claimed success but verification disagreed, ignoring")
			return nil
		}
		_, err = s.MarkOrderAsPaid(ctx, event.Reference, verified)
		return err

	case domain.WebhookChargeFailed:
		order, err := s.orders.FindByReference(ctx, event.Reference)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Ctx(ctx).Info().Str("reference", event.Reference).Msg("charge failure for unknown order, ignoring")
				return nil
			}
			return err
		}
		if order.Status != domain.StatusPending {
			return nil
		}
		_, err = s.UpdateStatus(ctx, order.ID, domain.StatusFailed, domain.ActorSystem, "system")
		return err

	default:
		logger.Ctx(ctx).Info().Str("kind", string(event.Kind)).Msg("ignoring business-irrelevant webhook event")
		return nil
	}
}

// notifyStatus 把状态映射为恰好一种通知并尽力分发。
// 通知是 at-least-once 的旁路：失败只记录、绝不让状态转移本身失败。
func (s *CheckoutService) notifyStatus(ctx context.Context, order *domain.Order, status domain.Status) {
	kind, ok := domain.NotificationKindForStatus(status)
	if !ok {
		return
	}

	user := &port.User{ID: order.BuyerID}
	if resolved, err := s.identity.GetUser(ctx, order.BuyerID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("user", order.BuyerID).Msg("identity lookup failed, notifying with bare user id")
	} else {
		user = resolved
	}

	items := make([]domain.SnapshotItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, domain.SnapshotItem{
			ProductID:     it.ProductID,
			ProductName:   it.ProductName,
			Quantity:      it.Quantity,
			PriceSnapshot: it.PriceSnapshot,
			LineTotal:     it.LineTotal,
		})
	}

	event := &domain.NotificationEvent{
		UserID: user.ID,
		Email:  user.Email,
		Kind:   kind,
		Summary: domain.OrderSummary{
			OrderID:           order.ID,
			Reference:         order.Reference,
			Items:             items,
			TotalAmount:       order.TotalPrice,
			EstimatedDelivery: order.EstimatedDelivery.Format("2006-01-02"),
		},
	}

	if err := s.notifier.SendOrderNotification(ctx, event); err != nil {
		metrics.NotificationFailuresTotal.Inc()
		logger.Ctx(ctx).Error().Err(err).
			Uint("order", order.ID).
			Str("kind", string(kind)).
			Msg("notification dispatch failed, swallowed")
	}
}

func (s *CheckoutService) appendLog(ctx context.Context, orderID uint, action domain.LogAction, performedBy, actorType, metadata string) {
	err := s.orders.AppendLog(ctx, &domain.OrderLog{
		OrderID:     orderID,
		Action:      action,
		PerformedBy: performedBy,
		ActorType:   actorType,
		Metadata:    metadata,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint("order", orderID).Str("action", string(action)).Msg("failed to append order log")
	}
}

// GetOrderByReference 按订单引用或支付引用查询。
func (s *CheckoutService) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	return s.orders.FindByReference(ctx, reference)
}

// GetOrdersByBuyer 返回买家的订单列表。
func (s *CheckoutService) GetOrdersByBuyer(ctx context.Context, buyerID string, page, limit int) (*PagedOrders, error) {
	page, limit = normalizePage(page, limit)
	orders, total, err := s.orders.FindByBuyer(ctx, buyerID, page, limit)
	if err != nil {
		return nil, err
	}
	return &PagedOrders{Orders: orders, Page: page, Limit: limit, TotalItems: total}, nil
}

// GetAllOrders 返回管理端的分页订单列表。
func (s *CheckoutService) GetAllOrders(ctx context.Context, page, limit int) (*PagedOrders, error) {
	page, limit = normalizePage(page, limit)
	orders, total, err := s.orders.FindAll(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return &PagedOrders{Orders: orders, Page: page, Limit: limit, TotalItems: total}, nil
}

// GetStats 返回各状态订单数与已支付订单的总收入。
func (s *CheckoutService) GetStats(ctx context.Context) (*domain.OrderStats, error) {
	return s.orders.Stats(ctx)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
