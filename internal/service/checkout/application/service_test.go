package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
)

type serviceFixture struct {
	store    *memStore
	gateway  *fakeGateway
	notifier *recordingNotifier
	cache    *fakeCache
	locker   *fakeLocker
	service  *CheckoutService
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	store := newMemStore()
	gateway := &fakeGateway{}
	notifier := &recordingNotifier{}
	cache := newFakeCache()
	locker := &fakeLocker{}

	policy, err := NewCheckoutPolicy(nil)
	require.NoError(t, err)

	service := NewCheckoutService(
		&memTxManager{store: store}, store, gateway, notifier,
		&fakeIdentity{users: map[string]*port.User{
			"u123": {ID: "u123", Email: "u123@example.com", FirstName: "Ada"},
		}},
		cache, locker, policy, otel.Tracer("test"),
		750, 5, time.Minute,
	)
	return &serviceFixture{store: store, gateway: gateway, notifier: notifier, cache: cache, locker: locker, service: service}
}

func (f *serviceFixture) seedCart() {
	f.store.addProduct("p1", "Widget", 2500, 10)
	f.store.addProduct("p2", "Gadget", 5000, 10)
	f.store.putCart("u123",
		domain.CartItem{ProductID: "p1", ProductName: "Widget", Quantity: 2, PriceSnapshot: 2500},
		domain.CartItem{ProductID: "p2", ProductName: "Gadget", Quantity: 1, PriceSnapshot: 5000},
	)
}

func TestCheckout_CreatesOrderWithFrozenTotals(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	assert.Equal(t, int64(10750), result.TotalPrice) // 10000 商品 + 750 运费
	assert.Equal(t, domain.StatusPending, result.Status)
	assert.NotEmpty(t, result.Reference)
	assert.NotEmpty(t, result.PaymentReference)
	assert.Equal(t, "https://gateway.test/pay", result.AuthorizationURL)

	// 库存已扣减
	p1, err := f.store.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, p1.AvailableQuantity)

	// 购物车已清空
	cart, err := f.store.FindByUser(context.Background(), "u123")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	// 创建日志恰好一条
	created, err := f.store.CountLogs(context.Background(), result.OrderID, domain.LogActionCreated)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)

	// 商品目录涨价不影响已冻结的订单金额
	f.store.addProduct("p1", "Widget", 99999, 8)
	order, err := f.store.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(10750), order.TotalPrice)
}

func TestCheckout_EmptyCartRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckout_InsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	f.store.addProduct("p1", "Widget", 2500, 10)
	f.store.addProduct("p2", "Gadget", 5000, 0) // 没货
	f.store.putCart("u123",
		domain.CartItem{ProductID: "p1", ProductName: "Widget", Quantity: 2, PriceSnapshot: 2500},
		domain.CartItem{ProductID: "p2", ProductName: "Gadget", Quantity: 1, PriceSnapshot: 5000},
	)

	_, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	assert.ErrorIs(t, err, domain.ErrConflict)

	// 什么都没有部分提交：没有订单、有货的行也没被扣、购物车原样
	_, total, err := f.store.FindAll(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	p1, err := f.store.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p1.AvailableQuantity)

	cart, err := f.store.FindByUser(context.Background(), "u123")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestCheckout_StorageFailureOnLastItemRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seedCart()
	f.store.failDecrementFor = "p2" // 最后一行扣减时存储层报错

	_, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.Error(t, err)

	// 第一行的扣减必须随事务回滚
	p1, err := f.store.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p1.AvailableQuantity)

	_, total, err := f.store.FindAll(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCheckout_GatewayFailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	f.seedCart()
	f.gateway.initErr = domain.NewGatewayError(domain.GatewayUnavailable, "gateway down")

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.Error(t, err)
	require.NotNil(t, result) // 订单已创建，客户端可以稍后重试支付

	order, findErr := f.store.FindByID(context.Background(), result.OrderID)
	require.NoError(t, findErr)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Empty(t, order.PaymentReference)
}

func TestMarkOrderAsPaid_IsIdempotentAcrossRetries(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	// 网关重投同一个确认三次
	for i := 0; i < 3; i++ {
		order, err := f.service.MarkOrderAsPaid(context.Background(), result.PaymentReference, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, order.Status)
		assert.True(t, order.IsPaid)
	}

	// 支付日志与通知都恰好一次
	paidLogs, err := f.store.CountLogs(context.Background(), result.OrderID, domain.LogActionPaid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), paidLogs)
	assert.Len(t, f.notifier.sent(), 1)
	assert.Equal(t, domain.NotifyPaymentConfirmed, f.notifier.sent()[0].Kind)
}

func TestMarkOrderAsPaid_RecoversWhenPaymentArrivesFirst(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	// 订单从未创建，但带用户契约的引用先到了
	reference := fmt.Sprintf("TXN-%d-u123-ab12de", time.Now().Unix())

	order, err := f.service.MarkOrderAsPaid(context.Background(), reference, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPaid, order.Status)
	assert.True(t, order.IsPaid)
	assert.Equal(t, reference, order.Reference)
	assert.Equal(t, int64(10750), order.TotalPrice)

	// 合成订单走完整的下单路径：库存扣了、购物车清了
	p1, err := f.store.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 8, p1.AvailableQuantity)

	cart, err := f.store.FindByUser(context.Background(), "u123")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	assert.Len(t, f.notifier.sent(), 1)
}

func TestMarkOrderAsPaid_PrefersVerifiedUserID(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	// 引用解析不出用户，但网关核实结果带了 metadata 用户
	verified := &port.VerifiedTransaction{Reference: "OPAQUE-REF", Status: "success", UserID: "u123"}

	order, err := f.service.MarkOrderAsPaid(context.Background(), "OPAQUE-REF", verified)
	require.NoError(t, err)
	assert.Equal(t, "u123", order.BuyerID)
	assert.True(t, order.IsPaid)
}

func TestMarkOrderAsPaid_UnresolvableReferenceFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.MarkOrderAsPaid(context.Background(), "OPAQUE-REF", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateStatus_RejectsIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	// 待支付不能直接送达
	_, err = f.service.UpdateStatus(context.Background(), result.OrderID, domain.StatusDelivered, "admin", "admin")
	assert.ErrorIs(t, err, domain.ErrConflict)

	order, err := f.store.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
}

func TestUpdateStatus_DeliveredAfterPaidNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	_, err = f.service.MarkOrderAsPaid(context.Background(), result.PaymentReference, nil)
	require.NoError(t, err)

	order, err := f.service.UpdateStatus(context.Background(), result.OrderID, domain.StatusDelivered, "admin-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, order.Status)

	events := f.notifier.sent()
	require.Len(t, events, 2) // paid + delivered
	assert.Equal(t, domain.NotifyOrderDelivered, events[1].Kind)

	deliveredLogs, err := f.store.CountLogs(context.Background(), result.OrderID, domain.LogActionDelivered)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deliveredLogs)
}

func TestVerifyPayment_ReconcilesSuccessfulTransactions(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	f.gateway.verifyByRef = map[string]*port.VerifiedTransaction{
		result.PaymentReference: {Reference: result.PaymentReference, Status: "success", Amount: 10750, UserID: "u123"},
	}

	verifyResult, err := f.service.VerifyPayment(context.Background(), result.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, "success", verifyResult.GatewayStatus)
	require.NotNil(t, verifyResult.Order)
	assert.True(t, verifyResult.Order.IsPaid)
}

func TestVerifyPayment_FailedTransactionDoesNotTouchOrder(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	verifyResult, err := f.service.VerifyPayment(context.Background(), result.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, "failed", verifyResult.GatewayStatus)
	assert.Nil(t, verifyResult.Order)

	order, err := f.store.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
}

func TestHandlePaymentEvent_ReVerifiesBeforeReconciling(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	// webhook 声称成功，但网关核实说没有——绝不只信 webhook 请求体
	err = f.service.HandlePaymentEvent(context.Background(), &domain.WebhookEvent{
		Kind:      domain.WebhookChargeSuccess,
		Reference: result.PaymentReference,
		Amount:    10750,
	})
	require.NoError(t, err)

	order, err := f.store.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Empty(t, f.notifier.sent())
}

func TestHandlePaymentEvent_ChargeFailedMovesPendingToFailed(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	err = f.service.HandlePaymentEvent(context.Background(), &domain.WebhookEvent{
		Kind:      domain.WebhookChargeFailed,
		Reference: result.PaymentReference,
	})
	require.NoError(t, err)

	order, err := f.store.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, order.Status)

	events := f.notifier.sent()
	require.Len(t, events, 1)
	assert.Equal(t, domain.NotifyPaymentFailed, events[0].Kind)
}

func TestHandlePaymentEvent_ChargeFailedForPaidOrderIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.seedCart()

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)
	_, err = f.service.MarkOrderAsPaid(context.Background(), result.PaymentReference, nil)
	require.NoError(t, err)

	err = f.service.HandlePaymentEvent(context.Background(), &domain.WebhookEvent{
		Kind:      domain.WebhookChargeFailed,
		Reference: result.PaymentReference,
	})
	require.NoError(t, err)

	order, err := f.store.FindByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, order.Status)
}

func TestNotificationFailureDoesNotBlockTransition(t *testing.T) {
	f := newFixture(t)
	f.seedCart()
	f.notifier.err = fmt.Errorf("broker unreachable")

	result, err := f.service.Checkout(context.Background(), "u123", "u123@example.com")
	require.NoError(t, err)

	order, err := f.service.MarkOrderAsPaid(context.Background(), result.PaymentReference, nil)
	require.NoError(t, err)
	assert.True(t, order.IsPaid) // 通知失败被吞掉，状态转移照常完成
}
