package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bazaar/internal/service/checkout/domain"
	"bazaar/internal/service/checkout/domain/port"
)

// memStore 是三个仓储接口的共享内存实现，
// 让编排逻辑可以在没有数据库的情况下被完整测试。
type memStore struct {
	mu          sync.Mutex
	products    map[string]*domain.Product
	carts       map[string]*domain.Cart
	orders      []*domain.Order
	logs        []domain.OrderLog
	nextOrderID uint
	nextLogID   uint

	// failDecrementFor 使指定商品的库存扣减报错，用于验证事务回滚。
	failDecrementFor string
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]*domain.Product),
		carts:    make(map[string]*domain.Cart),
	}
}

func (s *memStore) addProduct(id, name string, price int64, qty int) {
	s.products[id] = &domain.Product{ID: id, Name: name, Price: price, AvailableQuantity: qty}
}

func (s *memStore) putCart(userID string, items ...domain.CartItem) {
	s.carts[userID] = &domain.Cart{ID: uint(len(s.carts) + 1), UserID: userID, Items: items}
}

// --- domain.ProductCatalog ---

func (s *memStore) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) DecrementStock(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.failDecrementFor {
		return fmt.Errorf("simulated storage failure for %s", id)
	}
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, id)
	}
	if p.AvailableQuantity < qty {
		return fmt.Errorf("%w: insufficient stock for %s", domain.ErrConflict, id)
	}
	p.AvailableQuantity -= qty
	return nil
}

// --- domain.CartRepository ---

func (s *memStore) FindByUser(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: cart for %s", domain.ErrNotFound, userID)
	}
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (s *memStore) Save(_ context.Context, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart.ID == 0 {
		cart.ID = uint(len(s.carts) + 1)
	}
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	s.carts[cart.UserID] = &cp
	return nil
}

func (s *memStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart, ok := s.carts[userID]; ok {
		cart.Items = nil
	}
	return nil
}

// --- domain.OrderRepository ---

func (s *memStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.Reference == order.Reference {
			return fmt.Errorf("%w: duplicate reference %s", domain.ErrConflict, order.Reference)
		}
	}
	s.nextOrderID++
	order.ID = s.nextOrderID
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	s.orders = append(s.orders, &cp)
	return nil
}

func (s *memStore) FindByID(_ context.Context, id uint) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
}

func (s *memStore) FindByReference(_ context.Context, reference string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.Reference == reference || o.PaymentReference == reference {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: order with reference %s", domain.ErrNotFound, reference)
}

func (s *memStore) FindByBuyer(_ context.Context, buyerID string, page, limit int) ([]domain.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			result = append(result, *o)
		}
	}
	return result, int64(len(result)), nil
}

func (s *memStore) FindAll(_ context.Context, page, limit int) ([]domain.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		result = append(result, *o)
	}
	return result, int64(len(result)), nil
}

func (s *memStore) TransitionStatus(_ context.Context, orderID uint, to domain.Status, paid *domain.PaidMark) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID != orderID {
			continue
		}
		if !domain.CanTransition(o.Status, to) {
			return false, nil
		}
		o.Status = to
		if paid != nil {
			o.IsPaid = true
			at := time.Unix(paid.PaidAt, 0)
			o.PaidAt = &at
			if paid.PaymentReference != "" {
				o.PaymentReference = paid.PaymentReference
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
}

func (s *memStore) AssignPaymentReference(_ context.Context, orderID uint, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			o.PaymentReference = ref
			return nil
		}
	}
	return fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
}

func (s *memStore) AppendLog(_ context.Context, log *domain.OrderLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	log.ID = s.nextLogID
	log.CreatedAt = time.Now()
	s.logs = append(s.logs, *log)
	return nil
}

func (s *memStore) CountLogs(_ context.Context, orderID uint, action domain.LogAction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.logs {
		if l.OrderID == orderID && l.Action == action {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Stats(_ context.Context) (*domain.OrderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &domain.OrderStats{CountsByStatus: map[domain.Status]int64{}}
	for _, o := range s.orders {
		stats.CountsByStatus[o.Status]++
		if o.IsPaid {
			stats.TotalRevenue += o.TotalPrice
		}
	}
	return stats, nil
}

// --- domain.Tx / domain.TxManager ---

func (s *memStore) Orders() domain.OrderRepository { return s }
func (s *memStore) Carts() domain.CartRepository   { return s }
func (s *memStore) Catalog() domain.ProductCatalog { return s }

// memTxManager 在 fn 出错时恢复整个 store，模拟数据库回滚。
type memTxManager struct {
	store *memStore
}

func (m *memTxManager) RunInTx(_ context.Context, fn func(tx domain.Tx) error) error {
	backup := m.store.snapshotState()
	if err := fn(m.store); err != nil {
		m.store.restoreState(backup)
		return err
	}
	return nil
}

type storeState struct {
	products map[string]*domain.Product
	carts    map[string]*domain.Cart
	orders   []*domain.Order
	logs     []domain.OrderLog
	nextID   uint
	nextLog  uint
}

func (s *memStore) snapshotState() storeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := storeState{
		products: make(map[string]*domain.Product, len(s.products)),
		carts:    make(map[string]*domain.Cart, len(s.carts)),
		nextID:   s.nextOrderID,
		nextLog:  s.nextLogID,
	}
	for k, v := range s.products {
		cp := *v
		st.products[k] = &cp
	}
	for k, v := range s.carts {
		cp := *v
		cp.Items = append([]domain.CartItem(nil), v.Items...)
		st.carts[k] = &cp
	}
	for _, o := range s.orders {
		cp := *o
		cp.Items = append([]domain.OrderItem(nil), o.Items...)
		st.orders = append(st.orders, &cp)
	}
	st.logs = append(st.logs, s.logs...)
	return st
}

func (s *memStore) restoreState(st storeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = st.products
	s.carts = st.carts
	s.orders = st.orders
	s.logs = st.logs
	s.nextOrderID = st.nextID
	s.nextLogID = st.nextLog
}

// --- port.PaymentGateway ---

type fakeGateway struct {
	mu          sync.Mutex
	initResult  *port.InitializeResult
	initErr     error
	verifyByRef map[string]*port.VerifiedTransaction
	verifyErr   error
	initCalls   int
	verifyCalls int
}

func (g *fakeGateway) Initialize(_ context.Context, userID, email string) (*port.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	if g.initResult != nil {
		return g.initResult, nil
	}
	return &port.InitializeResult{
		AuthorizationURL: "https://gateway.test/pay",
		AccessCode:       "ac_test",
		Reference:        domain.NewPaymentReference(userID),
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*port.VerifiedTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if tx, ok := g.verifyByRef[reference]; ok {
		return tx, nil
	}
	return &port.VerifiedTransaction{Reference: reference, Status: "failed"}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(_ []byte, _ string) error { return nil }

// --- port.NotificationProducer ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.NotificationEvent
	err    error
}

func (n *recordingNotifier) SendOrderNotification(_ context.Context, event *domain.NotificationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) sent() []*domain.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.NotificationEvent(nil), n.events...)
}

// --- port.IdentityService ---

type fakeIdentity struct {
	users map[string]*port.User
}

func (f *fakeIdentity) GetUser(_ context.Context, userID string) (*port.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
}

// --- port.SnapshotCache ---

type fakeCache struct {
	mu    sync.Mutex
	snaps map[string]*domain.CartSnapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string]*domain.CartSnapshot)}
}

func (c *fakeCache) Get(_ context.Context, userID string) (*domain.CartSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snaps[userID], nil
}

func (c *fakeCache) Set(_ context.Context, userID string, snap *domain.CartSnapshot, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[userID] = snap
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, userID)
	return nil
}

// --- port.ReferenceLocker ---

type fakeLocker struct {
	mu       sync.Mutex
	acquired []string
}

func (l *fakeLocker) Acquire(_ context.Context, reference string) (func(), error) {
	l.mu.Lock()
	l.acquired = append(l.acquired, reference)
	l.mu.Unlock()
	return func() {}, nil
}
