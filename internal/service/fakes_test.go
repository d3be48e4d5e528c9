package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-api/internal/models"
	"storefront-api/internal/store"

	"github.com/shopspring/decimal"
)

type fakeTxKey struct{}

// fakeRepo is an in-memory Repository. Transactions hold the mutex for their
// whole duration and restore a snapshot when fn fails.
type fakeRepo struct {
	mu       sync.Mutex
	products map[int64]models.Product
	orders   map[int64]models.Order
	events   map[int64][]models.OrderEvent
	nextID   int64

	productReads    int
	beforeDecrement func(productID int64)
	// afterProductRead runs after a read made outside a transaction, with no lock held.
	afterProductRead func(productID int64)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: map[int64]models.Product{},
		orders:   map[int64]models.Order{},
		events:   map[int64][]models.OrderEvent{},
	}
}

func (r *fakeRepo) addProduct(id int64, name, price string, stock int) {
	r.products[id] = models.Product{
		ID:          id,
		Name:        name,
		Description: name + " from the test catalog",
		Price:       decimal.RequireFromString(price),
		Category:    models.CategoryPantry,
		Stock:       stock,
	}
}

func (r *fakeRepo) stock(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].Stock
}

func (r *fakeRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *fakeRepo) setStatus(id int64, status models.OrderStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	o.OrderStatus = status
	r.orders[id] = o
}

func (r *fakeRepo) guard(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	products := make(map[int64]models.Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	orders := make(map[int64]models.Order, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	nextID := r.nextID

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		r.products, r.orders, r.nextID = products, orders, nextID
		return err
	}
	return nil
}

func (r *fakeRepo) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, err := r.readProduct(ctx, id)
	if r.afterProductRead != nil && ctx.Value(fakeTxKey{}) == nil {
		r.afterProductRead(id)
	}
	return p, err
}

func (r *fakeRepo) readProduct(ctx context.Context, id int64) (*models.Product, error) {
	defer r.guard(ctx)()
	r.productReads++
	p, ok := r.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *fakeRepo) ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int64, error) {
	defer r.guard(ctx)()
	var matched []models.Product
	for _, p := range r.products {
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return paginate(matched, q.Page), int64(len(matched)), nil
}

func (r *fakeRepo) CreateProduct(ctx context.Context, p *models.Product) error {
	defer r.guard(ctx)()
	r.nextID++
	p.ID = 1000 + r.nextID
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	r.products[p.ID] = *p
	return nil
}

func (r *fakeRepo) UpdateProduct(ctx context.Context, id int64, patch models.ProductPatch) (*models.Product, error) {
	defer r.guard(ctx)()
	p, ok := r.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	r.products[id] = p
	return &p, nil
}

func (r *fakeRepo) DeleteProduct(ctx context.Context, id int64) error {
	defer r.guard(ctx)()
	if _, ok := r.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *fakeRepo) CategorySummaries(ctx context.Context) ([]models.CategorySummary, error) {
	defer r.guard(ctx)()
	return []models.CategorySummary{}, nil
}

func (r *fakeRepo) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	defer r.guard(ctx)()
	if r.beforeDecrement != nil {
		r.beforeDecrement(productID)
	}
	p, ok := r.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	r.products[productID] = p
	return true, nil
}

func (r *fakeRepo) IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	defer r.guard(ctx)()
	p, ok := r.products[productID]
	if !ok {
		return false, nil
	}
	p.Stock += quantity
	r.products[productID] = p
	return true, nil
}

func (r *fakeRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	defer r.guard(ctx)()
	r.nextID++
	order.ID = r.nextID
	order.CreatedAt, order.UpdatedAt = time.Now(), time.Now()
	for i := range order.Items {
		order.Items[i].ID = int64(i + 1)
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	r.orders[order.ID] = stored
	return nil
}

func (r *fakeRepo) getOrder(id int64) (*models.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return &o, nil
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	defer r.guard(ctx)()
	return r.getOrder(id)
}

func (r *fakeRepo) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	if ctx.Value(fakeTxKey{}) == nil {
		return nil, errors.New("get order for update: no transaction in context")
	}
	return r.getOrder(id)
}

func (r *fakeRepo) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, int64, error) {
	defer r.guard(ctx)()
	var matched []models.Order
	for _, o := range r.orders {
		if q.UserID != "" && o.UserID != q.UserID {
			continue
		}
		if q.OrderStatus != "" && o.OrderStatus != q.OrderStatus {
			continue
		}
		if q.PaymentStatus != "" && o.PaymentStatus != q.PaymentStatus {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	return paginate(matched, q.Page), int64(len(matched)), nil
}

func (r *fakeRepo) UpdateOrderStatus(ctx context.Context, id int64, orderStatus *models.OrderStatus, paymentStatus *models.PaymentStatus) (*models.Order, error) {
	defer r.guard(ctx)()
	o, ok := r.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if orderStatus != nil {
		o.OrderStatus = *orderStatus
	}
	if paymentStatus != nil {
		o.PaymentStatus = *paymentStatus
	}
	o.UpdatedAt = time.Now()
	r.orders[id] = o
	return r.getOrder(id)
}

func (r *fakeRepo) OrderStats(ctx context.Context) (*models.OrderStats, error) {
	defer r.guard(ctx)()
	stats := &models.OrderStats{TotalRevenue: decimal.Zero, AvgOrderValue: decimal.Zero}
	for _, o := range r.orders {
		stats.TotalOrders++
		stats.TotalRevenue = stats.TotalRevenue.Add(o.TotalAmount)
	}
	if stats.TotalOrders > 0 {
		stats.AvgOrderValue = stats.TotalRevenue.Div(decimal.NewFromInt(stats.TotalOrders)).Round(2)
	}
	return stats, nil
}

func (r *fakeRepo) ListOrderEvents(ctx context.Context, orderID int64) ([]models.OrderEvent, error) {
	defer r.guard(ctx)()
	return append([]models.OrderEvent{}, r.events[orderID]...), nil
}

func paginate[T any](rows []T, p models.Page) []T {
	start := p.Offset()
	if start >= len(rows) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

type fakeIdempotency struct {
	mu     sync.Mutex
	orders map[string]int64
	locks  map[string]string
	tokens int
	err    error

	// afterLookup runs after every lookup, with no lock held.
	afterLookup func(scope, key string, found bool)
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{orders: map[string]int64{}, locks: map[string]string{}}
}

func (f *fakeIdempotency) LookupOrder(_ context.Context, scope, key string) (int64, bool, error) {
	id, ok, err := f.lookup(scope, key)
	if f.afterLookup != nil && err == nil {
		f.afterLookup(scope, key, ok)
	}
	return id, ok, err
}

func (f *fakeIdempotency) lookup(scope, key string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	id, ok := f.orders[scope+":"+key]
	return id, ok, nil
}

func (f *fakeIdempotency) RememberOrder(_ context.Context, scope, key string, orderID int64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[scope+":"+key] = orderID
	return nil
}

func (f *fakeIdempotency) AcquireLock(_ context.Context, lockKey string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.locks[lockKey]; held {
		return "", false, nil
	}
	f.tokens++
	token := fmt.Sprintf("token-%d", f.tokens)
	f.locks[lockKey] = token
	return token, true, nil
}

func (f *fakeIdempotency) ReleaseLock(_ context.Context, lockKey, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[lockKey] == token {
		delete(f.locks, lockKey)
	}
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	products    map[int64]models.Product
	versions    map[int64]int64
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{products: map[int64]models.Product{}, versions: map[int64]int64{}}
}

func (c *fakeCache) GetProduct(_ context.Context, id int64) (*models.Product, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, c.versions[id], nil
	}
	return &p, c.versions[id], nil
}

func (c *fakeCache) SetProduct(_ context.Context, p *models.Product, version int64, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[p.ID] != version {
		return false, nil
	}
	c.products[p.ID] = *p
	return true, nil
}

func (c *fakeCache) InvalidateProducts(_ context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.products, id)
		c.versions[id]++
	}
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	cancelled []*models.OrderCancelledEvent
	updated   []*models.OrderStatusUpdatedEvent
	err       error
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return p.err
}

func (p *fakePublisher) PublishOrderStatusUpdated(_ context.Context, e *models.OrderStatusUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, e)
	return p.err
}
