package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"storefront-api/internal/models"
	"storefront-api/internal/store"
	"storefront-api/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const idempotencyLockTTL = 30 * time.Second

// maxItemQuantity matches the INTEGER stock column.
const maxItemQuantity = math.MaxInt32

// OrderService places orders and reserves their stock
type OrderService struct {
	repo           Repository
	idempotency    IdempotencyStore
	cache          ProductCache
	publisher      EventPublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo Repository,
	idempotency IdempotencyStore,
	cache ProductCache,
	publisher EventPublisher,
	idempotencyTTL time.Duration,
) *OrderService {
	return &OrderService{
		repo:           repo,
		idempotency:    idempotency,
		cache:          cache,
		publisher:      publisher,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// PlaceOrderRequest represents a request to place an order
type PlaceOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" binding:"required,min=1,dive"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	IdempotencyKey  string                 `json:"-"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1,max=2147483647"`
}

var zipCodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// Normalize trims the address and applies the default country.
func (r *PlaceOrderRequest) Normalize() {
	a := &r.ShippingAddress
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = models.DefaultCountry
	}
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
}

// Validate checks the request shape. It does not touch the catalog.
func (r PlaceOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return invalidInput("Order must contain at least one item")
	}
	for i, item := range r.Items {
		if item.ProductID <= 0 {
			return invalidInput("Item %d: product ID must be a positive integer", i+1)
		}
		if item.Quantity < 1 {
			return invalidInput("Item %d: quantity must be at least 1", i+1)
		}
		if item.Quantity > maxItemQuantity {
			return invalidInput("Item %d: quantity must not exceed %d", i+1, maxItemQuantity)
		}
	}

	a := r.ShippingAddress
	switch {
	case a.Street == "":
		return invalidInput("Street address is required")
	case a.City == "":
		return invalidInput("City is required")
	case a.State == "":
		return invalidInput("State is required")
	case !zipCodePattern.MatchString(a.ZipCode):
		return invalidInput("Invalid ZIP code")
	}
	if len(r.IdempotencyKey) > 255 {
		return invalidInput("Idempotency key is too long")
	}
	return nil
}

// PlaceOrder validates the request, captures current prices and reserves stock
// for every item. The order row, its items and every stock decrement commit
// together or not at all.
func (s *OrderService) PlaceOrder(ctx context.Context, principal models.Principal, req PlaceOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder",
		attribute.String("user.id", principal.UserID),
		attribute.Int("order.items", len(req.Items)))
	defer span.End()

	if principal.UserID == "" {
		return nil, unauthorized("Authentication required")
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.replay(ctx, principal.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		release, err := s.lockKey(ctx, principal.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		defer release()

		// The holder before us may have finished between the lookup and the lock.
		existing, err = s.replay(ctx, principal.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	order := &models.Order{
		UserID:          principal.UserID,
		PaymentStatus:   models.PaymentStatusPending,
		OrderStatus:     models.OrderStatusProcessing,
		ShippingAddress: req.ShippingAddress,
	}

	start := time.Now()
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		items, err := s.priceItems(ctx, req.Items)
		if err != nil {
			return err
		}
		order.Items = items
		order.TotalAmount = models.SumItems(items)

		if err := s.repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		return s.reserveStock(ctx, items)
	})
	util.StockReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		if KindOf(err) == "" {
			return nil, fmt.Errorf("failed to place order: %w", err)
		}
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)))

	s.invalidateProducts(ctx, order.Items)

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated, order),
		TotalAmount: order.TotalAmount,
		Items:       models.ItemData(order.Items),
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	if req.IdempotencyKey != "" {
		if err := s.idempotency.RememberOrder(ctx, principal.UserID, req.IdempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	return order, nil
}

// replay returns the order already created for this user's idempotency key, if any.
func (s *OrderService) replay(ctx context.Context, userID, key string) (*models.Order, error) {
	orderID, found, err := s.idempotency.LookupOrder(ctx, userID, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed, placing order without replay protection", zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load replayed order: %w", err)
	}

	util.IdempotentReplaysTotal.Inc()
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", order.ID))
	return order, nil
}

// lockKey keeps two in-flight requests with the same key from both placing an order.
func (s *OrderService) lockKey(ctx context.Context, userID, key string) (func(), error) {
	lockKey := fmt.Sprintf("order:%s:%s", userID, key)

	token, acquired, err := s.idempotency.AcquireLock(ctx, lockKey, idempotencyLockTTL)
	if err != nil {
		s.logger.Warn("Idempotency lock unavailable", zap.Error(err))
		return func() {}, nil
	}
	if !acquired {
		util.OrdersFailedTotal.WithLabelValues("duplicate_in_flight").Inc()
		return nil, invalidInput("A request with this idempotency key is already being processed")
	}

	return func() {
		if err := s.idempotency.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Warn("Failed to release idempotency lock", zap.String("lock", lockKey), zap.Error(err))
		}
	}, nil
}

// priceItems resolves every requested product in request order and captures its
// price. Quantities of repeated products are checked against stock as a sum, so
// a merged reservation never exceeds what the stock column can hold.
func (s *OrderService) priceItems(ctx context.Context, requested []OrderItemRequest) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(requested))
	wanted := make(map[int64]int, len(requested))
	for _, r := range requested {
		product, err := s.repo.GetProductByID(ctx, r.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, productNotFound(r.ProductID)
		}
		if err != nil {
			return nil, err
		}
		wanted[r.ProductID] += r.Quantity
		if product.Stock < wanted[r.ProductID] {
			return nil, insufficientStock(product.Name, product.Stock)
		}

		items = append(items, models.OrderItem{
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
			Price:     product.Price,
		})
	}
	return items, nil
}

// reserveStock applies the conditional decrement for every product.
func (s *OrderService) reserveStock(ctx context.Context, items []models.OrderItem) error {
	for _, line := range stockLines(items) {
		ok, err := s.repo.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return err
		}
		if ok {
			continue
		}

		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return productNotFound(line.ProductID)
		}
		if err != nil {
			return err
		}
		return insufficientStock(product.Name, product.Stock)
	}
	return nil
}

func (s *OrderService) invalidateProducts(ctx context.Context, items []models.OrderItem) {
	if err := s.cache.InvalidateProducts(ctx, productIDs(items)...); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}
}

// stockLine is the total quantity of one product across an order's items.
type stockLine struct {
	ProductID int64
	Quantity  int
}

// stockLines merges items per product and sorts them by product id, so every
// transaction locks product rows in the same order.
func stockLines(items []models.OrderItem) []stockLine {
	totals := make(map[int64]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}

	lines := make([]stockLine, 0, len(totals))
	for id, qty := range totals {
		lines = append(lines, stockLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func productIDs(items []models.OrderItem) []int64 {
	lines := stockLines(items)
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	return ids
}

func failureReason(err error) string {
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "db_error"
}

func newBaseEvent(eventType string, order *models.Order) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		OrderID:   order.ID,
		UserID:    order.UserID,
	}
}
