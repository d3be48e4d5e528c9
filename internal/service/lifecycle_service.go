package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-api/internal/models"
	"storefront-api/internal/store"
	"storefront-api/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LifecycleService moves orders through their lifecycle and serves order reads.
type LifecycleService struct {
	repo      Repository
	cache     ProductCache
	publisher EventPublisher
	logger    *zap.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(repo Repository, cache ProductCache, publisher EventPublisher) *LifecycleService {
	return &LifecycleService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// StatusUpdate is an administrative status change. Nil fields are left unchanged.
type StatusUpdate struct {
	OrderStatus   *models.OrderStatus   `json:"order_status"`
	PaymentStatus *models.PaymentStatus `json:"payment_status"`
}

func (u StatusUpdate) Validate() error {
	if u.OrderStatus == nil && u.PaymentStatus == nil {
		return invalidInput("At least one of order_status or payment_status is required")
	}
	if u.OrderStatus != nil && !u.OrderStatus.Valid() {
		return invalidInput("Invalid order status %q", *u.OrderStatus)
	}
	if u.PaymentStatus != nil && !u.PaymentStatus.Valid() {
		return invalidInput("Invalid payment status %q", *u.PaymentStatus)
	}
	return nil
}

// cancellation is the outcome of a committed cancel.
type cancellation struct {
	order    *models.Order
	previous models.OrderStatus
}

// CancelOrder cancels an order on behalf of its owner or an admin and returns
// every item's quantity to stock.
func (s *LifecycleService) CancelOrder(ctx context.Context, principal models.Principal, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.CancelOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	var result *cancellation
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.lockOrder(ctx, principal, orderID)
		if err != nil {
			return err
		}
		result, err = s.cancelLocked(ctx, order)
		return err
	})
	if err != nil {
		return nil, s.wrap("cancel order", err)
	}

	s.afterCancel(ctx, principal, result)
	return result.order, nil
}

// UpdateStatus applies an administrative status change. A cancelled target
// goes through the same path as CancelOrder so stock is restored once.
func (s *LifecycleService) UpdateStatus(ctx context.Context, principal models.Principal, orderID int64, update StatusUpdate) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.UpdateStatus", attribute.Int64("order.id", orderID))
	defer span.End()

	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var (
		updated   *models.Order
		cancelled *cancellation
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.lockOrder(ctx, principal, orderID)
		if err != nil {
			return err
		}

		orderStatus := update.OrderStatus
		if orderStatus != nil && *orderStatus == models.OrderStatusCancelled {
			cancelled, err = s.cancelLocked(ctx, order)
			if err != nil {
				return err
			}
			updated = cancelled.order
			orderStatus = nil
		} else if orderStatus != nil && order.OrderStatus == models.OrderStatusCancelled {
			return invalidTransition("Cannot change the status of a cancelled order")
		}

		if orderStatus == nil && update.PaymentStatus == nil {
			return nil
		}
		updated, err = s.repo.UpdateOrderStatus(ctx, orderID, orderStatus, update.PaymentStatus)
		return err
	})
	if err != nil {
		return nil, s.wrap("update order status", err)
	}

	if cancelled != nil {
		s.afterCancel(ctx, principal, cancelled)
	}

	util.OrderStatusUpdatesTotal.WithLabelValues(string(updated.OrderStatus)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", updated.ID),
		zap.String("order_status", string(updated.OrderStatus)),
		zap.String("payment_status", string(updated.PaymentStatus)),
		zap.String("updated_by", principal.UserID))

	event := &models.OrderStatusUpdatedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderStatusUpdated, updated),
		OrderStatus:   updated.OrderStatus,
		PaymentStatus: updated.PaymentStatus,
		UpdatedBy:     principal.UserID,
	}
	if err := s.publisher.PublishOrderStatusUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusUpdated event", zap.Int64("order_id", updated.ID), zap.Error(err))
	}
	return updated, nil
}

// lockOrder loads the order FOR UPDATE and hides it from callers who may not see it.
func (s *LifecycleService) lockOrder(ctx context.Context, principal models.Principal, orderID int64) (*models.Order, error) {
	order, err := s.repo.GetOrderForUpdate(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, orderNotFound()
	}
	if err != nil {
		return nil, err
	}
	if !principal.CanAccess(order) {
		return nil, orderNotFound()
	}
	return order, nil
}

// cancelLocked cancels an order whose row is locked by the current transaction.
func (s *LifecycleService) cancelLocked(ctx context.Context, order *models.Order) (*cancellation, error) {
	switch order.OrderStatus {
	case models.OrderStatusDelivered:
		return nil, invalidTransition("Cannot cancel a delivered order")
	case models.OrderStatusCancelled:
		return nil, invalidTransition("Order is already cancelled")
	}

	cancelled := models.OrderStatusCancelled
	updated, err := s.repo.UpdateOrderStatus(ctx, order.ID, &cancelled, nil)
	if err != nil {
		return nil, err
	}

	for _, line := range stockLines(order.Items) {
		ok, err := s.repo.IncrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Warn("Product no longer exists, stock not restored",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity))
		}
	}

	return &cancellation{order: updated, previous: order.OrderStatus}, nil
}

func (s *LifecycleService) afterCancel(ctx context.Context, principal models.Principal, c *cancellation) {
	units := 0
	for _, item := range c.order.Items {
		units += item.Quantity
	}
	util.OrdersCancelledTotal.Inc()
	util.StockRestoredUnits.Add(float64(units))

	s.logger.Info("Order cancelled",
		zap.Int64("order_id", c.order.ID),
		zap.String("previous_status", string(c.previous)),
		zap.String("cancelled_by", principal.UserID))

	if err := s.cache.InvalidateProducts(ctx, productIDs(c.order.Items)...); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}

	event := &models.OrderCancelledEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderCancelled, c.order),
		PreviousStatus: c.previous,
		CancelledBy:    principal.UserID,
		Items:          models.ItemData(c.order.Items),
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Int64("order_id", c.order.ID), zap.Error(err))
	}
}

// GetOrder returns an order visible to the principal.
func (s *LifecycleService) GetOrder(ctx context.Context, principal models.Principal, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.GetOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, orderNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if !principal.CanAccess(order) {
		return nil, orderNotFound()
	}
	return order, nil
}

// ListMyOrders returns the principal's own orders, newest first.
func (s *LifecycleService) ListMyOrders(ctx context.Context, principal models.Principal, page models.Page) (*models.OrderList, error) {
	if principal.UserID == "" {
		return nil, unauthorized("Authentication required")
	}
	return s.listOrders(ctx, models.OrderQuery{Page: page, UserID: principal.UserID})
}

// ListOrders returns every order matching q. Admin only.
func (s *LifecycleService) ListOrders(ctx context.Context, principal models.Principal, q models.OrderQuery) (*models.OrderList, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	return s.listOrders(ctx, q)
}

func (s *LifecycleService) listOrders(ctx context.Context, q models.OrderQuery) (*models.OrderList, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.ListOrders")
	defer span.End()

	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: err.Error()}
	}

	orders, total, err := s.repo.ListOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return &models.OrderList{Orders: orders, Pagination: models.NewPagination(q.Page, total)}, nil
}

// Stats aggregates all orders. Admin only.
func (s *LifecycleService) Stats(ctx context.Context, principal models.Principal) (*models.OrderStats, error) {
	if err := requireAdmin(principal); err != nil {
		return nil, err
	}

	stats, err := s.repo.OrderStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute order stats: %w", err)
	}
	return stats, nil
}

// History returns the recorded event timeline of an order visible to the principal.
func (s *LifecycleService) History(ctx context.Context, principal models.Principal, orderID int64) ([]models.OrderEvent, error) {
	if _, err := s.GetOrder(ctx, principal, orderID); err != nil {
		return nil, err
	}

	events, err := s.repo.ListOrderEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order history: %w", err)
	}
	return events, nil
}

// wrap leaves domain errors untouched and annotates infrastructure failures.
func (s *LifecycleService) wrap(op string, err error) error {
	if KindOf(err) != "" {
		return err
	}
	s.logger.Error("Lifecycle operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("failed to %s: %w", op, err)
}
