package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-api/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, total_amount, payment_status, order_status,
	shipping_street, shipping_city, shipping_state, shipping_zip_code, shipping_country,
	created_at, updated_at`

var orderSortColumns = map[models.OrderSort]string{
	models.OrderSortCreatedAt:   "created_at",
	models.OrderSortUpdatedAt:   "updated_at",
	models.OrderSortTotalAmount: "total_amount",
}

// CreateOrder inserts an order with its items and fills generated fields.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total_amount, payment_status, order_status,
			shipping_street, shipping_city, shipping_state, shipping_zip_code, shipping_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.ext(ctx), order, query,
		order.UserID, order.TotalAmount, order.PaymentStatus, order.OrderStatus,
		order.Street, order.City, order.State, order.ZipCode, order.Country)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := s.createOrderItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if err := sqlx.GetContext(ctx, s.ext(ctx), &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.Price); err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order and its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// GetOrderForUpdate retrieves an order and locks its row until the surrounding
// transaction ends. Must be called inside WithTx.
func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	if txFromContext(ctx) == nil {
		return nil, errors.New("get order for update: no transaction in context")
	}
	return s.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (s *Store) getOrder(ctx context.Context, query string, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.ext(ctx), &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	items, err := s.GetOrderItemsByOrderID(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, s.ext(ctx), &items,
		"SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("get items for order %d: %w", orderID, err)
	}
	return items, nil
}

// ListOrders returns one page of orders matching q, with items, and the total
// match count. q must be normalized and validated by the caller.
func (s *Store) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, int64, error) {
	var where whereBuilder
	if q.UserID != "" {
		where.add("user_id = $%d", q.UserID)
	}
	if q.OrderStatus != "" {
		where.add("order_status = $%d", q.OrderStatus)
	}
	if q.PaymentStatus != "" {
		where.add("payment_status = $%d", q.PaymentStatus)
	}

	column, ok := orderSortColumns[q.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported order sort %q", q.SortBy)
	}

	var total int64
	if err := sqlx.GetContext(ctx, s.ext(ctx), &total,
		"SELECT COUNT(*) FROM orders"+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM orders%s ORDER BY %s %s, id %s LIMIT %d OFFSET %d",
		orderColumns, where.String(), column, direction(q.SortOrder), direction(q.SortOrder), q.Limit, q.Offset())

	orders := []models.Order{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &orders, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// attachItems loads the items of every order in one query.
func (s *Store) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		orders[i].Items = []models.OrderItem{}
		byID[orders[i].ID] = &orders[i]
	}

	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, s.ext(ctx), &items,
		"SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = ANY($1) ORDER BY id",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	for _, item := range items {
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return nil
}

// UpdateOrderStatus sets whichever of the two statuses is non-nil and returns
// the updated order.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, orderStatus *models.OrderStatus, paymentStatus *models.PaymentStatus) (*models.Order, error) {
	query := `
		UPDATE orders
		SET order_status = COALESCE($2, order_status),
			payment_status = COALESCE($3, payment_status),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + orderColumns

	var order models.Order
	err := sqlx.GetContext(ctx, s.ext(ctx), &order, query, id, nullableStatus(orderStatus), nullableStatus(paymentStatus))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order %d status: %w", id, err)
	}

	items, err := s.GetOrderItemsByOrderID(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func nullableStatus[T ~string](v *T) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

// OrderStats aggregates every order: totals, average and status breakdowns.
func (s *Store) OrderStats(ctx context.Context) (*models.OrderStats, error) {
	stats := &models.OrderStats{}
	row := s.ext(ctx).QueryRowxContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(total_amount), 0),
			COALESCE(ROUND(AVG(total_amount), 2), 0)
		FROM orders`)
	if err := row.Scan(&stats.TotalOrders, &stats.TotalRevenue, &stats.AvgOrderValue); err != nil {
		return nil, fmt.Errorf("order overview: %w", err)
	}

	stats.ByOrderStatus = []models.StatusCount{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &stats.ByOrderStatus,
		"SELECT order_status AS status, COUNT(*) AS count FROM orders GROUP BY order_status ORDER BY order_status"); err != nil {
		return nil, fmt.Errorf("order status breakdown: %w", err)
	}

	stats.ByPaymentStatus = []models.StatusCount{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &stats.ByPaymentStatus,
		"SELECT payment_status AS status, COUNT(*) AS count FROM orders GROUP BY payment_status ORDER BY payment_status"); err != nil {
		return nil, fmt.Errorf("payment status breakdown: %w", err)
	}

	return stats, nil
}

// AppendOrderEvent records an event in the order's history. It reports false
// when the event id was already recorded.
func (s *Store) AppendOrderEvent(ctx context.Context, event models.OrderEvent) (bool, error) {
	res, err := s.ext(ctx).ExecContext(ctx, `
		INSERT INTO order_events (event_id, order_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.OrderID, event.EventType, event.Payload, event.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("append order event %s: %w", event.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListOrderEvents returns an order's history, oldest first.
func (s *Store) ListOrderEvents(ctx context.Context, orderID int64) ([]models.OrderEvent, error) {
	events := []models.OrderEvent{}
	err := sqlx.SelectContext(ctx, s.ext(ctx), &events, `
		SELECT event_id, order_id, event_type, payload, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY created_at, event_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list events for order %d: %w", orderID, err)
	}
	return events, nil
}
