package service

import (
	"context"
	"testing"

	"storefront-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOne(t *testing.T, f *orderFixture, who models.Principal, productID int64, qty int) *models.Order {
	t.Helper()
	order, err := f.orders.PlaceOrder(context.Background(), who, request(OrderItemRequest{ProductID: productID, Quantity: qty}))
	require.NoError(t, err)
	return order
}

func statusPtr(s models.OrderStatus) *models.OrderStatus { return &s }

func paymentPtr(s models.PaymentStatus) *models.PaymentStatus { return &s }

func TestCancelOrderRestoresStockOnce(t *testing.T) {
	for _, from := range []models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusShipped} {
		t.Run(string(from), func(t *testing.T) {
			f := newOrderFixture()
			f.repo.addProduct(1, "Flour", "3.10", 10)
			order := placeOne(t, f, customer, 1, 4)
			f.repo.setStatus(order.ID, from)

			cancelled, err := f.lifecycle.CancelOrder(context.Background(), customer, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.OrderStatusCancelled, cancelled.OrderStatus)
			assert.Equal(t, 10, f.repo.stock(1))

			_, err = f.lifecycle.CancelOrder(context.Background(), customer, order.ID)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Contains(t, err.Error(), "already cancelled")
			assert.Equal(t, 10, f.repo.stock(1), "second cancel must not restore again")

			require.Len(t, f.publisher.cancelled, 1)
			assert.Equal(t, from, f.publisher.cancelled[0].PreviousStatus)
			assert.Equal(t, customer.UserID, f.publisher.cancelled[0].CancelledBy)
		})
	}
}

func TestCancelDeliveredOrder(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	order := placeOne(t, f, customer, 1, 4)
	f.repo.setStatus(order.ID, models.OrderStatusDelivered)

	_, err := f.lifecycle.CancelOrder(context.Background(), customer, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "delivered")
	assert.Equal(t, 6, f.repo.stock(1))
}

func TestCancelOrderVisibility(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	order := placeOne(t, f, customer, 1, 4)

	_, err := f.lifecycle.CancelOrder(context.Background(), stranger, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, 6, f.repo.stock(1))

	_, err = f.lifecycle.CancelOrder(context.Background(), customer, 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.lifecycle.CancelOrder(context.Background(), admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.repo.stock(1))
}

func TestCancelOrderOfDeletedProduct(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	f.repo.addProduct(2, "Yeast", "0.99", 10)
	order, err := f.orders.PlaceOrder(context.Background(), customer, request(
		OrderItemRequest{ProductID: 1, Quantity: 1},
		OrderItemRequest{ProductID: 2, Quantity: 2},
	))
	require.NoError(t, err)
	delete(f.repo.products, 1)

	_, err = f.lifecycle.CancelOrder(context.Background(), customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, f.repo.stock(2))
}

func TestUpdateStatus(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	order := placeOne(t, f, customer, 1, 4)
	ctx := context.Background()

	_, err := f.lifecycle.UpdateStatus(ctx, customer, order.ID, StatusUpdate{OrderStatus: statusPtr(models.OrderStatusShipped)})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{OrderStatus: statusPtr("lost")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{PaymentStatus: paymentPtr("refunded")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.lifecycle.UpdateStatus(ctx, admin, 404, StatusUpdate{OrderStatus: statusPtr(models.OrderStatusShipped)})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	updated, err := f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{
		OrderStatus:   statusPtr(models.OrderStatusShipped),
		PaymentStatus: paymentPtr(models.PaymentStatusPaid),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.OrderStatus)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)

	updated, err = f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{OrderStatus: statusPtr(models.OrderStatusDelivered)})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, updated.OrderStatus)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus, "unspecified fields are kept")

	require.Len(t, f.publisher.updated, 2)
	assert.Equal(t, admin.UserID, f.publisher.updated[1].UpdatedBy)
	assert.Equal(t, 6, f.repo.stock(1))
}

func TestUpdateStatusToCancelledRestoresStock(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	order := placeOne(t, f, customer, 1, 4)
	ctx := context.Background()

	updated, err := f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{
		OrderStatus:   statusPtr(models.OrderStatusCancelled),
		PaymentStatus: paymentPtr(models.PaymentStatusFailed),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, updated.OrderStatus)
	assert.Equal(t, models.PaymentStatusFailed, updated.PaymentStatus)
	assert.Equal(t, 10, f.repo.stock(1))
	assert.Len(t, f.publisher.cancelled, 1)
	assert.Len(t, f.publisher.updated, 1)

	_, err = f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{OrderStatus: statusPtr(models.OrderStatusCancelled)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 10, f.repo.stock(1))

	_, err = f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{OrderStatus: statusPtr(models.OrderStatusProcessing)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err = f.lifecycle.UpdateStatus(ctx, admin, order.ID, StatusUpdate{PaymentStatus: paymentPtr(models.PaymentStatusPending)})
	require.NoError(t, err, "payment status of a cancelled order can still change")
	assert.Equal(t, models.OrderStatusCancelled, updated.OrderStatus)
}

func TestUpdateStatusCancelDeliveredRejected(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	order := placeOne(t, f, customer, 1, 4)
	f.repo.setStatus(order.ID, models.OrderStatusDelivered)

	_, err := f.lifecycle.UpdateStatus(context.Background(), admin, order.ID, StatusUpdate{
		OrderStatus:   statusPtr(models.OrderStatusCancelled),
		PaymentStatus: paymentPtr(models.PaymentStatusFailed),
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 6, f.repo.stock(1))

	got, err := f.lifecycle.GetOrder(context.Background(), admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.PaymentStatus, "failed update leaves the order untouched")
}

func TestGetOrderVisibility(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	order := placeOne(t, f, customer, 1, 1)
	ctx := context.Background()

	got, err := f.lifecycle.GetOrder(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Len(t, got.Items, 1)

	_, err = f.lifecycle.GetOrder(ctx, stranger, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.lifecycle.GetOrder(ctx, admin, order.ID)
	assert.NoError(t, err)

	_, err = f.lifecycle.GetOrder(ctx, admin, 404)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListMyOrdersOnlyOwn(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 100)
	for i := 0; i < 3; i++ {
		placeOne(t, f, customer, 1, 1)
	}
	placeOne(t, f, stranger, 1, 1)

	list, err := f.lifecycle.ListMyOrders(context.Background(), customer, models.Page{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 2)
	assert.Equal(t, int64(3), list.Pagination.TotalItems)
	assert.Equal(t, 2, list.Pagination.TotalPages)
	assert.True(t, list.Pagination.HasNextPage)
	for _, o := range list.Orders {
		assert.Equal(t, customer.UserID, o.UserID)
	}
	assert.Greater(t, list.Orders[0].ID, list.Orders[1].ID, "newest first")
}

func TestListOrdersAdminOnly(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 100)
	placeOne(t, f, customer, 1, 1)
	shipped := placeOne(t, f, stranger, 1, 1)
	f.repo.setStatus(shipped.ID, models.OrderStatusShipped)
	ctx := context.Background()

	_, err := f.lifecycle.ListOrders(ctx, customer, models.OrderQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.lifecycle.ListOrders(ctx, admin, models.OrderQuery{SortBy: "user_id"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, err := f.lifecycle.ListOrders(ctx, admin, models.OrderQuery{OrderStatus: models.OrderStatusShipped})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, shipped.ID, list.Orders[0].ID)
}

func TestStatsAdminOnly(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 100)
	placeOne(t, f, customer, 1, 1)
	placeOne(t, f, customer, 1, 3)

	_, err := f.lifecycle.Stats(context.Background(), customer)
	assert.ErrorIs(t, err, ErrUnauthorized)

	stats, err := f.lifecycle.Stats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalOrders)
	assert.Equal(t, "12.40", stats.TotalRevenue.StringFixed(2))
	assert.Equal(t, "6.20", stats.AvgOrderValue.StringFixed(2))
}

func TestHistoryVisibility(t *testing.T) {
	f := newOrderFixture()
	f.repo.addProduct(1, "Flour", "3.10", 10)
	order := placeOne(t, f, customer, 1, 1)
	f.repo.events[order.ID] = []models.OrderEvent{{
		EventID:   "evt-1",
		OrderID:   order.ID,
		EventType: models.EventTypeOrderCreated,
		Payload:   []byte(`{}`),
	}}

	events, err := f.lifecycle.History(context.Background(), customer, order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = f.lifecycle.History(context.Background(), stranger, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
