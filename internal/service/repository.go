package service

import (
	"context"
	"time"

	"storefront-api/internal/models"
)

// Transactor runs fn in one database transaction. Repository calls made with
// the context handed to fn take part in it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository is the product side of the store.
type ProductRepository interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int64, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, id int64, patch models.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CategorySummaries(ctx context.Context) ([]models.CategorySummary, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error)
}

// OrderRepository is the order side of the store.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, orderStatus *models.OrderStatus, paymentStatus *models.PaymentStatus) (*models.Order, error)
	OrderStats(ctx context.Context) (*models.OrderStats, error)
	ListOrderEvents(ctx context.Context, orderID int64) ([]models.OrderEvent, error)
}

// Repository is everything the order services need from storage.
type Repository interface {
	Transactor
	ProductRepository
	OrderRepository
}

// IdempotencyStore remembers which order answered a client's idempotency key.
type IdempotencyStore interface {
	LookupOrder(ctx context.Context, scope, key string) (int64, bool, error)
	RememberOrder(ctx context.Context, scope, key string, orderID int64, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// ProductCache is a read-through cache of single products. GetProduct returns
// the entry version along with a miss; SetProduct only writes while that
// version is current, so a fill never overwrites a later invalidation.
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, int64, error)
	SetProduct(ctx context.Context, product *models.Product, version int64, ttl time.Duration) (bool, error)
	InvalidateProducts(ctx context.Context, ids ...int64) error
}

// EventPublisher emits order domain events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusUpdated(ctx context.Context, event *models.OrderStatusUpdatedEvent) error
}
