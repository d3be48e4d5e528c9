package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-api/internal/models"
	"storefront-api/internal/service"
	"storefront-api/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderPlacer places orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, principal models.Principal, req service.PlaceOrderRequest) (*models.Order, error)
}

// OrderLifecycle serves order reads and state changes.
type OrderLifecycle interface {
	CancelOrder(ctx context.Context, principal models.Principal, orderID int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, principal models.Principal, orderID int64, update service.StatusUpdate) (*models.Order, error)
	GetOrder(ctx context.Context, principal models.Principal, orderID int64) (*models.Order, error)
	ListMyOrders(ctx context.Context, principal models.Principal, page models.Page) (*models.OrderList, error)
	ListOrders(ctx context.Context, principal models.Principal, q models.OrderQuery) (*models.OrderList, error)
	Stats(ctx context.Context, principal models.Principal) (*models.OrderStats, error)
	History(ctx context.Context, principal models.Principal, orderID int64) ([]models.OrderEvent, error)
}

// Catalog serves and maintains products.
type Catalog interface {
	List(ctx context.Context, q models.ProductQuery) (*models.ProductList, error)
	ListByCategory(ctx context.Context, category models.Category, page models.Page) (*models.ProductList, error)
	Get(ctx context.Context, id int64) (*models.Product, error)
	Categories(ctx context.Context) ([]models.CategorySummary, error)
	Create(ctx context.Context, principal models.Principal, in service.ProductInput) (*models.Product, error)
	Update(ctx context.Context, principal models.Principal, id int64, patch models.ProductPatch) (*models.Product, error)
	Delete(ctx context.Context, principal models.Principal, id int64) error
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders    OrderPlacer
	lifecycle OrderLifecycle
	catalog   Catalog
	auth      *Authenticator
	checks    map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderPlacer, lifecycle OrderLifecycle, catalog Catalog, auth *Authenticator, checks map[string]Pinger) *Handler {
	return &Handler{
		orders:    orders,
		lifecycle: lifecycle,
		catalog:   catalog,
		auth:      auth,
		checks:    checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	products := v1.Group("/products")
	{
		products.GET("", h.listProducts)
		products.GET("/categories", h.listCategories)
		products.GET("/category/:category", h.listProductsByCategory)
		products.GET("/:id", h.getProduct)

		admin := products.Group("", h.auth.Required(), RequireAdmin())
		admin.POST("", h.createProduct)
		admin.PUT("/:id", h.updateProduct)
		admin.DELETE("/:id", h.deleteProduct)
	}

	orders := v1.Group("/orders", h.auth.Required())
	{
		orders.POST("", h.placeOrder)
		orders.GET("/my", h.listMyOrders)
		orders.GET("/stats", RequireAdmin(), h.orderStats)
		orders.GET("", RequireAdmin(), h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.GET("/:id/history", h.orderHistory)
		orders.PUT("/:id/status", RequireAdmin(), h.updateOrderStatus)
		orders.PUT("/:id/cancel", h.cancelOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().Unix(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid ID")
		return 0, false
	}
	return id, true
}

// pageParams holds the page/limit pair shared by list endpoints.
type pageParams struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

func (p pageParams) page() models.Page {
	return models.Page{Page: p.Page, Limit: p.Limit}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
