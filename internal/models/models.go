package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Category is one of the fixed catalog categories.
type Category string

const (
	CategoryFruits     Category = "fruits"
	CategoryVegetables Category = "vegetables"
	CategoryDairy      Category = "dairy"
	CategoryMeat       Category = "meat"
	CategoryBakery     Category = "bakery"
	CategoryBeverages  Category = "beverages"
	CategorySnacks     Category = "snacks"
	CategoryFrozen     Category = "frozen"
	CategoryPantry     Category = "pantry"
	CategoryReadyMeals Category = "ready-meals"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryFruits,
	CategoryVegetables,
	CategoryDairy,
	CategoryMeat,
	CategoryBakery,
	CategoryBeverages,
	CategorySnacks,
	CategoryFrozen,
	CategoryPantry,
	CategoryReadyMeals,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Category    Category        `db:"category" json:"category"`
	Stock       int             `db:"stock" json:"stock"`
	ImageURL    string          `db:"image_url" json:"image_url"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// CategorySummary is the per-category aggregate shown on the catalog landing page.
type CategorySummary struct {
	Category Category        `db:"category" json:"category"`
	Count    int64           `db:"count" json:"count"`
	AvgPrice decimal.Decimal `db:"avg_price" json:"avg_price"`
}

// ShippingAddress is stored inline on the order row.
type ShippingAddress struct {
	Street  string `db:"shipping_street" json:"street"`
	City    string `db:"shipping_city" json:"city"`
	State   string `db:"shipping_state" json:"state"`
	ZipCode string `db:"shipping_zip_code" json:"zip_code"`
	Country string `db:"shipping_country" json:"country"`
}

// DefaultCountry is used when a shipping address omits the country.
const DefaultCountry = "USA"

// Order represents a customer order
type Order struct {
	ID              int64           `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Items           []OrderItem     `db:"-" json:"items"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"total_amount"`
	PaymentStatus   PaymentStatus   `db:"payment_status" json:"payment_status"`
	OrderStatus     OrderStatus     `db:"order_status" json:"order_status"`
	ShippingAddress `json:"shipping_address"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is a line item with the unit price captured at placement time.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"-"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// Subtotal returns price × quantity for the line.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SumItems totals a set of line items using their captured prices.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// OwnedBy reports whether the order belongs to the given user.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

// OrderStats aggregates every order in the store.
type OrderStats struct {
	TotalOrders     int64           `json:"total_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	AvgOrderValue   decimal.Decimal `json:"avg_order_value"`
	ByOrderStatus   []StatusCount   `json:"order_status"`
	ByPaymentStatus []StatusCount   `json:"payment_status"`
}

// StatusCount is a single group of a status breakdown.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int64  `db:"count" json:"count"`
}

// OrderEvent is one entry of an order's history timeline.
type OrderEvent struct {
	EventID   string         `db:"event_id" json:"event_id"`
	OrderID   int64          `db:"order_id" json:"order_id"`
	EventType string         `db:"event_type" json:"event_type"`
	Payload   types.JSONText `db:"payload" json:"payload"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Principal is the authenticated identity performing an action.
type Principal struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// CanAccess reports whether the principal may read or act on the order.
func (p Principal) CanAccess(o *Order) bool {
	return p.IsAdmin || o.OwnedBy(p.UserID)
}

// ProductPatch carries the fields of a partial product update. Nil fields are left unchanged.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *Category        `json:"category"`
	Stock       *int             `json:"stock"`
	ImageURL    *string          `json:"image_url"`
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.Category == nil && p.Stock == nil && p.ImageURL == nil
}
