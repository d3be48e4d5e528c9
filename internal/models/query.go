package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultProductLimit = 12
	DefaultOrderLimit   = 10
	MaxLimit            = 100
)

// SortDirection orders list results.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ProductSort is a sortable product column.
type ProductSort string

const (
	ProductSortCreatedAt ProductSort = "created_at"
	ProductSortPrice     ProductSort = "price"
	ProductSortName      ProductSort = "name"
	ProductSortStock     ProductSort = "stock"
)

// OrderSort is a sortable order column.
type OrderSort string

const (
	OrderSortCreatedAt   OrderSort = "created_at"
	OrderSortUpdatedAt   OrderSort = "updated_at"
	OrderSortTotalAmount OrderSort = "total_amount"
)

// Page is the shared page/limit pair of every list query.
type Page struct {
	Page  int
	Limit int
}

func (p *Page) normalize(defaultLimit int) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = defaultLimit
	}
}

func (p Page) validate() error {
	if p.Page < 1 {
		return fmt.Errorf("page must be a positive integer")
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	}
	return nil
}

// Offset is the number of rows skipped before the page starts.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ProductQuery filters, sorts and paginates the catalog.
type ProductQuery struct {
	Page
	Category  Category
	Search    string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	SortBy    ProductSort
	SortOrder SortDirection
}

// Normalize fills defaults for unset fields.
func (q *ProductQuery) Normalize() {
	q.Page.normalize(DefaultProductLimit)
	q.Search = strings.TrimSpace(q.Search)
	if q.SortBy == "" {
		q.SortBy = ProductSortCreatedAt
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
}

// Validate rejects values the store must never see.
func (q ProductQuery) Validate() error {
	if err := q.Page.validate(); err != nil {
		return err
	}
	if q.Category != "" && !q.Category.Valid() {
		return fmt.Errorf("invalid category %q", q.Category)
	}
	if q.MinPrice != nil && q.MinPrice.IsNegative() {
		return fmt.Errorf("minimum price must be a positive number")
	}
	if q.MaxPrice != nil && q.MaxPrice.IsNegative() {
		return fmt.Errorf("maximum price must be a positive number")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return fmt.Errorf("minimum price exceeds maximum price")
	}
	switch q.SortBy {
	case ProductSortCreatedAt, ProductSortPrice, ProductSortName, ProductSortStock:
	default:
		return fmt.Errorf("invalid sort key %q", q.SortBy)
	}
	return validateDirection(q.SortOrder)
}

// OrderQuery filters, sorts and paginates orders. UserID restricts the
// result to a single owner when set.
type OrderQuery struct {
	Page
	UserID        string
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	SortBy        OrderSort
	SortOrder     SortDirection
}

func (q *OrderQuery) Normalize() {
	q.Page.normalize(DefaultOrderLimit)
	if q.SortBy == "" {
		q.SortBy = OrderSortCreatedAt
	}
	if q.SortOrder == "" {
		q.SortOrder = SortDesc
	}
}

func (q OrderQuery) Validate() error {
	if err := q.Page.validate(); err != nil {
		return err
	}
	if q.OrderStatus != "" && !q.OrderStatus.Valid() {
		return fmt.Errorf("invalid order status %q", q.OrderStatus)
	}
	if q.PaymentStatus != "" && !q.PaymentStatus.Valid() {
		return fmt.Errorf("invalid payment status %q", q.PaymentStatus)
	}
	switch q.SortBy {
	case OrderSortCreatedAt, OrderSortUpdatedAt, OrderSortTotalAmount:
	default:
		return fmt.Errorf("invalid sort key %q", q.SortBy)
	}
	return validateDirection(q.SortOrder)
}

func validateDirection(d SortDirection) error {
	if d != SortAsc && d != SortDesc {
		return fmt.Errorf("invalid sort order %q", d)
	}
	return nil
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	HasNextPage bool  `json:"has_next_page"`
	HasPrevPage bool  `json:"has_prev_page"`
}

// NewPagination computes page metadata for total matching rows.
func NewPagination(p Page, total int64) Pagination {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Pagination{
		CurrentPage: p.Page,
		TotalPages:  totalPages,
		TotalItems:  total,
		HasNextPage: p.Page < totalPages,
		HasPrevPage: p.Page > 1,
	}
}

// ProductList is one page of catalog results.
type ProductList struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}
