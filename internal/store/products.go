package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront-api/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrConstraint is returned when a write violates a table constraint.
var ErrConstraint = errors.New("constraint violation")

const productColumns = `id, name, description, price, category, stock, image_url, created_at, updated_at`

var productSortColumns = map[models.ProductSort]string{
	models.ProductSortCreatedAt: "created_at",
	models.ProductSortPrice:     "price",
	models.ProductSortName:      "name",
	models.ProductSortStock:     "stock",
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.ext(ctx), &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return &product, nil
}

// ListProducts returns one page of products matching q and the total match count.
// q must be normalized and validated by the caller.
func (s *Store) ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int64, error) {
	var where whereBuilder
	if q.Category != "" {
		where.add("category = $%d", q.Category)
	}
	if q.Search != "" {
		where.add("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+escapeLike(q.Search)+"%")
	}
	if q.MinPrice != nil {
		where.add("price >= $%d", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		where.add("price <= $%d", *q.MaxPrice)
	}

	column, ok := productSortColumns[q.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported product sort %q", q.SortBy)
	}

	var total int64
	if err := sqlx.GetContext(ctx, s.ext(ctx), &total,
		"SELECT COUNT(*) FROM products"+where.String(), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY %s %s, id %s LIMIT %d OFFSET %d",
		productColumns, where.String(), column, direction(q.SortOrder), direction(q.SortOrder), q.Limit, q.Offset())

	products := []models.Product{}
	if err := sqlx.SelectContext(ctx, s.ext(ctx), &products, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// CreateProduct inserts a product and fills its generated fields.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, category, stock, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := sqlx.GetContext(ctx, s.ext(ctx), p, query,
		p.Name, p.Description, p.Price, p.Category, p.Stock, p.ImageURL)
	if isCheckViolation(err) {
		return ErrConstraint
	}
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// UpdateProduct writes the non-nil fields of patch in a single statement and
// returns the updated product. Untouched columns, stock included, keep
// whatever concurrent writers left in them.
func (s *Store) UpdateProduct(ctx context.Context, id int64, patch models.ProductPatch) (*models.Product, error) {
	query := `
		UPDATE products
		SET name = COALESCE($1, name),
			description = COALESCE($2, description),
			price = COALESCE($3, price),
			category = COALESCE($4, category),
			stock = COALESCE($5, stock),
			image_url = COALESCE($6, image_url),
			updated_at = NOW()
		WHERE id = $7
		RETURNING ` + productColumns

	var product models.Product
	err := sqlx.GetContext(ctx, s.ext(ctx), &product, query,
		patch.Name, patch.Description, patch.Price, patch.Category, patch.Stock, patch.ImageURL, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if isCheckViolation(err) {
		return nil, ErrConstraint
	}
	if err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return &product, nil
}

// DeleteProduct removes a product. Order items keep their product id and captured price.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.ext(ctx).ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	return expectRow(res)
}

// CategorySummaries returns product count and average price per category.
func (s *Store) CategorySummaries(ctx context.Context) ([]models.CategorySummary, error) {
	summaries := []models.CategorySummary{}
	err := sqlx.SelectContext(ctx, s.ext(ctx), &summaries, `
		SELECT category, COUNT(*) AS count, ROUND(AVG(price), 2) AS avg_price
		FROM products
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("category summaries: %w", err)
	}
	return summaries, nil
}

// DecrementStock removes quantity from a product's stock only if enough is
// available. It reports false, without changing anything, when the product is
// missing or short. The row lock taken by the UPDATE serializes concurrent
// reservations against the same product.
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("decrement stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementStock returns quantity to a product's stock. It reports false when
// the product no longer exists.
func (s *Store) IncrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("increment stock for product %d: %w", productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type whereBuilder struct {
	clauses []string
	args    []interface{}
}

// add appends a clause whose placeholder verb receives the new argument's position.
func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func direction(d models.SortDirection) string {
	if d == models.SortAsc {
		return "ASC"
	}
	return "DESC"
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
