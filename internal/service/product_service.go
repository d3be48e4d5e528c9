package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"storefront-api/internal/models"
	"storefront-api/internal/store"
	"storefront-api/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService serves and maintains the catalog
type ProductService struct {
	repo     ProductRepository
	cache    ProductCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(repo ProductRepository, cache ProductCache, cacheTTL time.Duration) *ProductService {
	return &ProductService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// ProductInput is the body of a product creation.
type ProductInput struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Category    models.Category `json:"category" binding:"required"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url"`
}

func (in *ProductInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
}

func (in ProductInput) validate() error {
	if err := validateName(in.Name); err != nil {
		return err
	}
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	if err := validatePrice(in.Price); err != nil {
		return err
	}
	if !in.Category.Valid() {
		return invalidInput("Invalid category %q", in.Category)
	}
	if in.Stock < 0 {
		return invalidInput("Stock must be a non-negative integer")
	}
	return validateImageURL(in.ImageURL)
}

func normalizePatch(p *models.ProductPatch) {
	for _, field := range []*string{p.Name, p.Description, p.ImageURL} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
}

func validatePatch(p models.ProductPatch) error {
	if p.Empty() {
		return invalidInput("No fields to update")
	}
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Price != nil {
		if err := validatePrice(*p.Price); err != nil {
			return err
		}
	}
	if p.Category != nil && !p.Category.Valid() {
		return invalidInput("Invalid category %q", *p.Category)
	}
	if p.Stock != nil && *p.Stock < 0 {
		return invalidInput("Stock must be a non-negative integer")
	}
	if p.ImageURL != nil {
		return validateImageURL(*p.ImageURL)
	}
	return nil
}

func validateName(name string) error {
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		return invalidInput("Product name must be between 2 and 100 characters")
	}
	return nil
}

func validateDescription(desc string) error {
	if n := utf8.RuneCountInString(desc); n < 10 || n > 500 {
		return invalidInput("Description must be between 10 and 500 characters")
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return invalidInput("Price must be a positive number")
	}
	if !price.Equal(price.Round(2)) {
		return invalidInput("Price must have at most two decimal places")
	}
	return nil
}

func validateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalidInput("Image URL must be a valid URL")
	}
	return nil
}

// List returns one page of the catalog.
func (s *ProductService) List(ctx context.Context, q models.ProductQuery) (*models.ProductList, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.List")
	defer span.End()

	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: err.Error()}
	}

	products, total, err := s.repo.ListProducts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return &models.ProductList{Products: products, Pagination: models.NewPagination(q.Page, total)}, nil
}

// ListByCategory returns one page of a single category, newest first.
func (s *ProductService) ListByCategory(ctx context.Context, category models.Category, page models.Page) (*models.ProductList, error) {
	if !category.Valid() {
		return nil, invalidInput("Invalid category %q", category)
	}
	return s.List(ctx, models.ProductQuery{Page: page, Category: category})
}

// Get returns a product, served from the cache when possible.
func (s *ProductService) Get(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Get")
	defer span.End()

	cached, version, err := s.cache.GetProduct(ctx, id)
	if err != nil {
		s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	}
	if cached != nil {
		util.ProductCacheRequests.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.ProductCacheRequests.WithLabelValues("miss").Inc()

	product, err := s.repo.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, productNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	written, err := s.cache.SetProduct(ctx, product, version, s.cacheTTL)
	if err != nil {
		s.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
	} else if !written {
		s.logger.Debug("Skipped stale product cache fill", zap.Int64("product_id", id))
	}
	return product, nil
}

// Categories returns per-category product counts and average prices.
func (s *ProductService) Categories(ctx context.Context) ([]models.CategorySummary, error) {
	summaries, err := s.repo.CategorySummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize categories: %w", err)
	}
	return summaries, nil
}

// Create adds a product to the catalog. Admin only.
func (s *ProductService) Create(ctx context.Context, principal models.Principal, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Create")
	defer span.End()

	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
	}
	err := s.repo.CreateProduct(ctx, product)
	if errors.Is(err, store.ErrConstraint) {
		return nil, invalidInput("Product violates catalog constraints")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("created_by", principal.UserID))
	return product, nil
}

// Update applies a partial update. Admin only.
func (s *ProductService) Update(ctx context.Context, principal models.Principal, id int64, patch models.ProductPatch) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Update")
	defer span.End()

	if err := requireAdmin(principal); err != nil {
		return nil, err
	}
	normalizePatch(&patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	product, err := s.repo.UpdateProduct(ctx, id, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, productNotFound(id)
	}
	if errors.Is(err, store.ErrConstraint) {
		return nil, invalidInput("Product violates catalog constraints")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.invalidate(ctx, id)
	s.logger.Info("Product updated", zap.Int64("product_id", id), zap.String("updated_by", principal.UserID))
	return product, nil
}

// Delete removes a product. Admin only.
func (s *ProductService) Delete(ctx context.Context, principal models.Principal, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductService.Delete")
	defer span.End()

	if err := requireAdmin(principal); err != nil {
		return err
	}

	err := s.repo.DeleteProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return productNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.invalidate(ctx, id)
	s.logger.Info("Product deleted", zap.Int64("product_id", id), zap.String("deleted_by", principal.UserID))
	return nil
}

func (s *ProductService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.InvalidateProducts(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Int64("product_id", id), zap.Error(err))
	}
}
