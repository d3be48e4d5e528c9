package api

import (
	"net/http"

	"storefront-api/internal/models"
	"storefront-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// productListParams are the catalog list filters.
type productListParams struct {
	pageParams
	Category  string `form:"category"`
	Search    string `form:"search"`
	MinPrice  string `form:"min_price"`
	MaxPrice  string `form:"max_price"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}

func parsePrice(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) listProducts(c *gin.Context) {
	var params productListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}

	minPrice, err := parsePrice(params.MinPrice)
	if err != nil {
		badRequest(c, "Minimum price must be a positive number")
		return
	}
	maxPrice, err := parsePrice(params.MaxPrice)
	if err != nil {
		badRequest(c, "Maximum price must be a positive number")
		return
	}

	list, err := h.catalog.List(c.Request.Context(), models.ProductQuery{
		Page:      params.page(),
		Category:  models.Category(params.Category),
		Search:    params.Search,
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		SortBy:    models.ProductSort(params.SortBy),
		SortOrder: models.SortDirection(params.SortOrder),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", list)
}

func (h *Handler) listCategories(c *gin.Context) {
	summaries, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"categories": summaries})
}

func (h *Handler) listProductsByCategory(c *gin.Context) {
	var params pageParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "Invalid pagination parameters")
		return
	}

	list, err := h.catalog.ListByCategory(c.Request.Context(), models.Category(c.Param("category")), params.page())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", list)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"product": product})
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	product, err := h.catalog.Create(c.Request.Context(), principalFrom(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Product created successfully", gin.H{"product": product})
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	product, err := h.catalog.Update(c.Request.Context(), principalFrom(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Product updated successfully", gin.H{"product": product})
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.catalog.Delete(c.Request.Context(), principalFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Product deleted successfully", nil)
}
