package catalog

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/allendavis-developer/pricebook/internal/repositories/category"
	"github.com/allendavis-developer/pricebook/internal/repositories/product"
	"github.com/allendavis-developer/pricebook/internal/repositories/variant"
	"github.com/allendavis-developer/pricebook/pkg/models"
)

// Handler serves the read-only catalog endpoints.
type Handler struct {
	categories *category.Repository
	products   *product.Repository
	variants   *variant.Repository
}

// NewHandler creates a catalog handler.
func NewHandler(categories *category.Repository, products *product.Repository, variants *variant.Repository) *Handler {
	return &Handler{
		categories: categories,
		products:   products,
		variants:   variants,
	}
}

// Register registers catalog routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/categories", h.CategoryTree)
	g.GET("/categories/:id/products", h.ProductsByCategory)
	g.GET("/products/:id/variants", h.VariantsByProduct)
	g.GET("/variants/:sku", h.VariantBySKU)
	g.GET("/variants/:sku/history", h.PriceHistoryBySKU)
}

// CategoryTree returns every category assembled into a tree rooted at the
// root sentinel.
func (h *Handler) CategoryTree(c echo.Context) error {
	ctx := c.Request().Context()

	categories, err := h.categories.ListAll(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, buildTree(categories))
}

// buildTree links categories into parent/child nodes. Orphans whose parent is
// missing are surfaced as additional roots rather than dropped.
func buildTree(categories []models.Category) []*models.CategoryNode {
	nodes := make(map[string]*models.CategoryNode, len(categories))
	for _, cat := range categories {
		nodes[cat.ID] = &models.CategoryNode{Category: cat}
	}

	var roots []*models.CategoryNode
	for _, node := range nodes {
		if node.ParentID == nil || *node.ParentID == node.ID {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*node.ParentID]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots
}

// ProductsByCategory lists the products in one category
func (h *Handler) ProductsByCategory(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	cat, err := h.categories.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cat == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "category %s not found", id)
	}

	products, err := h.products.ListByCategory(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, products)
}

// VariantsByProduct lists the variants of one product
func (h *Handler) VariantsByProduct(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	prod, err := h.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if prod == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "product %s not found", id)
	}

	variants, err := h.variants.ListByProduct(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, variants)
}

// VariantBySKU returns one variant by its SKU
func (h *Handler) VariantBySKU(c echo.Context) error {
	ctx := c.Request().Context()
	sku := c.Param("sku")

	v, err := h.variants.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if v == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "variant %s not found", sku)
	}

	return c.JSON(http.StatusOK, v)
}

// PriceHistoryBySKU returns the recorded sell prices of one variant, newest
// first. The limit query parameter caps the rows returned.
func (h *Handler) PriceHistoryBySKU(c echo.Context) error {
	ctx := c.Request().Context()
	sku := c.Param("sku")

	v, err := h.variants.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if v == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "variant %s not found", sku)
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	history, err := h.variants.ListPriceHistory(ctx, v.ID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, history)
}
