package pricing

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/allendavis-developer/pricebook/internal/repositories/pricingrule"
	"github.com/allendavis-developer/pricebook/internal/repositories/product"
	"github.com/allendavis-developer/pricebook/internal/repositories/variant"
	"github.com/allendavis-developer/pricebook/pkg/models"
	"github.com/allendavis-developer/pricebook/pkg/pricing"
)

// Handler serves the pricing endpoints.
type Handler struct {
	variants *variant.Repository
	products *product.Repository
	rules    *pricingrule.Repository
	resolver *pricing.Resolver
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewHandler creates a pricing handler.
func NewHandler(
	variants *variant.Repository,
	products *product.Repository,
	rules *pricingrule.Repository,
	resolver *pricing.Resolver,
	logger ectologger.Logger,
) *Handler {
	return &Handler{
		variants: variants,
		products: products,
		rules:    rules,
		resolver: resolver,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register registers pricing routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/market-stats/:sku", h.MarketStats)
	g.GET("/ladder/:sku", h.PriceLadder)
	g.GET("/rules", h.ListRules)
	g.POST("/rules", h.CreateRule)
	g.DELETE("/rules/:id", h.DeleteRule)
}

// MarketStats returns the reference market view for one variant: its prices,
// movement class and reference margin.
func (h *Handler) MarketStats(c echo.Context) error {
	ctx := c.Request().Context()
	sku := c.Param("sku")

	v, err := h.variants.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if v == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "variant %s not found", sku)
	}

	stats := models.MarketStats{
		SKU:              v.SKU,
		Title:            v.Title,
		CurrentSellPrice: v.CurrentSellPrice,
		TradeinCash:      v.TradeinCash,
		TradeinVoucher:   v.TradeinVoucher,
		OutOfStock:       v.OutOfStock,
		MovementClass:    pricing.Classify(v.CurrentSellPrice, v.TradeinCash),
		MarginPercent:    pricing.MarginPercent(v.CurrentSellPrice, v.TradeinCash),
		PriceLastUpdated: v.PriceLastUpdated,
	}

	return c.JSON(http.StatusOK, stats)
}

// PriceLadder resolves the target sell price for one variant and derives the
// cash and voucher offer ladders from it. When no pricing rule matches, the
// fallback multiplier is applied and flagged in the response.
func (h *Handler) PriceLadder(c echo.Context) error {
	ctx := c.Request().Context()
	sku := c.Param("sku")

	v, err := h.variants.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if v == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "variant %s not found", sku)
	}

	prod, err := h.products.GetByID(ctx, v.ProductID)
	if err != nil {
		return err
	}
	if prod == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "product for variant %s not found", sku)
	}

	target, movement, err := h.resolver.ResolveTargetSellPrice(ctx, v, prod.CategoryID)
	if err != nil {
		return err
	}
	if movement == models.MovementUnknown {
		return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "variant %s has no usable reference prices", sku)
	}

	usedFallback := false
	var targetSell decimal.Decimal
	if target != nil {
		targetSell = *target
	} else {
		usedFallback = true
		targetSell = v.CurrentSellPrice.Mul(pricing.FallbackMultiplier).Round(2)
	}

	response := models.PriceLadderResponse{
		SKU:             v.SKU,
		MovementClass:   movement,
		TargetSellPrice: targetSell,
		UsedFallback:    usedFallback,
		CashLadder:      pricing.BuildLadder(v.CurrentSellPrice, v.TradeinCash, targetSell),
		VoucherLadder:   pricing.BuildLadder(v.CurrentSellPrice, v.TradeinVoucher, targetSell),
	}

	return c.JSON(http.StatusOK, response)
}

// ListRules lists every pricing rule, global defaults first
func (h *Handler) ListRules(c echo.Context) error {
	rules, err := h.rules.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rules)
}

// CreateRule creates a pricing rule at exactly one scope
func (h *Handler) CreateRule(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreatePricingRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid pricing rule: %s", err.Error())
	}
	if !req.MovementClass.Valid() || req.MovementClass == models.MovementUnknown {
		return httperror.NewHTTPError(http.StatusBadRequest, "movement_class must be FAST, MEDIUM or SLOW")
	}
	if req.SellPriceMultiplier.LessThanOrEqual(decimal.Zero) {
		return httperror.NewHTTPError(http.StatusBadRequest, "sell_price_multiplier must be positive")
	}

	scopes := 0
	if req.ProductID != nil {
		scopes++
	}
	if req.CategoryID != nil {
		scopes++
	}
	if req.IsGlobalDefault {
		scopes++
	}
	if scopes != 1 {
		return httperror.NewHTTPError(http.StatusBadRequest, "exactly one of product_id, category_id or is_global_default is required")
	}

	created, err := h.rules.Create(ctx, req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"id":             created.ID,
		"movement_class": created.MovementClass,
	}).Info("Created pricing rule")

	return c.JSON(http.StatusCreated, created)
}

// DeleteRule deletes a pricing rule by ID
func (h *Handler) DeleteRule(c echo.Context) error {
	if err := h.rules.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
