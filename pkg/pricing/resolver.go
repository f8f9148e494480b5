package pricing

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"

	"github.com/allendavis-developer/pricebook/pkg/metrics"
	"github.com/allendavis-developer/pricebook/pkg/models"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
)

// maxAncestorDepth bounds the category walk so a corrupted parent chain can
// never loop forever.
const maxAncestorDepth = 32

// FallbackMultiplier is applied by callers when no pricing rule matches at
// any scope.
var FallbackMultiplier = decimal.NewFromFloat(0.85)

// RuleSource is the pricing rule lookup the resolver depends on.
type RuleSource interface {
	GetByProduct(ctx context.Context, productID string, movement models.MovementClass) (*models.PricingRule, error)
	GetByCategory(ctx context.Context, categoryID string, movement models.MovementClass) (*models.PricingRule, error)
	GetGlobalDefault(ctx context.Context, movement models.MovementClass) (*models.PricingRule, error)
}

// CategorySource is the category lookup used for the ancestor walk.
type CategorySource interface {
	GetByID(ctx context.Context, id string) (*models.Category, error)
}

// Resolver finds the applicable pricing rule for a variant. Resolution is a
// pure read; it never mutates the catalog and is safe to call concurrently.
type Resolver struct {
	rules      RuleSource
	categories CategorySource
	logger     ectologger.Logger
}

// NewResolver creates a pricing resolver.
func NewResolver(rules RuleSource, categories CategorySource, logger ectologger.Logger) *Resolver {
	return &Resolver{
		rules:      rules,
		categories: categories,
		logger:     logger,
	}
}

// ResolveRule returns the first rule matching the movement class in strict
// precedence order: the exact product, then every category ancestor starting
// at the product's own category, then the global default. It returns nil when
// nothing matches or the movement class is UNKNOWN.
func (r *Resolver) ResolveRule(ctx context.Context, productID, categoryID string, movement models.MovementClass) (*models.PricingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "pricing.Resolver.ResolveRule")
	defer span.End()

	if movement == models.MovementUnknown || !movement.Valid() {
		return nil, nil
	}

	rule, err := r.rules.GetByProduct(ctx, productID, movement)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		metrics.RecordPricingResolution("product")
		return rule, nil
	}

	rule, err = r.walkAncestors(ctx, categoryID, movement)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		metrics.RecordPricingResolution("category")
		return rule, nil
	}

	rule, err = r.rules.GetGlobalDefault(ctx, movement)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		metrics.RecordPricingResolution("global")
		return rule, nil
	}

	metrics.RecordPricingResolution("none")
	return nil, nil
}

// walkAncestors climbs the category chain looking for a category-scoped rule.
// The walk is bounded by maxAncestorDepth and a visited set, and stops at the
// root sentinel (nil parent or self-reference).
func (r *Resolver) walkAncestors(ctx context.Context, categoryID string, movement models.MovementClass) (*models.PricingRule, error) {
	visited := map[string]bool{}
	current := categoryID

	for depth := 0; depth < maxAncestorDepth && current != "" && !visited[current]; depth++ {
		visited[current] = true

		category, err := r.categories.GetByID(ctx, current)
		if err != nil {
			return nil, err
		}
		if category == nil {
			return nil, nil
		}

		rule, err := r.rules.GetByCategory(ctx, category.ID, movement)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			return rule, nil
		}

		if category.ParentID == nil || *category.ParentID == category.ID {
			return nil, nil
		}
		current = *category.ParentID
	}

	if current != "" && !visited[current] {
		r.logger.WithContext(ctx).WithFields(map[string]any{"category_id": categoryID}).Warn("Category ancestor walk hit the depth bound")
	}
	return nil, nil
}

// ResolveTargetSellPrice classifies the variant's movement and resolves its
// target sell price, rounded half up to two decimal places. It returns nil
// when the movement class is UNKNOWN or no rule matches; callers fall back to
// FallbackMultiplier.
func (r *Resolver) ResolveTargetSellPrice(ctx context.Context, v *models.Variant, categoryID string) (*decimal.Decimal, models.MovementClass, error) {
	ctx, span := tracing.StartSpan(ctx, "pricing.Resolver.ResolveTargetSellPrice")
	defer span.End()

	movement := Classify(v.CurrentSellPrice, v.TradeinCash)
	if movement == models.MovementUnknown {
		return nil, movement, nil
	}

	rule, err := r.ResolveRule(ctx, v.ProductID, categoryID, movement)
	if err != nil {
		return nil, movement, err
	}
	if rule == nil {
		return nil, movement, nil
	}

	target := v.CurrentSellPrice.Mul(rule.SellPriceMultiplier).Round(2)
	return &target, movement, nil
}
