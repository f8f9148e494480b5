package pricing

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allendavis-developer/pricebook/pkg/models"
)

type fakeRuleSource struct {
	byProduct  map[string]*models.PricingRule
	byCategory map[string]*models.PricingRule
	global     *models.PricingRule
}

func (f *fakeRuleSource) GetByProduct(ctx context.Context, productID string, movement models.MovementClass) (*models.PricingRule, error) {
	return f.byProduct[productID], nil
}

func (f *fakeRuleSource) GetByCategory(ctx context.Context, categoryID string, movement models.MovementClass) (*models.PricingRule, error) {
	return f.byCategory[categoryID], nil
}

func (f *fakeRuleSource) GetGlobalDefault(ctx context.Context, movement models.MovementClass) (*models.PricingRule, error) {
	return f.global, nil
}

type fakeCategorySource struct {
	categories map[string]*models.Category
}

func (f *fakeCategorySource) GetByID(ctx context.Context, id string) (*models.Category, error) {
	return f.categories[id], nil
}

func strptr(s string) *string {
	return &s
}

func rule(id string, multiplier string) *models.PricingRule {
	return &models.PricingRule{
		ID:                  id,
		MovementClass:       models.MovementFast,
		SellPriceMultiplier: decimal.RequireFromString(multiplier),
	}
}

// phones -> electronics -> root, with root self-referencing its parent.
func testCategories() *fakeCategorySource {
	return &fakeCategorySource{categories: map[string]*models.Category{
		"phones":      {ID: "phones", Name: "Mobile Phones", ParentID: strptr("electronics")},
		"electronics": {ID: "electronics", Name: "Electronics", ParentID: strptr("root")},
		"root":        {ID: "root", Name: models.RootCategoryName},
	}}
}

func TestResolverResolveRule(t *testing.T) {
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	t.Run("product rule wins over category and global", func(t *testing.T) {
		rules := &fakeRuleSource{
			byProduct:  map[string]*models.PricingRule{"prod-1": rule("product-rule", "0.95")},
			byCategory: map[string]*models.PricingRule{"phones": rule("category-rule", "0.90")},
			global:     rule("global-rule", "0.85"),
		}
		resolver := NewResolver(rules, testCategories(), logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "phones", models.MovementFast)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "product-rule", got.ID)
	})

	t.Run("nearest ancestor rule wins over a farther one", func(t *testing.T) {
		rules := &fakeRuleSource{
			byCategory: map[string]*models.PricingRule{
				"phones":      rule("phones-rule", "0.90"),
				"electronics": rule("electronics-rule", "0.80"),
			},
		}
		resolver := NewResolver(rules, testCategories(), logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "phones", models.MovementFast)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "phones-rule", got.ID)
	})

	t.Run("walks up to an ancestor rule", func(t *testing.T) {
		rules := &fakeRuleSource{
			byCategory: map[string]*models.PricingRule{"electronics": rule("electronics-rule", "0.80")},
		}
		resolver := NewResolver(rules, testCategories(), logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "phones", models.MovementFast)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "electronics-rule", got.ID)
	})

	t.Run("falls back to the global default", func(t *testing.T) {
		rules := &fakeRuleSource{global: rule("global-rule", "0.85")}
		resolver := NewResolver(rules, testCategories(), logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "phones", models.MovementFast)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "global-rule", got.ID)
	})

	t.Run("returns nil when nothing matches", func(t *testing.T) {
		resolver := NewResolver(&fakeRuleSource{}, testCategories(), logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "phones", models.MovementFast)

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown movement resolves to nil without lookups", func(t *testing.T) {
		rules := &fakeRuleSource{global: rule("global-rule", "0.85")}
		resolver := NewResolver(rules, testCategories(), logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "phones", models.MovementUnknown)

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("survives a parent cycle", func(t *testing.T) {
		categories := &fakeCategorySource{categories: map[string]*models.Category{
			"a": {ID: "a", Name: "A", ParentID: strptr("b")},
			"b": {ID: "b", Name: "B", ParentID: strptr("a")},
		}}
		rules := &fakeRuleSource{global: rule("global-rule", "0.85")}
		resolver := NewResolver(rules, categories, logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "a", models.MovementFast)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "global-rule", got.ID)
	})

	t.Run("missing category falls through to global", func(t *testing.T) {
		rules := &fakeRuleSource{global: rule("global-rule", "0.85")}
		resolver := NewResolver(rules, &fakeCategorySource{categories: map[string]*models.Category{}}, logger)

		got, err := resolver.ResolveRule(ctx, "prod-1", "nope", models.MovementFast)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "global-rule", got.ID)
	})
}

func TestResolverResolveTargetSellPrice(t *testing.T) {
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	variant := &models.Variant{
		ProductID:        "prod-1",
		CurrentSellPrice: decimal.RequireFromString("249.99"),
		TradeinCash:      decimal.RequireFromString("180"),
	}

	t.Run("multiplies and rounds to two decimal places", func(t *testing.T) {
		rules := &fakeRuleSource{
			byProduct: map[string]*models.PricingRule{"prod-1": rule("product-rule", "0.9")},
		}
		resolver := NewResolver(rules, testCategories(), logger)

		target, movement, err := resolver.ResolveTargetSellPrice(ctx, variant, "phones")

		require.NoError(t, err)
		assert.Equal(t, models.MovementFast, movement)
		require.NotNil(t, target)
		assert.True(t, decimal.RequireFromString("224.99").Equal(*target))
	})

	t.Run("nil target when no rule matches", func(t *testing.T) {
		resolver := NewResolver(&fakeRuleSource{}, testCategories(), logger)

		target, movement, err := resolver.ResolveTargetSellPrice(ctx, variant, "phones")

		require.NoError(t, err)
		assert.Equal(t, models.MovementFast, movement)
		assert.Nil(t, target)
	})

	t.Run("unpriced variant is unknown", func(t *testing.T) {
		rules := &fakeRuleSource{global: rule("global-rule", "0.85")}
		resolver := NewResolver(rules, testCategories(), logger)

		target, movement, err := resolver.ResolveTargetSellPrice(ctx, &models.Variant{ProductID: "prod-1"}, "phones")

		require.NoError(t, err)
		assert.Equal(t, models.MovementUnknown, movement)
		assert.Nil(t, target)
	})
}
