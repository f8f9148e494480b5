package pricingrule

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/allendavis-developer/pricebook/pkg/database"
	"github.com/allendavis-developer/pricebook/pkg/models"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
)

const columns = "id, product_id, category_id, is_global_default, movement_class, sell_price_multiplier, created_at, updated_at"

// Repository handles pricing rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new pricing rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) getOne(ctx context.Context, where func(sb *sqlbuilder.SelectBuilder) []string) (*models.PricingRule, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("pricing_rules")
	sb.Where(where(sb)...)

	query, args := sb.Build()
	var rule models.PricingRule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get pricing rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get pricing rule")
	}
	return &rule, nil
}

// GetByProduct returns the product-scoped rule for a movement class, or nil.
func (r *Repository) GetByProduct(ctx context.Context, productID string, movement models.MovementClass) (*models.PricingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "pricingrule.Repository.GetByProduct")
	defer span.End()

	return r.getOne(ctx, func(sb *sqlbuilder.SelectBuilder) []string {
		return []string{
			sb.Equal("product_id", productID),
			sb.Equal("movement_class", string(movement)),
		}
	})
}

// GetByCategory returns the category-scoped rule for a movement class, or nil.
func (r *Repository) GetByCategory(ctx context.Context, categoryID string, movement models.MovementClass) (*models.PricingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "pricingrule.Repository.GetByCategory")
	defer span.End()

	return r.getOne(ctx, func(sb *sqlbuilder.SelectBuilder) []string {
		return []string{
			sb.Equal("category_id", categoryID),
			sb.Equal("movement_class", string(movement)),
		}
	})
}

// GetGlobalDefault returns the global default rule for a movement class, or nil.
func (r *Repository) GetGlobalDefault(ctx context.Context, movement models.MovementClass) (*models.PricingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "pricingrule.Repository.GetGlobalDefault")
	defer span.End()

	return r.getOne(ctx, func(sb *sqlbuilder.SelectBuilder) []string {
		return []string{
			sb.Equal("is_global_default", true),
			sb.Equal("movement_class", string(movement)),
		}
	})
}

// Create inserts a pricing rule. Scope exclusivity and per-scope uniqueness
// are enforced by the database; violations surface as client errors.
func (r *Repository) Create(ctx context.Context, req models.CreatePricingRuleRequest) (*models.PricingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "pricingrule.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	rule := models.PricingRule{
		ID:                  uuid.New().String(),
		ProductID:           req.ProductID,
		CategoryID:          req.CategoryID,
		IsGlobalDefault:     req.IsGlobalDefault,
		MovementClass:       req.MovementClass,
		SellPriceMultiplier: req.SellPriceMultiplier,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("pricing_rules")
	ib.Cols("id", "product_id", "category_id", "is_global_default", "movement_class", "sell_price_multiplier", "created_at", "updated_at")
	ib.Values(rule.ID, rule.ProductID, rule.CategoryID, rule.IsGlobalDefault, string(rule.MovementClass), rule.SellPriceMultiplier, rule.CreatedAt, rule.UpdatedAt)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, httperror.NewHTTPError(http.StatusConflict, "a pricing rule already exists for this scope and movement class")
		}
		if strings.Contains(err.Error(), "check constraint") {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "pricing rule must have exactly one scope: product, category or global default")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"movement_class": rule.MovementClass}).Error("Failed to create pricing rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create pricing rule")
	}

	return &rule, nil
}

// List returns every pricing rule, global defaults first.
func (r *Repository) List(ctx context.Context) ([]models.PricingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "pricingrule.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("pricing_rules")
	sb.OrderBy("is_global_default DESC", "movement_class")

	query, args := sb.Build()
	var rules []models.PricingRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pricing rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pricing rules")
	}
	return rules, nil
}

// Delete removes a pricing rule by id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "pricingrule.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("pricing_rules")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": id}).Error("Failed to delete pricing rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete pricing rule")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, "pricing rule not found")
	}
	return nil
}
