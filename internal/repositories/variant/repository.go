package variant

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/allendavis-developer/pricebook/pkg/database"
	"github.com/allendavis-developer/pricebook/pkg/models"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
)

const columns = "id, product_id, condition_grade_id, sku, title, signature, current_sell_price, tradein_cash, tradein_voucher, out_of_stock, price_last_updated, created_at, updated_at"

// Repository handles variant, attribute link and price history persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new variant repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetBySKU returns the variant with the given SKU, or nil when absent.
func (r *Repository) GetBySKU(ctx context.Context, sku string) (*models.Variant, error) {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.GetBySKU")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("variants")
	sb.Where(sb.Equal("sku", sku))

	query, args := sb.Build()
	var v models.Variant
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &v, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"sku": sku}).Error("Failed to get variant by sku")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get variant")
	}
	return &v, nil
}

// GetBySKUs returns every variant matching the given SKUs.
func (r *Repository) GetBySKUs(ctx context.Context, skus []string) ([]models.Variant, error) {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.GetBySKUs")
	defer span.End()

	if len(skus) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("variants")
	sb.Where(sb.In("sku", sqlbuilder.Flatten(skus)...))

	query, args := sb.Build()
	var variants []models.Variant
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &variants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(skus)}).Error("Failed to get variants by skus")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get variants: %v", err)
	}
	return variants, nil
}

// BulkCreate inserts the given variants and returns the set of SKUs actually
// inserted. SKUs missing from the result conflicted with an existing row,
// typically a concurrent batch, and must be reconciled with a re-read.
func (r *Repository) BulkCreate(ctx context.Context, variants []models.Variant) (map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.BulkCreate")
	defer span.End()

	if len(variants) == 0 {
		return map[string]bool{}, nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("variants")
	ib.Cols("id", "product_id", "condition_grade_id", "sku", "title", "signature", "current_sell_price", "tradein_cash", "tradein_voucher", "out_of_stock", "price_last_updated")
	for _, v := range variants {
		ib.Values(v.ID, v.ProductID, v.ConditionGradeID, v.SKU, v.Title, v.Signature, v.CurrentSellPrice, v.TradeinCash, v.TradeinVoucher, v.OutOfStock, v.PriceLastUpdated)
	}
	ib.SQL("ON CONFLICT (sku) DO NOTHING RETURNING sku")

	query, args := ib.Build()
	rows, err := database.FromContext(ctx, r.db).QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(variants)}).Error("Failed to bulk create variants")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to bulk create variants: %v", err)
	}
	defer rows.Close()

	inserted := make(map[string]bool, len(variants))
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to scan inserted variant sku")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to bulk create variants")
		}
		inserted[sku] = true
	}
	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read inserted variant skus")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to bulk create variants")
	}

	return inserted, nil
}

// Update writes the mutable price and stock fields of an existing variant.
func (r *Repository) Update(ctx context.Context, v *models.Variant) error {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("variants")
	ub.Set(
		ub.Assign("current_sell_price", v.CurrentSellPrice),
		ub.Assign("tradein_cash", v.TradeinCash),
		ub.Assign("tradein_voucher", v.TradeinVoucher),
		ub.Assign("out_of_stock", v.OutOfStock),
		ub.Assign("price_last_updated", v.PriceLastUpdated),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", v.ID))

	query, args := ub.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"variant_id": v.ID, "sku": v.SKU}).Error("Failed to update variant")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update variant: %v", err)
	}
	return nil
}

// BulkLinkAttributeValues inserts variant to attribute value links, silently
// skipping pairs that already exist.
func (r *Repository) BulkLinkAttributeValues(ctx context.Context, links []models.VariantAttributeValue) error {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.BulkLinkAttributeValues")
	defer span.End()

	if len(links) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("variant_attribute_values")
	ib.Cols("variant_id", "attribute_value_id")
	for _, l := range links {
		ib.Values(l.VariantID, l.AttributeValueID)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(links)}).Error("Failed to bulk link attribute values")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to link attribute values: %v", err)
	}
	return nil
}

// BulkAppendPriceHistory appends price history rows. History is append-only;
// there is no update or delete path.
func (r *Repository) BulkAppendPriceHistory(ctx context.Context, entries []models.PriceHistory) error {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.BulkAppendPriceHistory")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("price_history")
	ib.Cols("id", "variant_id", "price", "recorded_at")
	for _, e := range entries {
		ib.Values(e.ID, e.VariantID, e.Price, e.RecordedAt)
	}

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(entries)}).Error("Failed to append price history")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to append price history: %v", err)
	}
	return nil
}

// ListByProduct returns every variant belonging to the given product.
func (r *Repository) ListByProduct(ctx context.Context, productID string) ([]models.Variant, error) {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.ListByProduct")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("variants")
	sb.Where(sb.Equal("product_id", productID))
	sb.OrderBy("sku")

	query, args := sb.Build()
	var variants []models.Variant
	if err := r.db.SelectContext(ctx, &variants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"product_id": productID}).Error("Failed to list variants by product")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list variants")
	}
	return variants, nil
}

// ListPriceHistory returns the most recent history entries for a variant.
func (r *Repository) ListPriceHistory(ctx context.Context, variantID string, limit int) ([]models.PriceHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "variant.Repository.ListPriceHistory")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "variant_id", "price", "recorded_at")
	sb.From("price_history")
	sb.Where(sb.Equal("variant_id", variantID))
	sb.OrderBy("recorded_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []models.PriceHistory
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"variant_id": variantID}).Error("Failed to list price history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list price history")
	}
	return entries, nil
}
