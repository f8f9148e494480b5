package product

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/allendavis-developer/pricebook/pkg/database"
	"github.com/allendavis-developer/pricebook/pkg/models"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
)

const columns = "id, category_id, name, created_at"

// Repository handles product persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new product repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID returns the product with the given id, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("products")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var product models.Product
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &product, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"product_id": id}).Error("Failed to get product by id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get product")
	}
	return &product, nil
}

// GetByCategoryIDsAndNames returns products whose category is in categoryIDs
// and whose name is in names. Callers key the result by (category, name), so
// products matching a name under a different category in the set are harmless.
func (r *Repository) GetByCategoryIDsAndNames(ctx context.Context, categoryIDs, names []string) ([]models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.GetByCategoryIDsAndNames")
	defer span.End()

	if len(categoryIDs) == 0 || len(names) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("products")
	sb.Where(
		sb.In("category_id", sqlbuilder.Flatten(categoryIDs)...),
		sb.In("name", sqlbuilder.Flatten(names)...),
	)

	query, args := sb.Build()
	var products []models.Product
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"categories": len(categoryIDs), "names": len(names)}).Error("Failed to get products by category and name")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get products: %v", err)
	}
	return products, nil
}

// BulkCreate inserts the given products, silently skipping rows whose
// (category_id, name) already exists.
func (r *Repository) BulkCreate(ctx context.Context, products []models.Product) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.BulkCreate")
	defer span.End()

	if len(products) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("products")
	ib.Cols("id", "category_id", "name")
	for _, p := range products {
		ib.Values(p.ID, p.CategoryID, p.Name)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(products)}).Error("Failed to bulk create products")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to bulk create products: %v", err)
	}
	return nil
}

// ListByCategory returns all products belonging to the given category.
func (r *Repository) ListByCategory(ctx context.Context, categoryID string) ([]models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.ListByCategory")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("products")
	sb.Where(sb.Equal("category_id", categoryID))
	sb.OrderBy("name")

	query, args := sb.Build()
	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"category_id": categoryID}).Error("Failed to list products by category")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list products")
	}
	return products, nil
}
