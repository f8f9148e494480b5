package category

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/allendavis-developer/pricebook/pkg/database"
	"github.com/allendavis-developer/pricebook/pkg/models"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
)

const columns = "id, name, parent_id, created_at"

// Repository handles category persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new category repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByID returns the category with the given id, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Category, error) {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("categories")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var category models.Category
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &category, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"category_id": id}).Error("Failed to get category by id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get category")
	}
	return &category, nil
}

// GetByNames returns categories matching the given names.
func (r *Repository) GetByNames(ctx context.Context, names []string) ([]models.Category, error) {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.GetByNames")
	defer span.End()

	if len(names) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("categories")
	sb.Where(sb.In("name", sqlbuilder.Flatten(names)...))

	query, args := sb.Build()
	var categories []models.Category
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &categories, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(names)}).Error("Failed to get categories by names")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get categories: %v", err)
	}
	return categories, nil
}

// GetRoot returns the root sentinel category, or nil when it has not been seeded.
func (r *Repository) GetRoot(ctx context.Context) (*models.Category, error) {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.GetRoot")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("categories")
	sb.Where(sb.Equal("name", models.RootCategoryName))

	query, args := sb.Build()
	var category models.Category
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &category, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get root category")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get root category")
	}
	return &category, nil
}

// EnsureRoot creates the root sentinel if it does not exist and returns it.
func (r *Repository) EnsureRoot(ctx context.Context) (*models.Category, error) {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.EnsureRoot")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("categories")
	ib.Cols("id", "name", "parent_id")
	ib.Values(uuid.New().String(), models.RootCategoryName, nil)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to ensure root category")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to ensure root category")
	}

	return r.GetRoot(ctx)
}

// BulkCreate inserts the given categories, silently skipping rows whose name
// already exists. Callers reconcile skipped rows with a follow-up read.
func (r *Repository) BulkCreate(ctx context.Context, categories []models.Category) error {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.BulkCreate")
	defer span.End()

	if len(categories) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("categories")
	ib.Cols("id", "name", "parent_id")
	for _, c := range categories {
		ib.Values(c.ID, c.Name, c.ParentID)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(categories)}).Error("Failed to bulk create categories")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to bulk create categories: %v", err)
	}
	return nil
}

// ListAll returns every category ordered by name.
func (r *Repository) ListAll(ctx context.Context) ([]models.Category, error) {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("categories")
	sb.OrderBy("name")

	query, args := sb.Build()
	var categories []models.Category
	if err := r.db.SelectContext(ctx, &categories, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list categories")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list categories")
	}
	return categories, nil
}
