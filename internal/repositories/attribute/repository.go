package attribute

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

// Repository handles attribute and attribute value persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new attribute repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByCategoryIDs returns every attribute owned by the given categories.
func (r *Repository) GetByCategoryIDs(ctx context.Context, categoryIDs []string) ([]models.Attribute, error) {
	ctx, span := tracing.StartSpan(ctx, "attribute.Repository.GetByCategoryIDs")
	defer span.End()

	if len(categoryIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "category_id", "code", "label")
	sb.From("attributes")
	sb.Where(sb.In("category_id", sqlbuilder.Flatten(categoryIDs)...))

	query, args := sb.Build()
	var attributes []models.Attribute
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &attributes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"categories": len(categoryIDs)}).Error("Failed to get attributes by categories")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get attributes: %v", err)
	}
	return attributes, nil
}

// BulkCreate inserts the given attributes, silently skipping rows whose
// (category_id, code) already exists.
func (r *Repository) BulkCreate(ctx context.Context, attributes []models.Attribute) error {
	ctx, span := tracing.StartSpan(ctx, "attribute.Repository.BulkCreate")
	defer span.End()

	if len(attributes) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("attributes")
	ib.Cols("id", "category_id", "code", "label")
	for _, a := range attributes {
		ib.Values(a.ID, a.CategoryID, a.Code, a.Label)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(attributes)}).Error("Failed to bulk create attributes")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to bulk create attributes: %v", err)
	}
	return nil
}

// GetValuesByAttributeIDs returns every value row owned by the given attributes.
func (r *Repository) GetValuesByAttributeIDs(ctx context.Context, attributeIDs []string) ([]models.AttributeValue, error) {
	ctx, span := tracing.StartSpan(ctx, "attribute.Repository.GetValuesByAttributeIDs")
	defer span.End()

	if len(attributeIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "attribute_id", "value")
	sb.From("attribute_values")
	sb.Where(sb.In("attribute_id", sqlbuilder.Flatten(attributeIDs)...))

	query, args := sb.Build()
	var values []models.AttributeValue
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &values, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"attributes": len(attributeIDs)}).Error("Failed to get attribute values")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get attribute values: %v", err)
	}
	return values, nil
}

// BulkCreateValues inserts the given attribute values, silently skipping rows
// whose (attribute_id, value) already exists.
func (r *Repository) BulkCreateValues(ctx context.Context, values []models.AttributeValue) error {
	ctx, span := tracing.StartSpan(ctx, "attribute.Repository.BulkCreateValues")
	defer span.End()

	if len(values) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("attribute_values")
	ib.Cols("id", "attribute_id", "value")
	for _, v := range values {
		ib.Values(v.ID, v.AttributeID, v.Value)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(values)}).Error("Failed to bulk create attribute values")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to bulk create attribute values: %v", err)
	}
	return nil
}
