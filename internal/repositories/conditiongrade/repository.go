package conditiongrade

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

// Repository handles condition grade persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new condition grade repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByCodes returns the grades matching the given codes.
func (r *Repository) GetByCodes(ctx context.Context, codes []string) ([]models.ConditionGrade, error) {
	ctx, span := tracing.StartSpan(ctx, "conditiongrade.Repository.GetByCodes")
	defer span.End()

	if len(codes) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "code")
	sb.From("condition_grades")
	sb.Where(sb.In("code", sqlbuilder.Flatten(codes)...))

	query, args := sb.Build()
	var grades []models.ConditionGrade
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &grades, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(codes)}).Error("Failed to get condition grades")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to get condition grades: %v", err)
	}
	return grades, nil
}

// BulkCreate inserts grades for the given codes, silently skipping codes that
// already exist.
func (r *Repository) BulkCreate(ctx context.Context, codes []string) error {
	ctx, span := tracing.StartSpan(ctx, "conditiongrade.Repository.BulkCreate")
	defer span.End()

	if len(codes) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("condition_grades")
	ib.Cols("id", "code")
	for _, code := range codes {
		ib.Values(uuid.New().String(), code)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(codes)}).Error("Failed to bulk create condition grades")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to bulk create condition grades: %v", err)
	}
	return nil
}
