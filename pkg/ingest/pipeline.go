package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/allendavis-developer/pricebook/pkg/database"
	"github.com/allendavis-developer/pricebook/pkg/listing"
	"github.com/allendavis-developer/pricebook/pkg/metrics"
	"github.com/allendavis-developer/pricebook/pkg/models"
	"github.com/allendavis-developer/pricebook/pkg/tracing"
)

// DefaultBatchSize bounds transaction size and lookup cache memory.
const DefaultBatchSize = 500

// CategoryStore is the category persistence the pipeline depends on.
type CategoryStore interface {
	GetByNames(ctx context.Context, names []string) ([]models.Category, error)
	GetRoot(ctx context.Context) (*models.Category, error)
	EnsureRoot(ctx context.Context) (*models.Category, error)
	BulkCreate(ctx context.Context, categories []models.Category) error
}

// ProductStore is the product persistence the pipeline depends on.
type ProductStore interface {
	GetByCategoryIDsAndNames(ctx context.Context, categoryIDs, names []string) ([]models.Product, error)
	BulkCreate(ctx context.Context, products []models.Product) error
}

// AttributeStore is the attribute persistence the pipeline depends on.
type AttributeStore interface {
	GetByCategoryIDs(ctx context.Context, categoryIDs []string) ([]models.Attribute, error)
	BulkCreate(ctx context.Context, attributes []models.Attribute) error
	GetValuesByAttributeIDs(ctx context.Context, attributeIDs []string) ([]models.AttributeValue, error)
	BulkCreateValues(ctx context.Context, values []models.AttributeValue) error
}

// ConditionGradeStore is the condition grade persistence the pipeline depends on.
type ConditionGradeStore interface {
	GetByCodes(ctx context.Context, codes []string) ([]models.ConditionGrade, error)
	BulkCreate(ctx context.Context, codes []string) error
}

// VariantStore is the variant persistence the pipeline depends on.
type VariantStore interface {
	GetBySKUs(ctx context.Context, skus []string) ([]models.Variant, error)
	BulkCreate(ctx context.Context, variants []models.Variant) (map[string]bool, error)
	Update(ctx context.Context, v *models.Variant) error
	BulkLinkAttributeValues(ctx context.Context, links []models.VariantAttributeValue) error
	BulkAppendPriceHistory(ctx context.Context, entries []models.PriceHistory) error
}

// Options controls one ingestion run.
type Options struct {
	// BatchSize is the number of records per transaction. Defaults to
	// DefaultBatchSize when zero or negative.
	BatchSize int
	// SkipErrors keeps the run going past upstream error records instead of
	// aborting.
	SkipErrors bool
}

// Stats summarizes an ingestion run.
type Stats struct {
	Total           int `json:"total"`
	Processed       int `json:"processed"`
	Skipped         int `json:"skipped"`
	Errors          int `json:"errors"`
	ProductsCreated int `json:"products_created"`
	VariantsCreated int `json:"variants_created"`
	VariantsUpdated int `json:"variants_updated"`
	PriceChanges    int `json:"price_changes"`
}

// ErrRootCategoryMissing aborts a run when the catalog scaffolding has not
// been seeded.
var ErrRootCategoryMissing = errors.New("root category is missing, run EnsureDefaults first")

// Pipeline turns raw listing records into catalog state. Batches are
// processed sequentially, each inside one all-or-nothing transaction.
type Pipeline struct {
	db         database.DB
	logger     ectologger.Logger
	categories CategoryStore
	products   ProductStore
	attributes AttributeStore
	grades     ConditionGradeStore
	variants   VariantStore
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	db database.DB,
	logger ectologger.Logger,
	categories CategoryStore,
	products ProductStore,
	attributes AttributeStore,
	grades ConditionGradeStore,
	variants VariantStore,
) *Pipeline {
	return &Pipeline{
		db:         db,
		logger:     logger,
		categories: categories,
		products:   products,
		attributes: attributes,
		grades:     grades,
		variants:   variants,
	}
}

// EnsureDefaults seeds the root category and the default condition grades.
// It must run once before the first ingestion.
func (p *Pipeline) EnsureDefaults(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Pipeline.EnsureDefaults")
	defer span.End()

	if _, err := p.categories.EnsureRoot(ctx); err != nil {
		return err
	}
	return p.grades.BulkCreate(ctx, models.DefaultConditionCodes)
}

// Ingest runs the given records through the pipeline in chunks of
// opts.BatchSize, each chunk inside its own transaction. It returns the run
// stats; on error the stats cover everything committed before the failure.
func (p *Pipeline) Ingest(ctx context.Context, records []listing.RawRecord, opts Options) (*Stats, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Pipeline.Ingest")
	defer span.End()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	stats := &Stats{Total: len(records)}

	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		if err := p.processBatch(ctx, records[start:end], opts, stats); err != nil {
			return stats, err
		}

		p.logger.WithContext(ctx).WithFields(map[string]any{
			"processed":        stats.Processed,
			"total":            stats.Total,
			"variants_created": stats.VariantsCreated,
			"variants_updated": stats.VariantsUpdated,
		}).Infof("Processed %d of %d records", stats.Processed, stats.Total)
	}

	return stats, nil
}

func (p *Pipeline) processBatch(ctx context.Context, records []listing.RawRecord, opts Options, stats *Stats) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Pipeline.processBatch")
	defer span.End()

	start := time.Now()

	txCtx, tx, err := p.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := p.runBatch(txCtx, records, opts, stats); err != nil {
		// Rollback with the pre-transaction context so it actually executes.
		_ = tx.Rollback(ctx)
		metrics.RecordBatch(time.Since(start), false)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordBatch(time.Since(start), false)
		return err
	}

	metrics.RecordBatch(time.Since(start), true)
	return nil
}

func (p *Pipeline) runBatch(ctx context.Context, records []listing.RawRecord, opts Options, stats *Stats) error {
	parsed, err := p.parseRecords(ctx, records, opts.SkipErrors, stats)
	if err != nil {
		return err
	}
	if len(parsed) == 0 {
		return nil
	}

	cache, err := p.buildCache(ctx, parsed)
	if err != nil {
		return err
	}

	root, err := p.categories.GetRoot(ctx)
	if err != nil {
		return err
	}
	if root == nil {
		return ErrRootCategoryMissing
	}

	if err := p.createMissingEntities(ctx, parsed, cache, root, stats); err != nil {
		return err
	}

	if err := p.upsertVariants(ctx, parsed, cache, stats); err != nil {
		return err
	}

	stats.Processed += len(parsed)
	return nil
}

// parseRecords normalizes every record in the batch. Upstream error records
// abort the run unless skipErrors is set; malformed or payload-less records
// are counted and skipped, never fatal.
func (p *Pipeline) parseRecords(ctx context.Context, records []listing.RawRecord, skipErrors bool, stats *Stats) ([]*listing.Listing, error) {
	warn := func(sku, rawDate string) {
		p.logger.WithContext(ctx).WithFields(map[string]any{"sku": sku, "raw_date": rawDate}).Warn("Listing has an unparseable price update date")
	}

	parsed := make([]*listing.Listing, 0, len(records))
	for _, record := range records {
		if record.IsError() {
			stats.Errors++
			metrics.RecordIngestRecord("error")
			if skipErrors {
				continue
			}
			return nil, fmt.Errorf("upstream error record for %s: %s", record.StableID, record.Error)
		}

		l, err := listing.Parse(record, warn)
		if err != nil {
			stats.Skipped++
			metrics.RecordIngestRecord("skipped")
			if !errors.Is(err, listing.ErrNoListing) {
				p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"sku": record.StableID}).Warn("Skipping malformed listing record")
			}
			continue
		}

		parsed = append(parsed, l)
		metrics.RecordIngestRecord("ok")
	}

	return parsed, nil
}

// createMissingEntities bulk creates every category, product, condition
// grade, attribute and attribute value the batch references but the catalog
// lacks, in dependency order. Inserts use ON CONFLICT DO NOTHING and each
// kind is reconciled with a re-read, so races with concurrent batches resolve
// to the surviving row.
func (p *Pipeline) createMissingEntities(ctx context.Context, parsed []*listing.Listing, cache *LookupCache, root *models.Category, stats *Stats) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Pipeline.createMissingEntities")
	defer span.End()

	// categories, parented under the root sentinel
	missingCategories := map[string]bool{}
	for _, l := range parsed {
		if _, ok := cache.Categories[l.CategoryName]; !ok {
			missingCategories[l.CategoryName] = true
		}
	}
	if len(missingCategories) > 0 {
		rows := make([]models.Category, 0, len(missingCategories))
		for name := range missingCategories {
			rows = append(rows, models.Category{ID: uuid.New().String(), Name: name, ParentID: &root.ID})
		}
		if err := p.categories.BulkCreate(ctx, rows); err != nil {
			return err
		}
		created, err := p.categories.GetByNames(ctx, keys(missingCategories))
		if err != nil {
			return err
		}
		for _, c := range created {
			cache.Categories[c.Name] = c
		}
	}

	// products
	missingProducts := map[ProductKey]bool{}
	for _, l := range parsed {
		key := ProductKey{CategoryName: l.CategoryName, Name: l.ProductName}
		if _, ok := cache.Products[key]; !ok {
			missingProducts[key] = true
		}
	}
	if len(missingProducts) > 0 {
		rows := make([]models.Product, 0, len(missingProducts))
		categoryIDs := map[string]bool{}
		names := map[string]bool{}
		attempted := map[string]bool{}
		for key := range missingProducts {
			cat, ok := cache.Categories[key.CategoryName]
			if !ok {
				return fmt.Errorf("category %q missing after bulk create", key.CategoryName)
			}
			row := models.Product{ID: uuid.New().String(), CategoryID: cat.ID, Name: key.Name}
			rows = append(rows, row)
			attempted[row.ID] = true
			categoryIDs[cat.ID] = true
			names[key.Name] = true
		}
		if err := p.products.BulkCreate(ctx, rows); err != nil {
			return err
		}
		created, err := p.products.GetByCategoryIDsAndNames(ctx, keys(categoryIDs), keys(names))
		if err != nil {
			return err
		}
		categoryNameByID := map[string]string{}
		for _, c := range cache.Categories {
			categoryNameByID[c.ID] = c.Name
		}
		for _, prod := range created {
			cache.Products[ProductKey{CategoryName: categoryNameByID[prod.CategoryID], Name: prod.Name}] = prod
			// A re-read row that kept our generated id is an insert we won;
			// any other id means a concurrent batch created it first.
			if attempted[prod.ID] {
				stats.ProductsCreated++
			}
		}
	}

	// condition grades
	missingGrades := map[string]bool{}
	for _, l := range parsed {
		if _, ok := cache.ConditionGrades[l.ConditionCode]; !ok {
			missingGrades[l.ConditionCode] = true
		}
	}
	if len(missingGrades) > 0 {
		if err := p.grades.BulkCreate(ctx, keys(missingGrades)); err != nil {
			return err
		}
		created, err := p.grades.GetByCodes(ctx, keys(missingGrades))
		if err != nil {
			return err
		}
		for _, g := range created {
			cache.ConditionGrades[g.Code] = g
		}
	}

	// attributes, with the label taken from the first listing that carries one
	missingAttributes := map[AttributeKey]string{}
	for _, l := range parsed {
		for _, attr := range l.Attributes {
			key := AttributeKey{CategoryName: l.CategoryName, Code: attr.Code}
			if _, ok := cache.Attributes[key]; ok {
				continue
			}
			if _, ok := missingAttributes[key]; !ok {
				missingAttributes[key] = attr.Label
			}
		}
	}
	if len(missingAttributes) > 0 {
		rows := make([]models.Attribute, 0, len(missingAttributes))
		categoryIDs := map[string]bool{}
		for key, label := range missingAttributes {
			cat, ok := cache.Categories[key.CategoryName]
			if !ok {
				return fmt.Errorf("category %q missing after bulk create", key.CategoryName)
			}
			rows = append(rows, models.Attribute{ID: uuid.New().String(), CategoryID: cat.ID, Code: key.Code, Label: label})
			categoryIDs[cat.ID] = true
		}
		if err := p.attributes.BulkCreate(ctx, rows); err != nil {
			return err
		}
		created, err := p.attributes.GetByCategoryIDs(ctx, keys(categoryIDs))
		if err != nil {
			return err
		}
		categoryNameByID := map[string]string{}
		for _, c := range cache.Categories {
			categoryNameByID[c.ID] = c.Name
		}
		for _, a := range created {
			cache.Attributes[AttributeKey{CategoryName: categoryNameByID[a.CategoryID], Code: a.Code}] = a
		}
	}

	// attribute values
	missingValues := map[ValueKey]string{} // value key -> attribute id
	for _, l := range parsed {
		for _, attr := range l.Attributes {
			key := ValueKey{Code: attr.Code, Value: attr.Value}
			if _, ok := cache.AttributeValues[key]; ok {
				continue
			}
			definition, ok := cache.Attributes[AttributeKey{CategoryName: l.CategoryName, Code: attr.Code}]
			if !ok {
				return fmt.Errorf("attribute %q missing after bulk create", attr.Code)
			}
			if _, ok := missingValues[key]; !ok {
				missingValues[key] = definition.ID
			}
		}
	}
	if len(missingValues) > 0 {
		rows := make([]models.AttributeValue, 0, len(missingValues))
		attributeIDs := map[string]bool{}
		for key, attributeID := range missingValues {
			rows = append(rows, models.AttributeValue{ID: uuid.New().String(), AttributeID: attributeID, Value: key.Value})
			attributeIDs[attributeID] = true
		}
		if err := p.attributes.BulkCreateValues(ctx, rows); err != nil {
			return err
		}
		created, err := p.attributes.GetValuesByAttributeIDs(ctx, keys(attributeIDs))
		if err != nil {
			return err
		}
		attributeCodeByID := map[string]string{}
		for _, a := range cache.Attributes {
			attributeCodeByID[a.ID] = a.Code
		}
		for _, v := range created {
			cache.AttributeValues[ValueKey{Code: attributeCodeByID[v.AttributeID], Value: v.Value}] = v
		}
	}

	return nil
}

// pendingVariant carries a new variant together with its attribute links and
// initial history entry until the bulk insert confirms which rows landed.
type pendingVariant struct {
	variant models.Variant
	links   []string // attribute value ids
}

// upsertVariants resolves every parsed listing against the cached variants,
// updating changed rows and bulk creating new ones. Duplicate SKUs within the
// batch are deduplicated, first occurrence wins.
func (p *Pipeline) upsertVariants(ctx context.Context, parsed []*listing.Listing, cache *LookupCache, stats *Stats) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Pipeline.upsertVariants")
	defer span.End()

	now := time.Now().UTC()

	var pending []pendingVariant
	var updates []*models.Variant
	var history []models.PriceHistory
	seen := map[string]bool{}

	for _, l := range parsed {
		if seen[l.SKU] {
			continue
		}
		seen[l.SKU] = true

		product, ok := cache.Products[ProductKey{CategoryName: l.CategoryName, Name: l.ProductName}]
		if !ok {
			return fmt.Errorf("product %q missing after bulk create", l.ProductName)
		}
		grade, ok := cache.ConditionGrades[l.ConditionCode]
		if !ok {
			return fmt.Errorf("condition grade %q missing after bulk create", l.ConditionCode)
		}

		if existing, ok := cache.Variants[l.SKU]; ok {
			changed, priceChanged := applyListing(&existing, l)
			if priceChanged {
				history = append(history, models.PriceHistory{
					ID:         uuid.New().String(),
					VariantID:  existing.ID,
					Price:      l.SellPrice,
					RecordedAt: now,
				})
				stats.PriceChanges++
				metrics.RecordPriceChange()
			}
			if changed {
				updates = append(updates, &existing)
			}
			cache.Variants[l.SKU] = existing
			continue
		}

		priceUpdated := l.PriceLastUpdated
		if priceUpdated == nil {
			priceUpdated = &now
		}
		v := models.Variant{
			ID:               uuid.New().String(),
			ProductID:        product.ID,
			ConditionGradeID: grade.ID,
			SKU:              l.SKU,
			Title:            l.Title,
			Signature:        l.Signature,
			CurrentSellPrice: l.SellPrice,
			TradeinCash:      l.CashPrice,
			TradeinVoucher:   l.VoucherPrice,
			OutOfStock:       l.OutOfStock,
			PriceLastUpdated: priceUpdated,
		}

		var links []string
		for _, attr := range l.Attributes {
			if value, ok := cache.AttributeValues[ValueKey{Code: attr.Code, Value: attr.Value}]; ok {
				links = append(links, value.ID)
			}
		}

		pending = append(pending, pendingVariant{variant: v, links: links})
		cache.Variants[l.SKU] = v
	}

	if len(pending) > 0 {
		rows := make([]models.Variant, 0, len(pending))
		for _, pv := range pending {
			rows = append(rows, pv.variant)
		}
		inserted, err := p.variants.BulkCreate(ctx, rows)
		if err != nil {
			return err
		}

		var links []models.VariantAttributeValue
		var conflicted []string
		for _, pv := range pending {
			if !inserted[pv.variant.SKU] {
				conflicted = append(conflicted, pv.variant.SKU)
				continue
			}
			for _, valueID := range pv.links {
				links = append(links, models.VariantAttributeValue{VariantID: pv.variant.ID, AttributeValueID: valueID})
			}
			history = append(history, models.PriceHistory{
				ID:         uuid.New().String(),
				VariantID:  pv.variant.ID,
				Price:      pv.variant.CurrentSellPrice,
				RecordedAt: now,
			})
			stats.PriceChanges++
			metrics.RecordPriceChange()
			metrics.RecordVariant("created")
		}
		stats.VariantsCreated += len(pending) - len(conflicted)

		if err := p.variants.BulkLinkAttributeValues(ctx, links); err != nil {
			return err
		}

		// a conflicting SKU was created by a concurrent batch; reconcile
		// against the surviving row
		if len(conflicted) > 0 {
			reconciledHistory, err := p.reconcileConflicts(ctx, conflicted, parsed, cache, &updates, stats, now)
			if err != nil {
				return err
			}
			history = append(history, reconciledHistory...)
		}
	}

	for _, v := range updates {
		if err := p.variants.Update(ctx, v); err != nil {
			return err
		}
		metrics.RecordVariant("updated")
	}
	stats.VariantsUpdated += len(updates)

	return p.variants.BulkAppendPriceHistory(ctx, history)
}

func (p *Pipeline) reconcileConflicts(ctx context.Context, skus []string, parsed []*listing.Listing, cache *LookupCache, updates *[]*models.Variant, stats *Stats, now time.Time) ([]models.PriceHistory, error) {
	current, err := p.variants.GetBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}
	bySKU := map[string]models.Variant{}
	for _, v := range current {
		bySKU[v.SKU] = v
	}

	var history []models.PriceHistory
	for _, l := range parsed {
		existing, ok := bySKU[l.SKU]
		if !ok {
			continue
		}
		delete(bySKU, l.SKU) // first occurrence wins

		changed, priceChanged := applyListing(&existing, l)
		if priceChanged {
			history = append(history, models.PriceHistory{
				ID:         uuid.New().String(),
				VariantID:  existing.ID,
				Price:      l.SellPrice,
				RecordedAt: now,
			})
			stats.PriceChanges++
			metrics.RecordPriceChange()
		}
		if changed {
			*updates = append(*updates, &existing)
		}
		cache.Variants[l.SKU] = existing
	}

	return history, nil
}

// applyListing copies the listing's fields onto the variant, reporting
// whether anything changed and whether the sell price changed.
func applyListing(v *models.Variant, l *listing.Listing) (changed, priceChanged bool) {
	if !v.CurrentSellPrice.Equal(l.SellPrice) {
		v.CurrentSellPrice = l.SellPrice
		changed = true
		priceChanged = true
	}
	if !v.TradeinCash.Equal(l.CashPrice) {
		v.TradeinCash = l.CashPrice
		changed = true
	}
	if !v.TradeinVoucher.Equal(l.VoucherPrice) {
		v.TradeinVoucher = l.VoucherPrice
		changed = true
	}
	if v.OutOfStock != l.OutOfStock {
		v.OutOfStock = l.OutOfStock
		changed = true
	}
	if l.PriceLastUpdated != nil && (v.PriceLastUpdated == nil || !v.PriceLastUpdated.Equal(*l.PriceLastUpdated)) {
		v.PriceLastUpdated = l.PriceLastUpdated
		changed = true
	}
	return changed, priceChanged
}
