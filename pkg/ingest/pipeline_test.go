package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allendavis-developer/pricebook/pkg/listing"
	"github.com/allendavis-developer/pricebook/pkg/models"
)

type fakeCategoryStore struct {
	byName map[string]models.Category
}

func (f *fakeCategoryStore) GetByNames(ctx context.Context, names []string) ([]models.Category, error) {
	var out []models.Category
	for _, name := range names {
		if c, ok := f.byName[name]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCategoryStore) GetRoot(ctx context.Context) (*models.Category, error) {
	if c, ok := f.byName[models.RootCategoryName]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeCategoryStore) EnsureRoot(ctx context.Context) (*models.Category, error) {
	if c, ok := f.byName[models.RootCategoryName]; ok {
		return &c, nil
	}
	root := models.Category{ID: uuid.New().String(), Name: models.RootCategoryName}
	f.byName[root.Name] = root
	return &root, nil
}

func (f *fakeCategoryStore) BulkCreate(ctx context.Context, categories []models.Category) error {
	for _, c := range categories {
		if _, ok := f.byName[c.Name]; !ok {
			f.byName[c.Name] = c
		}
	}
	return nil
}

type fakeProductStore struct {
	byKey map[ProductKey]models.Product // keyed by category id + name here
}

func (f *fakeProductStore) GetByCategoryIDsAndNames(ctx context.Context, categoryIDs, names []string) ([]models.Product, error) {
	ids := map[string]bool{}
	for _, id := range categoryIDs {
		ids[id] = true
	}
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}
	var out []models.Product
	for _, p := range f.byKey {
		if ids[p.CategoryID] && wanted[p.Name] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductStore) BulkCreate(ctx context.Context, products []models.Product) error {
	for _, p := range products {
		key := ProductKey{CategoryName: p.CategoryID, Name: p.Name}
		if _, ok := f.byKey[key]; !ok {
			f.byKey[key] = p
		}
	}
	return nil
}

// racingProductStore loses every insert to a simulated concurrent batch: the
// conflicting row that survives carries a rival id, as it would under
// ON CONFLICT DO NOTHING.
type racingProductStore struct {
	fakeProductStore
}

func (f *racingProductStore) BulkCreate(ctx context.Context, products []models.Product) error {
	for _, p := range products {
		key := ProductKey{CategoryName: p.CategoryID, Name: p.Name}
		if _, ok := f.byKey[key]; !ok {
			f.byKey[key] = models.Product{ID: "rival-" + p.Name, CategoryID: p.CategoryID, Name: p.Name}
		}
	}
	return nil
}

type fakeAttributeStore struct {
	attributes map[string]models.Attribute      // category id + code
	values     map[string]models.AttributeValue // attribute id + value
}

func (f *fakeAttributeStore) GetByCategoryIDs(ctx context.Context, categoryIDs []string) ([]models.Attribute, error) {
	ids := map[string]bool{}
	for _, id := range categoryIDs {
		ids[id] = true
	}
	var out []models.Attribute
	for _, a := range f.attributes {
		if ids[a.CategoryID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttributeStore) BulkCreate(ctx context.Context, attributes []models.Attribute) error {
	for _, a := range attributes {
		key := a.CategoryID + "/" + a.Code
		if _, ok := f.attributes[key]; !ok {
			f.attributes[key] = a
		}
	}
	return nil
}

func (f *fakeAttributeStore) GetValuesByAttributeIDs(ctx context.Context, attributeIDs []string) ([]models.AttributeValue, error) {
	ids := map[string]bool{}
	for _, id := range attributeIDs {
		ids[id] = true
	}
	var out []models.AttributeValue
	for _, v := range f.values {
		if ids[v.AttributeID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeAttributeStore) BulkCreateValues(ctx context.Context, values []models.AttributeValue) error {
	for _, v := range values {
		key := v.AttributeID + "/" + v.Value
		if _, ok := f.values[key]; !ok {
			f.values[key] = v
		}
	}
	return nil
}

type fakeConditionGradeStore struct {
	byCode map[string]models.ConditionGrade
}

func (f *fakeConditionGradeStore) GetByCodes(ctx context.Context, codes []string) ([]models.ConditionGrade, error) {
	var out []models.ConditionGrade
	for _, code := range codes {
		if g, ok := f.byCode[code]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeConditionGradeStore) BulkCreate(ctx context.Context, codes []string) error {
	for _, code := range codes {
		if _, ok := f.byCode[code]; !ok {
			f.byCode[code] = models.ConditionGrade{ID: uuid.New().String(), Code: code}
		}
	}
	return nil
}

type fakeVariantStore struct {
	bySKU   map[string]models.Variant
	links   []models.VariantAttributeValue
	history []models.PriceHistory
	updates int
}

func (f *fakeVariantStore) GetBySKUs(ctx context.Context, skus []string) ([]models.Variant, error) {
	var out []models.Variant
	for _, sku := range skus {
		if v, ok := f.bySKU[sku]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVariantStore) BulkCreate(ctx context.Context, variants []models.Variant) (map[string]bool, error) {
	inserted := map[string]bool{}
	for _, v := range variants {
		if _, ok := f.bySKU[v.SKU]; ok {
			continue
		}
		f.bySKU[v.SKU] = v
		inserted[v.SKU] = true
	}
	return inserted, nil
}

func (f *fakeVariantStore) Update(ctx context.Context, v *models.Variant) error {
	if _, ok := f.bySKU[v.SKU]; !ok {
		return fmt.Errorf("variant %s not found", v.SKU)
	}
	f.bySKU[v.SKU] = *v
	f.updates++
	return nil
}

func (f *fakeVariantStore) BulkLinkAttributeValues(ctx context.Context, links []models.VariantAttributeValue) error {
	f.links = append(f.links, links...)
	return nil
}

func (f *fakeVariantStore) BulkAppendPriceHistory(ctx context.Context, entries []models.PriceHistory) error {
	f.history = append(f.history, entries...)
	return nil
}

type fixture struct {
	pipeline   *Pipeline
	categories *fakeCategoryStore
	products   *fakeProductStore
	attributes *fakeAttributeStore
	grades     *fakeConditionGradeStore
	variants   *fakeVariantStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		categories: &fakeCategoryStore{byName: map[string]models.Category{}},
		products:   &fakeProductStore{byKey: map[ProductKey]models.Product{}},
		attributes: &fakeAttributeStore{attributes: map[string]models.Attribute{}, values: map[string]models.AttributeValue{}},
		grades:     &fakeConditionGradeStore{byCode: map[string]models.ConditionGrade{}},
		variants:   &fakeVariantStore{bySKU: map[string]models.Variant{}},
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f.pipeline = NewPipeline(nil, logger, f.categories, f.products, f.attributes, f.grades, f.variants)

	require.NoError(t, f.pipeline.EnsureDefaults(context.Background()))
	return f
}

type payload struct {
	sku        string
	title      string
	sell       string
	cash       string
	voucher    string
	category   string
	grade      string
	storage    string
	outOfStock string
	date       string
}

func record(p payload) listing.RawRecord {
	attrs := []map[string]any{
		{"attributeName": "phone_modelname", "attributeFriendlyName": "Model", "attributeValue": p.title, "isVariant": "1"},
	}
	if p.grade != "" {
		attrs = append(attrs, map[string]any{"attributeName": "grade", "attributeFriendlyName": "Grade", "attributeValue": p.grade, "isVariant": "1"})
	}
	if p.storage != "" {
		attrs = append(attrs, map[string]any{"attributeName": "storage", "attributeFriendlyName": "Storage", "attributeValue": p.storage, "isVariant": "1"})
	}

	categoryName := p.category
	if categoryName == "" {
		categoryName = "Mobile Phones"
	}
	box := map[string]any{
		"boxName":              p.title,
		"sellPrice":            json.RawMessage(p.sell),
		"cashPrice":            json.RawMessage(p.cash),
		"exchangePrice":        json.RawMessage(p.voucher),
		"categoryFriendlyName": categoryName,
		"attributeInfo":        attrs,
	}
	if p.outOfStock != "" {
		box["outOfStock"] = json.RawMessage(p.outOfStock)
	}
	if p.date != "" {
		box["lastPriceUpdatedDate"] = p.date
	}

	response, _ := json.Marshal(map[string]any{
		"response": map[string]any{"data": map[string]any{"boxDetails": []any{box}}},
	})
	return listing.RawRecord{StableID: p.sku, Response: response}
}

func TestPipelineRunBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the full entity graph for a new listing", func(t *testing.T) {
		f := newFixture(t)
		stats := &Stats{}

		records := []listing.RawRecord{record(payload{
			sku: "SKU-1", title: "iPhone 13", sell: "399", cash: "250", voucher: "280",
			grade: "A", storage: "128GB", date: "2024-03-01 10:30:00",
		})}

		err := f.pipeline.runBatch(ctx, records, Options{}, stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Processed)
		assert.Equal(t, 1, stats.ProductsCreated)
		assert.Equal(t, 1, stats.VariantsCreated)
		assert.Equal(t, 1, stats.PriceChanges)
		assert.Zero(t, stats.VariantsUpdated)

		v, ok := f.variants.bySKU["SKU-1"]
		require.True(t, ok)
		assert.Equal(t, "iPhone 13", v.Title)
		assert.Equal(t, "grade=A|storage=128GB", v.Signature)
		assert.True(t, decimal.RequireFromString("399").Equal(v.CurrentSellPrice))
		require.NotNil(t, v.PriceLastUpdated)
		assert.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), v.PriceLastUpdated.UTC())

		// grade and storage attribute values are linked
		assert.Len(t, f.variants.links, 2)
		require.Len(t, f.variants.history, 1)
		assert.Equal(t, v.ID, f.variants.history[0].VariantID)

		// category sits under the root sentinel
		cat, ok := f.categories.byName["Mobile Phones"]
		require.True(t, ok)
		root := f.categories.byName[models.RootCategoryName]
		require.NotNil(t, cat.ParentID)
		assert.Equal(t, root.ID, *cat.ParentID)
	})

	t.Run("products created by a concurrent batch are not counted", func(t *testing.T) {
		f := newFixture(t)
		racing := &racingProductStore{*f.products}
		logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
		p := NewPipeline(nil, logger, f.categories, racing, f.attributes, f.grades, f.variants)

		stats := &Stats{}
		records := []listing.RawRecord{record(payload{
			sku: "SKU-9", title: "Pixel 8", sell: "299", cash: "150", voucher: "170", grade: "A",
		})}

		require.NoError(t, p.runBatch(ctx, records, Options{}, stats))

		assert.Zero(t, stats.ProductsCreated)
		assert.Equal(t, 1, stats.VariantsCreated)

		// the variant attaches to the surviving row
		v, ok := f.variants.bySKU["SKU-9"]
		require.True(t, ok)
		assert.Equal(t, "rival-Pixel 8", v.ProductID)
	})

	t.Run("re-ingesting unchanged records is a no-op", func(t *testing.T) {
		f := newFixture(t)
		records := []listing.RawRecord{record(payload{
			sku: "SKU-1", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A",
		})}

		require.NoError(t, f.pipeline.runBatch(ctx, records, Options{}, &Stats{}))

		stats := &Stats{}
		require.NoError(t, f.pipeline.runBatch(ctx, records, Options{}, stats))

		assert.Equal(t, 1, stats.Processed)
		assert.Zero(t, stats.VariantsCreated)
		assert.Zero(t, stats.VariantsUpdated)
		assert.Zero(t, stats.PriceChanges)
		assert.Zero(t, f.variants.updates)
		assert.Len(t, f.variants.history, 1)
	})

	t.Run("price change updates the variant and appends history", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.pipeline.runBatch(ctx, []listing.RawRecord{record(payload{
			sku: "SKU-1", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A",
		})}, Options{}, &Stats{}))

		stats := &Stats{}
		require.NoError(t, f.pipeline.runBatch(ctx, []listing.RawRecord{record(payload{
			sku: "SKU-1", title: "iPhone 13", sell: "379", cash: "240", voucher: "270", grade: "A",
		})}, Options{}, stats))

		assert.Equal(t, 1, stats.VariantsUpdated)
		assert.Equal(t, 1, stats.PriceChanges)
		assert.Zero(t, stats.VariantsCreated)

		v := f.variants.bySKU["SKU-1"]
		assert.True(t, decimal.RequireFromString("379").Equal(v.CurrentSellPrice))
		require.Len(t, f.variants.history, 2)
		assert.True(t, decimal.RequireFromString("379").Equal(f.variants.history[1].Price))
	})

	t.Run("stock flip without a price change updates but records no history", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.pipeline.runBatch(ctx, []listing.RawRecord{record(payload{
			sku: "SKU-1", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A",
		})}, Options{}, &Stats{}))

		stats := &Stats{}
		require.NoError(t, f.pipeline.runBatch(ctx, []listing.RawRecord{record(payload{
			sku: "SKU-1", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A", outOfStock: "1",
		})}, Options{}, stats))

		assert.Equal(t, 1, stats.VariantsUpdated)
		assert.Zero(t, stats.PriceChanges)
		assert.True(t, f.variants.bySKU["SKU-1"].OutOfStock)
		assert.Len(t, f.variants.history, 1)
	})

	t.Run("duplicate skus in one batch keep the first occurrence", func(t *testing.T) {
		f := newFixture(t)
		stats := &Stats{}

		err := f.pipeline.runBatch(ctx, []listing.RawRecord{
			record(payload{sku: "SKU-1", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A"}),
			record(payload{sku: "SKU-1", title: "iPhone 13", sell: "500", cash: "300", voucher: "320", grade: "A"}),
		}, Options{}, stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.VariantsCreated)
		assert.True(t, decimal.RequireFromString("399").Equal(f.variants.bySKU["SKU-1"].CurrentSellPrice))
	})

	t.Run("error record aborts the batch", func(t *testing.T) {
		f := newFixture(t)
		stats := &Stats{}

		err := f.pipeline.runBatch(ctx, []listing.RawRecord{
			{StableID: "SKU-1", Error: "HTTP 502"},
			record(payload{sku: "SKU-2", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A"}),
		}, Options{}, stats)

		require.Error(t, err)
		assert.Equal(t, 1, stats.Errors)
		assert.Zero(t, stats.Processed)
	})

	t.Run("skip errors keeps going past error records", func(t *testing.T) {
		f := newFixture(t)
		stats := &Stats{}

		err := f.pipeline.runBatch(ctx, []listing.RawRecord{
			{StableID: "SKU-1", Error: "HTTP 502"},
			record(payload{sku: "SKU-2", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A"}),
		}, Options{SkipErrors: true}, stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Errors)
		assert.Equal(t, 1, stats.Processed)
		assert.Equal(t, 1, stats.VariantsCreated)
	})

	t.Run("payload-less records are skipped silently", func(t *testing.T) {
		f := newFixture(t)
		stats := &Stats{}

		err := f.pipeline.runBatch(ctx, []listing.RawRecord{
			{StableID: "SKU-1", Response: json.RawMessage(`{"response":{"data":{"boxDetails":[]}}}`)},
			record(payload{sku: "SKU-2", title: "iPhone 13", sell: "399", cash: "250", voucher: "280", grade: "A"}),
		}, Options{}, stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Skipped)
		assert.Equal(t, 1, stats.Processed)
	})

	t.Run("single new sku builds category, product, variant and history", func(t *testing.T) {
		f := newFixture(t)
		stats := &Stats{}

		err := f.pipeline.runBatch(ctx, []listing.RawRecord{record(payload{
			sku: "WX-1", title: "Widget X", sell: "500.00", cash: "200.00", voucher: "220.00",
			category: "Phones", grade: "A",
		})}, Options{}, stats)

		require.NoError(t, err)
		assert.Equal(t, 1, stats.Processed)
		assert.Equal(t, 1, stats.VariantsCreated)
		assert.Equal(t, 1, stats.PriceChanges)

		_, ok := f.categories.byName["Phones"]
		assert.True(t, ok)

		v := f.variants.bySKU["WX-1"]
		assert.Contains(t, v.Signature, "grade=A")
		require.Len(t, f.variants.history, 1)
		assert.True(t, decimal.RequireFromString("500.00").Equal(f.variants.history[0].Price))
	})

	t.Run("listings without a grade land on the unknown condition", func(t *testing.T) {
		f := newFixture(t)
		stats := &Stats{}

		err := f.pipeline.runBatch(ctx, []listing.RawRecord{record(payload{
			sku: "SKU-1", title: "iPhone 13", sell: "399", cash: "250", voucher: "280",
		})}, Options{}, stats)

		require.NoError(t, err)
		v := f.variants.bySKU["SKU-1"]
		unknown := f.grades.byCode[models.DefaultConditionCode]
		assert.Equal(t, unknown.ID, v.ConditionGradeID)
	})
}

func TestApplyListing(t *testing.T) {
	base := func() *models.Variant {
		updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		return &models.Variant{
			CurrentSellPrice: decimal.RequireFromString("399"),
			TradeinCash:      decimal.RequireFromString("250"),
			TradeinVoucher:   decimal.RequireFromString("280"),
			PriceLastUpdated: &updated,
		}
	}
	matching := func() *listing.Listing {
		return &listing.Listing{
			SellPrice:    decimal.RequireFromString("399"),
			CashPrice:    decimal.RequireFromString("250"),
			VoucherPrice: decimal.RequireFromString("280"),
		}
	}

	t.Run("no change", func(t *testing.T) {
		changed, priceChanged := applyListing(base(), matching())
		assert.False(t, changed)
		assert.False(t, priceChanged)
	})

	t.Run("sell price change flags both", func(t *testing.T) {
		l := matching()
		l.SellPrice = decimal.RequireFromString("389")
		changed, priceChanged := applyListing(base(), l)
		assert.True(t, changed)
		assert.True(t, priceChanged)
	})

	t.Run("tradein change flags update only", func(t *testing.T) {
		l := matching()
		l.CashPrice = decimal.RequireFromString("260")
		changed, priceChanged := applyListing(base(), l)
		assert.True(t, changed)
		assert.False(t, priceChanged)
	})

	t.Run("missing date leaves the stored one alone", func(t *testing.T) {
		v := base()
		changed, _ := applyListing(v, matching())
		assert.False(t, changed)
		require.NotNil(t, v.PriceLastUpdated)
	})

	t.Run("new date is applied", func(t *testing.T) {
		v := base()
		l := matching()
		newDate := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		l.PriceLastUpdated = &newDate
		changed, priceChanged := applyListing(v, l)
		assert.True(t, changed)
		assert.False(t, priceChanged)
		assert.True(t, v.PriceLastUpdated.Equal(newDate))
	})
}
