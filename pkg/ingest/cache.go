package ingest

import (
	"context"

	"github.com/allendavis-developer/pricebook/pkg/listing"
	"github.com/allendavis-developer/pricebook/pkg/models"
)

// ProductKey identifies a product by its natural key within one batch.
type ProductKey struct {
	CategoryName string
	Name         string
}

// AttributeKey identifies an attribute definition by its natural key.
type AttributeKey struct {
	CategoryName string
	Code         string
}

// ValueKey identifies an attribute value across categories, matching how the
// marketplace feed references values by attribute code alone.
type ValueKey struct {
	Code  string
	Value string
}

// LookupCache holds every entity referenced by one batch, keyed by natural
// key. It is built with one bulk read per entity kind and written back by the
// pipeline as it creates entities, so later records in the same batch resolve
// without re-querying. A cache never outlives its batch.
type LookupCache struct {
	Categories      map[string]models.Category
	Products        map[ProductKey]models.Product
	ConditionGrades map[string]models.ConditionGrade
	Attributes      map[AttributeKey]models.Attribute
	AttributeValues map[ValueKey]models.AttributeValue
	Variants        map[string]models.Variant
}

func newLookupCache() *LookupCache {
	return &LookupCache{
		Categories:      map[string]models.Category{},
		Products:        map[ProductKey]models.Product{},
		ConditionGrades: map[string]models.ConditionGrade{},
		Attributes:      map[AttributeKey]models.Attribute{},
		AttributeValues: map[ValueKey]models.AttributeValue{},
		Variants:        map[string]models.Variant{},
	}
}

// batchUniverse collects the distinct natural keys referenced by a batch.
type batchUniverse struct {
	categoryNames  []string
	productNames   []string
	conditionCodes []string
	skus           []string
}

func collectUniverse(listings []*listing.Listing) batchUniverse {
	categories := map[string]bool{}
	products := map[string]bool{}
	conditions := map[string]bool{}
	skus := map[string]bool{}

	for _, l := range listings {
		categories[l.CategoryName] = true
		products[l.ProductName] = true
		conditions[l.ConditionCode] = true
		skus[l.SKU] = true
	}

	return batchUniverse{
		categoryNames:  keys(categories),
		productNames:   keys(products),
		conditionCodes: keys(conditions),
		skus:           keys(skus),
	}
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// buildCache issues one bulk read per entity kind for everything the batch
// references.
func (p *Pipeline) buildCache(ctx context.Context, listings []*listing.Listing) (*LookupCache, error) {
	cache := newLookupCache()
	universe := collectUniverse(listings)

	categories, err := p.categories.GetByNames(ctx, universe.categoryNames)
	if err != nil {
		return nil, err
	}
	categoryNameByID := map[string]string{}
	categoryIDs := make([]string, 0, len(categories))
	for _, c := range categories {
		cache.Categories[c.Name] = c
		categoryNameByID[c.ID] = c.Name
		categoryIDs = append(categoryIDs, c.ID)
	}

	products, err := p.products.GetByCategoryIDsAndNames(ctx, categoryIDs, universe.productNames)
	if err != nil {
		return nil, err
	}
	for _, prod := range products {
		cache.Products[ProductKey{CategoryName: categoryNameByID[prod.CategoryID], Name: prod.Name}] = prod
	}

	grades, err := p.grades.GetByCodes(ctx, universe.conditionCodes)
	if err != nil {
		return nil, err
	}
	for _, g := range grades {
		cache.ConditionGrades[g.Code] = g
	}

	attributes, err := p.attributes.GetByCategoryIDs(ctx, categoryIDs)
	if err != nil {
		return nil, err
	}
	attributeCodeByID := map[string]string{}
	attributeIDs := make([]string, 0, len(attributes))
	for _, a := range attributes {
		cache.Attributes[AttributeKey{CategoryName: categoryNameByID[a.CategoryID], Code: a.Code}] = a
		attributeCodeByID[a.ID] = a.Code
		attributeIDs = append(attributeIDs, a.ID)
	}

	values, err := p.attributes.GetValuesByAttributeIDs(ctx, attributeIDs)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		cache.AttributeValues[ValueKey{Code: attributeCodeByID[v.AttributeID], Value: v.Value}] = v
	}

	variants, err := p.variants.GetBySKUs(ctx, universe.skus)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		cache.Variants[v.SKU] = v
	}

	return cache, nil
}
