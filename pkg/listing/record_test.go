package listing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRecord(t *testing.T, sku string, box map[string]any) RawRecord {
	t.Helper()

	payload := map[string]any{
		"response": map[string]any{
			"data": map[string]any{
				"boxDetails": []any{box},
			},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return RawRecord{StableID: sku, Response: raw}
}

func TestParse_FullListing(t *testing.T) {
	record := buildRecord(t, "SKU123", map[string]any{
		"boxName":              "Widget X 128GB Black, A",
		"sellPrice":            500.00,
		"cashPrice":            200.00,
		"exchangePrice":        220.00,
		"categoryFriendlyName": "Phones",
		"outOfStock":           0,
		"lastPriceUpdatedDate": "2023-03-16 03:04:14",
		"attributeInfo": []any{
			map[string]any{"attributeName": "Phone_ModelName", "attributeFriendlyName": "Model", "attributeValue": "Widget X", "isVariant": "0"},
			map[string]any{"attributeName": "grade", "attributeFriendlyName": "Grade", "attributeValue": "A", "isVariant": "1"},
			map[string]any{"attributeName": "storage", "attributeFriendlyName": "Storage", "attributeValue": []any{"128GB"}, "isVariant": "1"},
			map[string]any{"attributeName": "colour", "attributeFriendlyName": "Colour", "attributeValue": "Black", "isVariant": "0"},
		},
	})

	parsed, err := Parse(record, nil)
	require.NoError(t, err)

	assert.Equal(t, "SKU123", parsed.SKU)
	assert.Equal(t, "Widget X 128GB Black, A", parsed.Title)
	assert.Equal(t, "Phones", parsed.CategoryName)
	assert.Equal(t, "Widget X", parsed.ProductName)
	assert.Equal(t, "A", parsed.ConditionCode)
	assert.False(t, parsed.OutOfStock)
	assert.True(t, decimal.NewFromInt(500).Equal(parsed.SellPrice))
	assert.True(t, decimal.NewFromInt(200).Equal(parsed.CashPrice))
	assert.True(t, decimal.NewFromInt(220).Equal(parsed.VoucherPrice))

	// colour is not variant-flagged, phone_modelname is excluded
	require.Len(t, parsed.Attributes, 2)
	assert.Equal(t, "grade=A|storage=128GB", parsed.Signature)

	require.NotNil(t, parsed.PriceLastUpdated)
	expected := time.Date(2023, 3, 16, 3, 4, 14, 0, time.UTC)
	assert.Equal(t, expected, *parsed.PriceLastUpdated)
}

func TestParse_ErrorRecord(t *testing.T) {
	record := RawRecord{StableID: "SKU1", Error: "fetch timed out"}

	assert.True(t, record.IsError())
	_, err := Parse(record, nil)
	assert.Error(t, err)
}

func TestParse_MissingBoxDetails(t *testing.T) {
	record := RawRecord{StableID: "SKU1", Response: json.RawMessage(`{"response":{"data":{"boxDetails":[]}}}`)}

	_, err := Parse(record, nil)
	assert.ErrorIs(t, err, ErrNoListing)

	_, err = Parse(RawRecord{StableID: "SKU2"}, nil)
	assert.ErrorIs(t, err, ErrNoListing)
}

func TestParse_MalformedPayload(t *testing.T) {
	record := RawRecord{StableID: "SKU1", Response: json.RawMessage(`{"response":`)}

	_, err := Parse(record, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoListing)
}

func TestParse_MissingModelNameFallsBack(t *testing.T) {
	record := buildRecord(t, "SKU99", map[string]any{
		"boxName":   "Some Box",
		"sellPrice": 10,
		"attributeInfo": []any{
			map[string]any{"attributeName": "colour", "attributeValue": "Red", "isVariant": "1"},
		},
	})

	parsed, err := Parse(record, nil)
	require.NoError(t, err)

	assert.Equal(t, "Product SKU99", parsed.ProductName)
	assert.Equal(t, DefaultCategoryName, parsed.CategoryName)
	assert.Equal(t, "UNKNOWN", parsed.ConditionCode)
}

func TestParse_GradeNotVariantFlaggedStillSetsCondition(t *testing.T) {
	record := buildRecord(t, "SKU5", map[string]any{
		"boxName":   "Box",
		"sellPrice": 10,
		"attributeInfo": []any{
			map[string]any{"attributeName": "grade", "attributeValue": "B", "isVariant": "0"},
		},
	})

	parsed, err := Parse(record, nil)
	require.NoError(t, err)

	assert.Equal(t, "B", parsed.ConditionCode)
	assert.Empty(t, parsed.Attributes)
	assert.Equal(t, "", parsed.Signature)
}

func TestParse_DuplicateCodeFirstOccurrenceWins(t *testing.T) {
	record := buildRecord(t, "SKU6", map[string]any{
		"boxName":   "Box",
		"sellPrice": 10,
		"attributeInfo": []any{
			map[string]any{"attributeName": "storage", "attributeValue": "64GB", "isVariant": "1"},
			map[string]any{"attributeName": "storage", "attributeValue": "128GB", "isVariant": "1"},
		},
	})

	parsed, err := Parse(record, nil)
	require.NoError(t, err)

	require.Len(t, parsed.Attributes, 1)
	assert.Equal(t, "64GB", parsed.Attributes[0].Value)
	assert.Equal(t, "storage=64GB", parsed.Signature)
}

func TestParse_BadDateWarnsAndContinues(t *testing.T) {
	record := buildRecord(t, "SKU7", map[string]any{
		"boxName":              "Box",
		"sellPrice":            10,
		"lastPriceUpdatedDate": "16/03/2023",
	})

	var warnedSKU, warnedDate string
	parsed, err := Parse(record, func(sku, rawDate string) {
		warnedSKU = sku
		warnedDate = rawDate
	})
	require.NoError(t, err)

	assert.Nil(t, parsed.PriceLastUpdated)
	assert.Equal(t, "SKU7", warnedSKU)
	assert.Equal(t, "16/03/2023", warnedDate)
}

func TestParse_OutOfStockVariants(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{name: "numeric zero", value: 0, expected: false},
		{name: "numeric one", value: 1, expected: true},
		{name: "bool true", value: true, expected: true},
		{name: "bool false", value: false, expected: false},
		{name: "absent", value: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := map[string]any{"boxName": "Box", "sellPrice": 10}
			if tt.value != nil {
				box["outOfStock"] = tt.value
			}

			parsed, err := Parse(buildRecord(t, "SKU8", box), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parsed.OutOfStock)
		})
	}
}

func TestParse_StringPrices(t *testing.T) {
	record := buildRecord(t, "SKU9", map[string]any{
		"boxName":   "Box",
		"sellPrice": "123.45",
		"cashPrice": "50.00",
	})

	parsed, err := Parse(record, nil)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("123.45").Equal(parsed.SellPrice))
	assert.True(t, decimal.RequireFromString("50.00").Equal(parsed.CashPrice))
}
