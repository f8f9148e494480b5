package listing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/allendavis-developer/pricebook/pkg/signature"
)

const (
	// modelNameAttribute carries the product name inside attributeInfo.
	modelNameAttribute = "phone_modelname"
	// gradeAttribute carries the condition code, variant-flagged or not.
	gradeAttribute = "grade"

	// DefaultCategoryName is used when the payload omits categoryFriendlyName.
	DefaultCategoryName = "Mobile Phones"

	// PriceUpdatedLayout is the marketplace's timestamp format.
	PriceUpdatedLayout = "2006-01-02 15:04:05"
)

// RawRecord is one line of a snapshot feed: either a fetched listing payload
// or an upstream fetch error for the given stable id.
type RawRecord struct {
	StableID string          `json:"stable_id"`
	Error    string          `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// IsError reports whether the record is an upstream fetch error.
func (r RawRecord) IsError() bool {
	return r.Error != ""
}

type responseEnvelope struct {
	Response struct {
		Data struct {
			BoxDetails []boxDetail `json:"boxDetails"`
		} `json:"data"`
	} `json:"response"`
}

type boxDetail struct {
	BoxName              string          `json:"boxName"`
	SellPrice            decimal.Decimal `json:"sellPrice"`
	CashPrice            decimal.Decimal `json:"cashPrice"`
	ExchangePrice        decimal.Decimal `json:"exchangePrice"`
	CategoryFriendlyName string          `json:"categoryFriendlyName"`
	OutOfStock           json.RawMessage `json:"outOfStock"`
	LastPriceUpdatedDate string          `json:"lastPriceUpdatedDate"`
	AttributeInfo        []attributeInfo `json:"attributeInfo"`
}

type attributeInfo struct {
	AttributeName         string          `json:"attributeName"`
	AttributeFriendlyName string          `json:"attributeFriendlyName"`
	AttributeValue        json.RawMessage `json:"attributeValue"`
	IsVariant             string          `json:"isVariant"`
}

// AttributePair is one variant-defining attribute extracted from a listing.
type AttributePair struct {
	Code  string
	Label string
	Value string
}

// Listing is the normalized intermediate form the ingestion pipeline works on.
type Listing struct {
	SKU              string
	Title            string
	SellPrice        decimal.Decimal
	CashPrice        decimal.Decimal
	VoucherPrice     decimal.Decimal
	CategoryName     string
	ProductName      string
	ConditionCode    string
	OutOfStock       bool
	PriceLastUpdated *time.Time
	Attributes       []AttributePair
	Signature        string
}

// ErrNoListing is returned when the record carries no boxDetails payload.
// Such records are skipped silently, they are not errors.
var ErrNoListing = fmt.Errorf("record has no listing payload")

// Parse normalizes one raw record. A nil DateWarnFunc is allowed; it is called
// with the SKU and raw date when lastPriceUpdatedDate cannot be parsed.
func Parse(record RawRecord, warn DateWarnFunc) (*Listing, error) {
	if record.IsError() {
		return nil, fmt.Errorf("upstream fetch error for %s: %s", record.StableID, record.Error)
	}
	if len(record.Response) == 0 {
		return nil, ErrNoListing
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(record.Response, &envelope); err != nil {
		return nil, fmt.Errorf("malformed listing payload for %s: %w", record.StableID, err)
	}
	if len(envelope.Response.Data.BoxDetails) == 0 {
		return nil, ErrNoListing
	}

	box := envelope.Response.Data.BoxDetails[0]

	categoryName := box.CategoryFriendlyName
	if categoryName == "" {
		categoryName = DefaultCategoryName
	}

	productName := ""
	for _, attr := range box.AttributeInfo {
		if strings.EqualFold(attr.AttributeName, modelNameAttribute) {
			productName = strings.TrimSpace(scalarString(attr.AttributeValue))
			break
		}
	}
	if productName == "" {
		productName = fmt.Sprintf("Product %s", record.StableID)
	}

	conditionCode := "UNKNOWN"
	var pairs []AttributePair
	seen := map[string]bool{}

	for _, attr := range box.AttributeInfo {
		value := scalarString(attr.AttributeValue)
		if attr.AttributeName == "" || value == "" {
			continue
		}

		if strings.EqualFold(attr.AttributeName, gradeAttribute) {
			conditionCode = value
		}

		if attr.IsVariant != "1" {
			continue
		}
		if strings.EqualFold(attr.AttributeName, modelNameAttribute) {
			continue
		}
		if seen[attr.AttributeName] {
			continue // first occurrence wins for duplicate codes
		}
		seen[attr.AttributeName] = true

		label := attr.AttributeFriendlyName
		if label == "" {
			label = attr.AttributeName
		}
		pairs = append(pairs, AttributePair{
			Code:  attr.AttributeName,
			Label: label,
			Value: value,
		})
	}

	sigPairs := make([]signature.Pair, 0, len(pairs))
	for _, p := range pairs {
		sigPairs = append(sigPairs, signature.Pair{Code: p.Code, Value: p.Value})
	}

	var priceUpdated *time.Time
	if box.LastPriceUpdatedDate != "" {
		parsed, err := time.Parse(PriceUpdatedLayout, box.LastPriceUpdatedDate)
		if err != nil {
			if warn != nil {
				warn(record.StableID, box.LastPriceUpdatedDate)
			}
		} else {
			priceUpdated = &parsed
		}
	}

	return &Listing{
		SKU:              record.StableID,
		Title:            box.BoxName,
		SellPrice:        box.SellPrice,
		CashPrice:        box.CashPrice,
		VoucherPrice:     box.ExchangePrice,
		CategoryName:     categoryName,
		ProductName:      productName,
		ConditionCode:    conditionCode,
		OutOfStock:       truthy(box.OutOfStock),
		PriceLastUpdated: priceUpdated,
		Attributes:       pairs,
		Signature:        signature.Build(sigPairs),
	}, nil
}

// DateWarnFunc is invoked when a listing carries an unparseable date.
type DateWarnFunc func(sku, rawDate string)

// scalarString renders an attributeValue, which may be a scalar or a
// single-element list, as a string. The first element of a list is used.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		if len(t) == 0 {
			return ""
		}
		return stringify(t[0])
	default:
		return fmt.Sprint(t)
	}
}

// truthy interprets outOfStock, which arrives as 0/1 or a bool.
func truthy(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "0", "false", "null", `""`:
		return false
	}
	return true
}
