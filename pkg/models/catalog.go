package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RootCategoryName is the sentinel every ingested category is parented under.
const RootCategoryName = "Root"

// Category is a node in the category forest. The root sentinel has a nil
// parent; every other category points at an ancestor and the walk upward
// always terminates.
type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	ParentID  *string   `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Product is identified by (category, name) within the catalog.
type Product struct {
	ID         string    `json:"id" db:"id"`
	CategoryID string    `json:"category_id" db:"category_id"`
	Name       string    `json:"name" db:"name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Attribute is a machine-keyed attribute definition owned by a category.
type Attribute struct {
	ID         string `json:"id" db:"id"`
	CategoryID string `json:"category_id" db:"category_id"`
	Code       string `json:"code" db:"code"`
	Label      string `json:"label" db:"label"`
}

// AttributeValue is a deduplicated value row for an attribute.
type AttributeValue struct {
	ID          string `json:"id" db:"id"`
	AttributeID string `json:"attribute_id" db:"attribute_id"`
	Value       string `json:"value" db:"value"`
}

// ConditionGrade is a seeded condition code (A, B, C, BOXED, ...).
type ConditionGrade struct {
	ID   string `json:"id" db:"id"`
	Code string `json:"code" db:"code"`
}

// DefaultConditionCode is used when a listing carries no grade attribute.
const DefaultConditionCode = "UNKNOWN"

// DefaultConditionCodes are seeded before any ingestion run.
var DefaultConditionCodes = []string{"A", "B", "C", "BOXED", "UNBOXED", "DISCOUNTED", "UNKNOWN"}

// Variant is a sellable item identified globally by its marketplace SKU.
// Variants are created on first sighting and updated in place afterwards;
// they are never deleted.
type Variant struct {
	ID               string          `json:"id" db:"id"`
	ProductID        string          `json:"product_id" db:"product_id"`
	ConditionGradeID string          `json:"condition_grade_id" db:"condition_grade_id"`
	SKU              string          `json:"sku" db:"sku"`
	Title            string          `json:"title" db:"title"`
	Signature        string          `json:"signature" db:"signature"`
	CurrentSellPrice decimal.Decimal `json:"current_sell_price" db:"current_sell_price"`
	TradeinCash      decimal.Decimal `json:"tradein_cash" db:"tradein_cash"`
	TradeinVoucher   decimal.Decimal `json:"tradein_voucher" db:"tradein_voucher"`
	OutOfStock       bool            `json:"out_of_stock" db:"out_of_stock"`
	PriceLastUpdated *time.Time      `json:"price_last_updated,omitempty" db:"price_last_updated"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// VariantAttributeValue links a variant to one of its defining attribute values.
type VariantAttributeValue struct {
	VariantID        string `json:"variant_id" db:"variant_id"`
	AttributeValueID string `json:"attribute_value_id" db:"attribute_value_id"`
}

// PriceHistory is an append-only log entry. One row is written whenever the
// variant's sell price changes, including at creation; rows are never mutated.
type PriceHistory struct {
	ID         string          `json:"id" db:"id"`
	VariantID  string          `json:"variant_id" db:"variant_id"`
	Price      decimal.Decimal `json:"price" db:"price"`
	RecordedAt time.Time       `json:"recorded_at" db:"recorded_at"`
}

// CategoryNode is a category with its children, used by the tree endpoint.
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}
