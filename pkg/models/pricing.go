package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementClass is a coarse classification of how much margin the reference
// marketplace captures on an item.
type MovementClass string

const (
	MovementFast    MovementClass = "FAST"
	MovementMedium  MovementClass = "MEDIUM"
	MovementSlow    MovementClass = "SLOW"
	MovementUnknown MovementClass = "UNKNOWN"
)

// Valid reports whether the value is one of the known movement classes.
func (m MovementClass) Valid() bool {
	switch m {
	case MovementFast, MovementMedium, MovementSlow, MovementUnknown:
		return true
	}
	return false
}

// PricingRule maps a movement class to a sell-price multiplier at exactly one
// scope: a product, a category, or the global default.
type PricingRule struct {
	ID                  string          `json:"id" db:"id"`
	ProductID           *string         `json:"product_id,omitempty" db:"product_id"`
	CategoryID          *string         `json:"category_id,omitempty" db:"category_id"`
	IsGlobalDefault     bool            `json:"is_global_default" db:"is_global_default"`
	MovementClass       MovementClass   `json:"movement_class" db:"movement_class"`
	SellPriceMultiplier decimal.Decimal `json:"sell_price_multiplier" db:"sell_price_multiplier"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// CreatePricingRuleRequest is the request payload for creating a pricing rule.
type CreatePricingRuleRequest struct {
	ProductID           *string         `json:"product_id,omitempty"`
	CategoryID          *string         `json:"category_id,omitempty"`
	IsGlobalDefault     bool            `json:"is_global_default"`
	MovementClass       MovementClass   `json:"movement_class" validate:"required"`
	SellPriceMultiplier decimal.Decimal `json:"sell_price_multiplier" validate:"required"`
}

// Offer is one rung of the buy-back ladder.
type Offer struct {
	Label         string          `json:"label"`
	Price         decimal.Decimal `json:"price"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	Highlighted   bool            `json:"highlighted"`
}

// OfferLadder holds the three offers derived from one reference buy price.
type OfferLadder struct {
	ReferenceSellPrice decimal.Decimal `json:"reference_sell_price"`
	ReferenceBuyPrice  decimal.Decimal `json:"reference_buy_price"`
	TargetSellPrice    decimal.Decimal `json:"target_sell_price"`
	Offers             []Offer         `json:"offers"`
}

// MarketStats is the read-side summary for one variant.
type MarketStats struct {
	SKU              string          `json:"sku"`
	Title            string          `json:"title"`
	CurrentSellPrice decimal.Decimal `json:"current_sell_price"`
	TradeinCash      decimal.Decimal `json:"tradein_cash"`
	TradeinVoucher   decimal.Decimal `json:"tradein_voucher"`
	OutOfStock       bool            `json:"out_of_stock"`
	MovementClass    MovementClass   `json:"movement_class"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
	PriceLastUpdated *time.Time      `json:"price_last_updated,omitempty"`
}

// PriceLadderResponse is the full pricing view for one variant: the resolved
// target sell price plus a ladder per reference buy price.
type PriceLadderResponse struct {
	SKU             string          `json:"sku"`
	MovementClass   MovementClass   `json:"movement_class"`
	TargetSellPrice decimal.Decimal `json:"target_sell_price"`
	UsedFallback    bool            `json:"used_fallback"`
	CashLadder      OfferLadder     `json:"cash_ladder"`
	VoucherLadder   OfferLadder     `json:"voucher_ladder"`
}
