package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/allendavis-developer/pricebook/pkg/models"
)

var (
	slowThreshold   = decimal.NewFromFloat(0.50)
	mediumThreshold = decimal.NewFromFloat(0.40)
	hundred         = decimal.NewFromInt(100)
)

// Classify derives a movement class from the reference sell price and the
// reference cash buy price. Margin is (sell - cash) / sell; above 0.50 is
// SLOW, 0.40 up to and including 0.50 is MEDIUM, below 0.40 is FAST. A
// missing or zero price yields UNKNOWN.
func Classify(sellPrice, cashBuyPrice decimal.Decimal) models.MovementClass {
	if sellPrice.LessThanOrEqual(decimal.Zero) || cashBuyPrice.LessThanOrEqual(decimal.Zero) {
		return models.MovementUnknown
	}

	margin := sellPrice.Sub(cashBuyPrice).Div(sellPrice)

	switch {
	case margin.GreaterThan(slowThreshold):
		return models.MovementSlow
	case margin.GreaterThanOrEqual(mediumThreshold):
		return models.MovementMedium
	default:
		return models.MovementFast
	}
}

// MarginPercent returns the reference margin as a percentage rounded to one
// decimal place, or zero when the sell price is absent.
func MarginPercent(sellPrice, cashBuyPrice decimal.Decimal) decimal.Decimal {
	if sellPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return sellPrice.Sub(cashBuyPrice).Div(sellPrice).Mul(hundred).Round(1)
}
