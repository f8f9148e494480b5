package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/allendavis-developer/pricebook/pkg/models"
)

var two = decimal.NewFromInt(2)

// BuildLadder derives the three-tier buy-back offer ladder from a reference
// sell price, a reference buy price (cash or voucher) and the resolved target
// sell price. The first offer preserves the reference's absolute margin at
// our own sell price, clamped at zero; the third matches the reference buy
// price exactly and is the highlighted offer; the second is their midpoint.
func BuildLadder(referenceSell, referenceBuy, targetSell decimal.Decimal) models.OfferLadder {
	referenceMargin := referenceSell.Sub(referenceBuy)

	first := targetSell.Sub(referenceMargin)
	if first.IsNegative() {
		first = decimal.Zero
	}
	third := referenceBuy
	second := first.Add(third).Div(two).Round(2)

	return models.OfferLadder{
		ReferenceSellPrice: referenceSell,
		ReferenceBuyPrice:  referenceBuy,
		TargetSellPrice:    targetSell,
		Offers: []models.Offer{
			{Label: "First Offer", Price: first, MarginPercent: offerMarginPercent(targetSell, first)},
			{Label: "Second Offer", Price: second, MarginPercent: offerMarginPercent(targetSell, second)},
			{Label: "Third Offer", Price: third, MarginPercent: offerMarginPercent(targetSell, third), Highlighted: true},
		},
	}
}

// offerMarginPercent is the margin captured at an offer relative to the
// target sell price, rounded to one decimal place. Zero when the target is
// not positive.
func offerMarginPercent(targetSell, offer decimal.Decimal) decimal.Decimal {
	if targetSell.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return targetSell.Sub(offer).Div(targetSell).Mul(hundred).Round(1)
}
