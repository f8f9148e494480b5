package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLadder(t *testing.T) {
	t.Run("preserves the reference margin at the target price", func(t *testing.T) {
		ladder := BuildLadder(d("200"), d("80"), d("150"))

		require.Len(t, ladder.Offers, 3)

		first := ladder.Offers[0]
		assert.Equal(t, "First Offer", first.Label)
		assert.True(t, d("30").Equal(first.Price))
		assert.True(t, d("80").Equal(first.MarginPercent))
		assert.False(t, first.Highlighted)

		second := ladder.Offers[1]
		assert.Equal(t, "Second Offer", second.Label)
		assert.True(t, d("55").Equal(second.Price))
		assert.True(t, d("63.3").Equal(second.MarginPercent))
		assert.False(t, second.Highlighted)

		third := ladder.Offers[2]
		assert.Equal(t, "Third Offer", third.Label)
		assert.True(t, d("80").Equal(third.Price))
		assert.True(t, d("46.7").Equal(third.MarginPercent))
		assert.True(t, third.Highlighted)
	})

	t.Run("clamps the first offer at zero", func(t *testing.T) {
		ladder := BuildLadder(d("500"), d("100"), d("150"))

		assert.True(t, ladder.Offers[0].Price.IsZero())
		assert.True(t, d("50").Equal(ladder.Offers[1].Price))
		assert.True(t, d("100").Equal(ladder.Offers[2].Price))
	})

	t.Run("midpoint rounds to two decimal places", func(t *testing.T) {
		ladder := BuildLadder(d("100"), d("33.33"), d("90"))

		// first = 90 - 66.67 = 23.33, midpoint of 23.33 and 33.33
		assert.True(t, d("28.33").Equal(ladder.Offers[1].Price))
	})

	t.Run("zero target yields zero margins", func(t *testing.T) {
		ladder := BuildLadder(d("100"), d("40"), d("0"))

		for _, offer := range ladder.Offers {
			assert.True(t, offer.MarginPercent.IsZero())
		}
	})

	t.Run("carries the reference prices", func(t *testing.T) {
		ladder := BuildLadder(d("200"), d("80"), d("150"))

		assert.True(t, d("200").Equal(ladder.ReferenceSellPrice))
		assert.True(t, d("80").Equal(ladder.ReferenceBuyPrice))
		assert.True(t, d("150").Equal(ladder.TargetSellPrice))
	})
}
