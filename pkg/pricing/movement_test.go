package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/allendavis-developer/pricebook/pkg/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		sell     string
		cash     string
		expected models.MovementClass
	}{
		{name: "margin above half is slow", sell: "100", cash: "40", expected: models.MovementSlow},
		{name: "margin exactly half is medium", sell: "100", cash: "50", expected: models.MovementMedium},
		{name: "margin exactly forty percent is medium", sell: "100", cash: "60", expected: models.MovementMedium},
		{name: "margin below forty percent is fast", sell: "100", cash: "70", expected: models.MovementFast},
		{name: "tiny margin is fast", sell: "100", cash: "99.99", expected: models.MovementFast},
		{name: "zero sell price is unknown", sell: "0", cash: "50", expected: models.MovementUnknown},
		{name: "zero cash price is unknown", sell: "100", cash: "0", expected: models.MovementUnknown},
		{name: "negative cash price is unknown", sell: "100", cash: "-5", expected: models.MovementUnknown},
		{name: "cash above sell is fast", sell: "100", cash: "110", expected: models.MovementFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(d(tt.sell), d(tt.cash)))
		})
	}
}

func TestMarginPercent(t *testing.T) {
	tests := []struct {
		name     string
		sell     string
		cash     string
		expected string
	}{
		{name: "whole percentage", sell: "100", cash: "60", expected: "40"},
		{name: "rounds to one decimal place", sell: "300", cash: "100", expected: "66.7"},
		{name: "zero sell price yields zero", sell: "0", cash: "50", expected: "0"},
		{name: "negative margin is preserved", sell: "100", cash: "110", expected: "-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, d(tt.expected).Equal(MarginPercent(d(tt.sell), d(tt.cash))))
		})
	}
}
