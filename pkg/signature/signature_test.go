package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_OrderIndependent(t *testing.T) {
	a := []Pair{
		{Code: "grade", Value: "A"},
		{Code: "colour", Value: "Black"},
		{Code: "storage", Value: "128GB"},
	}
	b := []Pair{
		{Code: "storage", Value: "128GB"},
		{Code: "grade", Value: "A"},
		{Code: "colour", Value: "Black"},
	}

	assert.Equal(t, Build(a), Build(b))
	assert.Equal(t, "colour=Black|grade=A|storage=128GB", Build(a))
}

func TestBuild_DistinctSetsDiffer(t *testing.T) {
	a := Build([]Pair{{Code: "grade", Value: "A"}, {Code: "colour", Value: "Black"}})
	b := Build([]Pair{{Code: "grade", Value: "B"}, {Code: "colour", Value: "Black"}})
	c := Build([]Pair{{Code: "grade", Value: "A"}})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestBuild_Empty(t *testing.T) {
	assert.Equal(t, "", Build(nil))
	assert.Equal(t, "", Build([]Pair{}))
}

func TestBuild_SinglePair(t *testing.T) {
	assert.Equal(t, "grade=A", Build([]Pair{{Code: "grade", Value: "A"}}))
}

func TestHasChanged(t *testing.T) {
	tests := []struct {
		name     string
		old      string
		new      string
		expected bool
	}{
		{name: "identical", old: "grade=A", new: "grade=A", expected: false},
		{name: "different", old: "grade=A", new: "grade=B", expected: true},
		{name: "both empty", old: "", new: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasChanged(tt.old, tt.new))
		})
	}
}
