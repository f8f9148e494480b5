package signature

import (
	"sort"
	"strings"
)

// Pair is one attribute code/value of a variant.
type Pair struct {
	Code  string
	Value string
}

// Build creates a deterministic signature for a variant's defining attribute
// set. Each pair is rendered as "code=value", the rendered parts are sorted
// lexicographically and joined with "|", so identical sets produce identical
// signatures regardless of input order.
func Build(pairs []Pair) string {
	if len(pairs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.Code+"="+p.Value)
	}
	sort.Strings(parts)

	return strings.Join(parts, "|")
}

// HasChanged compares two signatures.
func HasChanged(oldSignature, newSignature string) bool {
	return oldSignature != newSignature
}
