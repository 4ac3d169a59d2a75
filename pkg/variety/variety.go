// Package variety tallies the crop-variety composition of a product from its
// ancestors.
package variety

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// Tally sums fraction*amount per variety name across ancestors. Names are
// NFC-normalized and trimmed, so a name typed with a combining accent and the
// same name with a precomposed one share a key. Values need not sum to 1.
func Tally(ancestors []domain.Ancestor) map[string]float64 {
	out := make(map[string]float64)
	for _, a := range ancestors {
		for _, v := range a.Varieties {
			out[Normalize(v.Name)] += a.Fraction * v.Amount
		}
	}
	return out
}

// Normalize returns the canonical key for a variety name.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
