//go:build property
// +build property

package variety_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
	"github.com/Mindburn-Labs/coffeechain/pkg/variety"
)

// TestTallyBounded verifies the tally never fabricates mass: when each
// product's variety amounts sum to at most 1, the tally total is at most the
// sum of ancestor fractions.
func TestTallyBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("tally total <= fraction total", prop.ForAll(
		func(fracs []float64, split float64, names []string) bool {
			var ancestors []domain.Ancestor
			fractionSum := 0.0
			for i, f := range fracs {
				name := "v"
				if len(names) > 0 {
					name = names[i%len(names)]
				}
				ancestors = append(ancestors, domain.Ancestor{
					Fraction: f,
					Varieties: []domain.Variety{
						{Name: name, Amount: split},
						{Name: name + "-b", Amount: 1 - split},
					},
				})
				fractionSum += f
			}
			total := 0.0
			for _, v := range variety.Tally(ancestors) {
				total += v
			}
			return total <= fractionSum+1e-9
		},
		gen.SliceOf(gen.Float64Range(0, 4)),
		gen.Float64Range(0, 1),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
