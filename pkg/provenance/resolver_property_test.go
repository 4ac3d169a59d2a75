//go:build property
// +build property

package provenance_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
	"github.com/Mindburn-Labs/coffeechain/pkg/provenance"
)

const (
	layers = 4
	width  = 3
)

type dagSource map[string][]string

func (d dagSource) InputsOf(_ context.Context, id string) ([]string, error) {
	in, ok := d[id]
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	return in, nil
}

func (d dagSource) Product(_ context.Context, id string) (domain.Product, error) {
	if _, ok := d[id]; !ok {
		return domain.Product{}, domain.NotFound("product", id)
	}
	return domain.Product{ID: id}, nil
}

func node(layer, i int) string { return fmt.Sprintf("L%dN%d", layer, i) }

// buildDAG turns masks into a layered blend graph. Layer 0 feeds "root";
// each mask selects the inputs of one node from the next layer down.
func buildDAG(masks []uint8) dagSource {
	d := dagSource{}
	pick := func(mask uint8, layer int) []string {
		var in []string
		for i := 0; i < width; i++ {
			if mask&(1<<i) != 0 {
				in = append(in, node(layer, i))
			}
		}
		if len(in) == 0 {
			in = []string{node(layer, 0)}
		}
		return in
	}
	d["root"] = pick(masks[0], 0)
	k := 1
	for l := 0; l < layers; l++ {
		for i := 0; i < width; i++ {
			if l == layers-1 {
				d[node(l, i)] = nil
				continue
			}
			d[node(l, i)] = pick(masks[k%len(masks)], l+1)
			k++
		}
	}
	return d
}

// pathCounts counts root-to-leaf paths per leaf.
func pathCounts(d dagSource) map[string]float64 {
	ways := map[string]float64{"root": 1}
	order := []string{"root"}
	for l := 0; l < layers; l++ {
		for i := 0; i < width; i++ {
			order = append(order, node(l, i))
		}
	}
	leaves := map[string]float64{}
	for _, id := range order {
		w := ways[id]
		if w == 0 {
			continue
		}
		if len(d[id]) == 0 {
			leaves[id] = w
			continue
		}
		for _, in := range d[id] {
			ways[in] += w
		}
	}
	return leaves
}

func masksGen() gopter.Gen {
	return gen.SliceOfN(layers*width+1, gen.UInt8Range(0, 7))
}

// TestFanOutReplication verifies each leaf's fraction equals the number of
// paths reaching it, so fractions replicate rather than split.
func TestFanOutReplication(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("leaf fraction equals path count", prop.ForAll(
		func(masks []uint8) bool {
			d := buildDAG(masks)
			ancestors, err := provenance.NewResolver(d, provenance.DefaultOptions()).Resolve(context.Background(), "root")
			if err != nil {
				return false
			}
			want := pathCounts(d)
			if len(ancestors) != len(want) {
				return false
			}
			for _, a := range ancestors {
				if math.Abs(a.Fraction-want[a.ProductID]) > 1e-9 {
					return false
				}
			}
			return true
		},
		masksGen(),
	))

	properties.TestingRun(t)
}

// TestMergeConservesMass verifies merging never loses or double-counts mass.
func TestMergeConservesMass(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("merge preserves total fraction", prop.ForAll(
		func(ids []uint8, fracs []float64) bool {
			var flat []domain.Ancestor
			total := 0.0
			for i := 0; i < len(ids) && i < len(fracs); i++ {
				flat = append(flat, domain.Ancestor{ProductID: fmt.Sprint(ids[i] % 5), Fraction: fracs[i]})
				total += fracs[i]
			}
			merged := provenance.Merge(flat)
			sum := 0.0
			seen := map[string]bool{}
			for _, a := range merged {
				if seen[a.ProductID] {
					return false
				}
				seen[a.ProductID] = true
				sum += a.Fraction
			}
			return math.Abs(sum-total) < 1e-9
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.TestingRun(t)
}

// TestResolveOrderIndependentOfConcurrency verifies the output sequence does
// not depend on how many lookups run in parallel.
func TestResolveOrderIndependentOfConcurrency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("same result for any concurrency", prop.ForAll(
		func(masks []uint8, conc int) bool {
			d := buildDAG(masks)
			serial, err1 := provenance.NewResolver(d, provenance.Options{Concurrency: 1}).Resolve(context.Background(), "root")
			parallel, err2 := provenance.NewResolver(d, provenance.Options{Concurrency: conc}).Resolve(context.Background(), "root")
			if err1 != nil || err2 != nil || len(serial) != len(parallel) {
				return false
			}
			for i := range serial {
				if serial[i].ProductID != parallel[i].ProductID || serial[i].Fraction != parallel[i].Fraction {
					return false
				}
			}
			return true
		},
		masksGen(),
		gen.IntRange(2, 16),
	))

	properties.TestingRun(t)
}
