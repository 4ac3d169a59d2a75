package provenance

import "github.com/Mindburn-Labs/coffeechain/pkg/domain"

// accumulator merges ancestors by product id, keeping first-seen order and
// first-seen metadata while summing fractions.
type accumulator struct {
	order []string
	byID  map[string]*domain.Ancestor
}

func newAccumulator() *accumulator {
	return &accumulator{byID: make(map[string]*domain.Ancestor)}
}

func (a *accumulator) add(anc domain.Ancestor) {
	if prev, ok := a.byID[anc.ProductID]; ok {
		prev.Fraction += anc.Fraction
		return
	}
	cp := anc
	a.byID[anc.ProductID] = &cp
	a.order = append(a.order, anc.ProductID)
}

func (a *accumulator) result() []domain.Ancestor {
	out := make([]domain.Ancestor, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.byID[id])
	}
	return out
}

// Merge aggregates a flat ancestor list by product id. Merging an already
// merged list returns it unchanged.
func Merge(ancestors []domain.Ancestor) []domain.Ancestor {
	acc := newAccumulator()
	for _, a := range ancestors {
		acc.add(a)
	}
	return acc.result()
}
