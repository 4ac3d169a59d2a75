// Package provenance reconstructs the weighted ancestry of a product: every
// original (non-derived) product that flowed into it, with the fraction each
// one contributes.
//
// Fractions fan out: each input of a transformation inherits its parent's
// fraction unchanged, so a blend of two lots reports both at 1.0. Lots
// reached over several paths have their fractions summed.
package provenance

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// inputRatio is the share of a parent's fraction passed to each input.
const inputRatio = 1.0

// Options bounds one resolution.
type Options struct {
	MaxDepth    int `yaml:"max_depth" json:"max_depth"`
	MaxPaths    int `yaml:"max_paths" json:"max_paths"`
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// DefaultOptions returns limits generous enough for real supply chains.
func DefaultOptions() Options {
	return Options{MaxDepth: 64, MaxPaths: 100_000, Concurrency: 8}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxPaths <= 0 {
		o.MaxPaths = d.MaxPaths
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	return o
}

// Resolver computes ancestry against one Source.
type Resolver struct {
	src    *Memo
	opts   Options
	logger *slog.Logger
}

// NewResolver creates a resolver. src is wrapped in a Memo so repeated
// lookups within the resolver's lifetime hit the backend once.
func NewResolver(src Source, opts Options) *Resolver {
	return &Resolver{
		src:    NewMemo(src),
		opts:   opts.withDefaults(),
		logger: slog.Default().With("component", "provenance"),
	}
}

// WithLogger overrides the logger.
func (r *Resolver) WithLogger(l *slog.Logger) *Resolver {
	r.logger = l
	return r
}

// Resolve returns the aggregated ancestors of productID in first-seen
// depth-first order. An unknown id fails with domain.ErrNotFound; a cycle
// or an ancestry beyond MaxDepth or MaxPaths fails with domain.ErrInvalidGraph.
func (r *Resolver) Resolve(ctx context.Context, productID string) ([]domain.Ancestor, error) {
	g, err := r.discover(ctx, productID)
	if err != nil {
		return nil, err
	}
	ancestors, paths, err := r.walk(ctx, g, productID)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "provenance resolved",
		"product", productID,
		"nodes", len(g.inputs),
		"paths", paths,
		"ancestors", len(ancestors),
	)
	return ancestors, nil
}

// graph is the fetched portion of the input DAG.
type graph struct {
	inputs map[string][]string
	leaves map[string]domain.Product
}

// discover fetches the ancestry breadth-first, one level at a time, with up
// to Concurrency lookups in flight. Levels past MaxDepth are left unfetched;
// walk rejects any path that reaches them.
func (r *Resolver) discover(ctx context.Context, root string) (*graph, error) {
	g := &graph{
		inputs: make(map[string][]string),
		leaves: make(map[string]domain.Product),
	}

	frontier := []string{root}
	for depth := 0; len(frontier) > 0 && depth <= r.opts.MaxDepth; depth++ {
		inputs := make([][]string, len(frontier))
		leaves := make([]*domain.Product, len(frontier))

		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(r.opts.Concurrency)
		for i, id := range frontier {
			eg.Go(func() error {
				in, err := r.src.InputsOf(egctx, id)
				if err != nil {
					return err
				}
				inputs[i] = in
				if len(in) == 0 {
					p, err := r.src.Product(egctx, id)
					if err != nil {
						return err
					}
					leaves[i] = &p
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		for i, id := range frontier {
			g.inputs[id] = inputs[i]
			if leaves[i] != nil {
				g.leaves[id] = *leaves[i]
			}
		}

		// Next level in input order so discovery is reproducible.
		next := make([]string, 0)
		queued := make(map[string]struct{})
		for i := range frontier {
			for _, in := range inputs[i] {
				if _, fetched := g.inputs[in]; fetched {
					continue
				}
				if _, ok := queued[in]; ok {
					continue
				}
				queued[in] = struct{}{}
				next = append(next, in)
			}
		}
		frontier = next
	}
	return g, nil
}

type frame struct {
	id       string
	fraction float64
	depth    int
	parent   *frame
}

// onPath reports whether id already appears between the root and f.
func (f *frame) onPath(id string) bool {
	for p := f; p != nil; p = p.parent {
		if p.id == id {
			return true
		}
	}
	return false
}

// walk enumerates every root-to-leaf path with an explicit stack and folds
// the leaves into an accumulator.
func (r *Resolver) walk(ctx context.Context, g *graph, root string) ([]domain.Ancestor, int, error) {
	acc := newAccumulator()
	stack := []*frame{{id: root, fraction: 1}}
	paths := 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, paths, err
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		inputs, fetched := g.inputs[f.id]
		if f.depth > r.opts.MaxDepth || !fetched {
			return nil, paths, domain.InvalidGraph(root, fmt.Sprintf("ancestry deeper than %d", r.opts.MaxDepth))
		}

		if len(inputs) == 0 {
			paths++
			if paths > r.opts.MaxPaths {
				return nil, paths, domain.InvalidGraph(root, fmt.Sprintf("more than %d ancestry paths", r.opts.MaxPaths))
			}
			acc.add(ancestorOf(g.leaves[f.id], f.fraction))
			continue
		}

		// Reverse push so the first input is walked first.
		for i := len(inputs) - 1; i >= 0; i-- {
			in := inputs[i]
			if f.onPath(in) {
				return nil, paths, domain.InvalidGraph(root, fmt.Sprintf("cycle through %s", in))
			}
			stack = append(stack, &frame{
				id:       in,
				fraction: inputRatio * f.fraction,
				depth:    f.depth + 1,
				parent:   f,
			})
		}
	}
	return acc.result(), paths, nil
}

func ancestorOf(p domain.Product, fraction float64) domain.Ancestor {
	return domain.Ancestor{
		ProductID:   p.ID,
		Fraction:    fraction,
		Type:        p.Type,
		Varieties:   p.Varieties,
		Emitter:     p.CreatedBy,
		EmitterName: p.CreatorName,
		Timestamp:   p.CreatedAt,
	}
}
