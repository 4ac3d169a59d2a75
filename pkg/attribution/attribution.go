// Package attribution maps ancestry fractions onto the producers behind them:
// how much of a product each actor contributed, what they were paid, and
// which credentials they held when they produced it.
package attribution

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// DefaultCurrency is reported for actors with no recorded payout.
const DefaultCurrency = "USD"

// Source is the part of the ledger the aggregator reads.
type Source interface {
	Actor(ctx context.Context, actorID string) (domain.Actor, error)
	PayoutFor(ctx context.Context, productID string) (*domain.Payout, error)
	CertificatesValidAt(ctx context.Context, actorID string, ts time.Time) ([]domain.Certificate, error)
	PracticesOf(ctx context.Context, actorID string) ([]domain.Practice, error)
}

// ProducerAttribution is one actor's share of a product.
type ProducerAttribution struct {
	ActorID      string               `json:"id"`
	Name         string               `json:"name"`
	Type         domain.ActorType     `json:"type"`
	Location     string               `json:"location"`
	Contribution float64              `json:"contribution"`
	Payout       domain.Payout        `json:"payout"`
	Certificates []domain.Certificate `json:"certificates"`
	Practices    []domain.Practice    `json:"practices"`
}

// Options configures an Aggregator.
type Options struct {
	Concurrency     int
	DefaultCurrency string
}

// Aggregator folds ancestors into per-actor attributions.
type Aggregator struct {
	src    Source
	opts   Options
	logger *slog.Logger
}

func NewAggregator(src Source, opts Options) *Aggregator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = DefaultCurrency
	}
	return &Aggregator{src: src, opts: opts, logger: slog.Default().With("component", "attribution")}
}

// record is everything fetched for one ancestor.
type record struct {
	fraction     float64
	actor        domain.Actor
	payout       *domain.Payout
	certificates []domain.Certificate
	practices    []domain.Practice
}

// Aggregate fetches the producer details of every ancestor concurrently and
// merges them by actor id in ancestor order. Contributions and payouts are
// summed; credentials come from the actor's last ancestor. Payouts in more
// than one currency for the same actor fail with
// domain.ErrInconsistentCurrency.
func (a *Aggregator) Aggregate(ctx context.Context, ancestors []domain.Ancestor) ([]ProducerAttribution, error) {
	records := make([]record, len(ancestors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, anc := range ancestors {
		g.Go(func() error {
			rec, err := a.fetch(gctx, anc)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := a.merge(records)
	if err != nil {
		return nil, err
	}
	a.logger.DebugContext(ctx, "attribution aggregated", "ancestors", len(ancestors), "producers", len(out))
	return out, nil
}

func (a *Aggregator) fetch(ctx context.Context, anc domain.Ancestor) (record, error) {
	actor, err := a.src.Actor(ctx, anc.Emitter)
	if err != nil {
		return record{}, err
	}
	payout, err := a.src.PayoutFor(ctx, anc.ProductID)
	if err != nil {
		return record{}, err
	}
	certs, err := a.src.CertificatesValidAt(ctx, actor.ID, anc.Timestamp)
	if err != nil {
		return record{}, err
	}
	practices, err := a.src.PracticesOf(ctx, actor.ID)
	if err != nil {
		return record{}, err
	}
	return record{
		fraction:     anc.Fraction,
		actor:        actor,
		payout:       payout,
		certificates: certs,
		practices:    practices,
	}, nil
}

func (a *Aggregator) merge(records []record) ([]ProducerAttribution, error) {
	type entry struct {
		ProducerAttribution
		paid bool
	}
	var order []string
	byActor := make(map[string]*entry)

	for _, rec := range records {
		e, ok := byActor[rec.actor.ID]
		if !ok {
			e = &entry{ProducerAttribution: ProducerAttribution{
				ActorID: rec.actor.ID,
				Payout:  domain.Payout{Amount: decimal.Zero},
			}}
			byActor[rec.actor.ID] = e
			order = append(order, rec.actor.ID)
		}
		e.Name = rec.actor.Name
		e.Type = rec.actor.Type
		e.Location = rec.actor.Location
		e.Contribution += rec.fraction
		e.Certificates = nonNil(rec.certificates)
		e.Practices = nonNil(rec.practices)

		if rec.payout == nil {
			continue
		}
		if e.paid && e.Payout.Currency != rec.payout.Currency {
			return nil, domain.InconsistentCurrency(rec.actor.ID, e.Payout.Currency, rec.payout.Currency)
		}
		e.paid = true
		e.Payout.Currency = rec.payout.Currency
		e.Payout.Amount = e.Payout.Amount.Add(rec.payout.Amount)
	}

	out := make([]ProducerAttribution, 0, len(order))
	for _, id := range order {
		e := byActor[id]
		if !e.paid {
			e.Payout.Currency = a.opts.DefaultCurrency
		}
		out = append(out, e.ProducerAttribution)
	}
	return out, nil
}

// Coverage returns, per credential type, the summed contribution of the
// actors holding it. Each actor counts once per type.
func Coverage(attributions []ProducerAttribution) (certificates, practices map[string]float64) {
	certificates = make(map[string]float64)
	practices = make(map[string]float64)
	for _, pa := range attributions {
		seen := make(map[string]struct{})
		for _, c := range pa.Certificates {
			if _, ok := seen[c.Type]; ok {
				continue
			}
			seen[c.Type] = struct{}{}
			certificates[c.Type] += pa.Contribution
		}
		seen = make(map[string]struct{})
		for _, p := range pa.Practices {
			if _, ok := seen[p.Type]; ok {
				continue
			}
			seen[p.Type] = struct{}{}
			practices[p.Type] += pa.Contribution
		}
	}
	return certificates, practices
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
