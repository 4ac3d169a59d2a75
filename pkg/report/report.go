// Package report composes the provenance engine into the views served to
// consumers: a product's full ancestry, custody and producer breakdown, and
// an actor's inbox and credentials.
package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/coffeechain/pkg/archive"
	"github.com/Mindburn-Labs/coffeechain/pkg/attribution"
	"github.com/Mindburn-Labs/coffeechain/pkg/custody"
	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
	"github.com/Mindburn-Labs/coffeechain/pkg/ledger"
	"github.com/Mindburn-Labs/coffeechain/pkg/observability"
	"github.com/Mindburn-Labs/coffeechain/pkg/provenance"
	"github.com/Mindburn-Labs/coffeechain/pkg/variety"
)

// Source is the ledger surface reports are built from.
type Source interface {
	ledger.Reader
	PendingFor(ctx context.Context, actorID string) (ledger.Pending, error)
	Inventory(ctx context.Context, actorID string) ([]domain.Product, error)
	Ownership(ctx context.Context, actorID string) ([]domain.Product, error)
}

// ProductReport is everything known about one product's origin.
type ProductReport struct {
	Product             domain.Product                    `json:"product"`
	Provenance          []domain.Ancestor                 `json:"provenance"`
	Custody             []domain.CustodyInterval          `json:"custody"`
	Producers           []attribution.ProducerAttribution `json:"producers"`
	Varieties           map[string]float64                `json:"varieties"`
	CertificateCoverage map[string]float64                `json:"certificate_coverage"`
	PracticeCoverage    map[string]float64                `json:"practice_coverage"`

	// Digest is the sha256 of the canonical JSON of the fields above.
	Digest string `json:"digest"`
	// ArchiveHash is set when the report was archived.
	ArchiveHash string `json:"archive_hash,omitempty"`
}

// ActorReport is one actor's inbox, holdings and current credentials.
type ActorReport struct {
	Actor            domain.Actor         `json:"actor"`
	PendingShipments []domain.Shipment    `json:"pending_shipments"`
	PendingSales     []domain.Sale        `json:"pending_sales"`
	Inventory        []domain.Product     `json:"inventory"`
	Ownership        []domain.Product     `json:"ownership"`
	Certificates     []domain.Certificate `json:"certificates"`
	Practices        []domain.Practice    `json:"practices"`
	AsOf             time.Time            `json:"as_of"`
}

// Options configures a Service.
type Options struct {
	Resolver    provenance.Options
	Attribution attribution.Options
	// RequestTimeout bounds one report. Zero means no deadline beyond the
	// caller's context.
	RequestTimeout time.Duration
}

// Service builds reports. It holds no per-request state; every report gets
// its own resolver and memo.
type Service struct {
	src     Source
	opts    Options
	obs     *observability.Provider
	archive *archive.Archive
	clock   func() time.Time
	logger  *slog.Logger

	ancestorHist metric.Int64Histogram
}

func NewService(src Source, opts Options) *Service {
	s := &Service{
		src:    src,
		opts:   opts,
		obs:    observability.Disabled(),
		clock:  time.Now,
		logger: slog.Default().With("component", "report"),
	}
	s.instrument()
	return s
}

// WithObservability traces every report and engine stage through p.
func (s *Service) WithObservability(p *observability.Provider) *Service {
	if p != nil {
		s.obs = p
		s.instrument()
	}
	return s
}

func (s *Service) instrument() {
	h, err := s.obs.Meter().Int64Histogram("coffeechain.report.ancestors",
		metric.WithDescription("Original products behind one product report"),
		metric.WithUnit("{product}"),
	)
	if err != nil {
		s.logger.Warn("ancestor histogram unavailable", "error", err)
		return
	}
	s.ancestorHist = h
}

// WithArchive stores every product report in a.
func (s *Service) WithArchive(a *archive.Archive) *Service {
	s.archive = a
	return s
}

// WithClock overrides the time used for "currently valid" certificates.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// ProductReport resolves provenance, custody and attribution for productID.
// Any failure aborts the whole report.
func (s *Service) ProductReport(ctx context.Context, productID string) (_ *ProductReport, err error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()
	ctx, done := s.obs.TrackOperation(ctx, "report.product", observability.ProductOperation(productID)...)
	defer func() { done(err) }()

	product, err := s.src.Product(ctx, productID)
	if err != nil {
		return nil, err
	}

	ancestors, err := stage(ctx, s, "provenance.resolve", func(ctx context.Context) ([]domain.Ancestor, error) {
		return provenance.NewResolver(s.src, s.opts.Resolver).WithLogger(s.logger).Resolve(ctx, productID)
	})
	if err != nil {
		return nil, err
	}
	observability.AddSpanEvent(ctx, "provenance.resolved", observability.AttrAncestors.Int(len(ancestors)))
	if s.ancestorHist != nil {
		s.ancestorHist.Record(ctx, int64(len(ancestors)))
	}

	var (
		intervals []domain.CustodyInterval
		producers []attribution.ProducerAttribution
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		intervals, err = stage(gctx, s, "custody.resolve", func(ctx context.Context) ([]domain.CustodyInterval, error) {
			return custody.NewReconstructor(s.src).Resolve(ctx, productID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		producers, err = stage(gctx, s, "attribution.aggregate", func(ctx context.Context) ([]attribution.ProducerAttribution, error) {
			return attribution.NewAggregator(s.src, s.opts.Attribution).Aggregate(ctx, ancestors)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	observability.AddSpanEvent(ctx, "attribution.aggregated", observability.AttrProducers.Int(len(producers)))

	certs, practices := attribution.Coverage(producers)
	rep := &ProductReport{
		Product:             product,
		Provenance:          nonNil(ancestors),
		Custody:             nonNil(intervals),
		Producers:           nonNil(producers),
		Varieties:           variety.Tally(ancestors),
		CertificateCoverage: certs,
		PracticeCoverage:    practices,
	}
	if rep.Digest, err = Digest(rep); err != nil {
		return nil, err
	}

	if s.archive != nil {
		if rep.ArchiveHash, err = s.archive.Put(ctx, archive.KindProductReport, productID, rep.Digest, rep); err != nil {
			return nil, fmt.Errorf("archive report %s: %w", productID, err)
		}
	}

	s.logger.InfoContext(ctx, "product report built",
		"product", productID,
		"ancestors", len(rep.Provenance),
		"producers", len(rep.Producers),
		"custody", len(rep.Custody),
		"digest", rep.Digest,
	)
	return rep, nil
}

// stage runs one engine step under its own span.
func stage[T any](ctx context.Context, s *Service, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, done := s.obs.TrackOperation(ctx, name)
	v, err := fn(ctx)
	done(err)
	return v, err
}

// ActorReport lists the actor's unconfirmed incoming transfers, the products
// it holds and owns, and its currently valid certificates and practices.
func (s *Service) ActorReport(ctx context.Context, actorID string) (_ *ActorReport, err error) {
	ctx, cancel := s.deadline(ctx)
	defer cancel()
	ctx, done := s.obs.TrackOperation(ctx, "report.actor", observability.ActorOperation(actorID)...)
	defer func() { done(err) }()

	actor, err := s.src.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()

	rep := &ActorReport{Actor: actor, AsOf: now}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pending, err := s.src.PendingFor(gctx, actorID)
		rep.PendingShipments, rep.PendingSales = nonNil(pending.Shipments), nonNil(pending.Sales)
		return err
	})
	g.Go(func() error {
		inventory, err := s.src.Inventory(gctx, actorID)
		rep.Inventory = nonNil(inventory)
		return err
	})
	g.Go(func() error {
		owned, err := s.src.Ownership(gctx, actorID)
		rep.Ownership = nonNil(owned)
		return err
	})
	g.Go(func() error {
		certs, err := s.src.CertificatesValidAt(gctx, actorID, now)
		rep.Certificates = nonNil(certs)
		return err
	})
	g.Go(func() error {
		practices, err := s.src.PracticesOf(gctx, actorID)
		rep.Practices = nonNil(practices)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}

// ArchivedReport reads back the envelope archived under hash. Without an
// archive every hash is unknown.
func (s *Service) ArchivedReport(ctx context.Context, hash string) (*archive.Envelope, error) {
	if s.archive == nil {
		return nil, domain.NotFound("report", hash)
	}
	env, err := s.archive.Get(ctx, hash)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return nil, domain.NotFound("report", hash)
	case errors.Is(err, archive.ErrIncompatible):
		return nil, domain.Conflict("report", hash, err.Error())
	case err != nil:
		return nil, err
	}
	return env, nil
}

// Digest returns the "sha256:" hash of the report's canonical JSON, with
// Digest and ArchiveHash cleared.
func Digest(r *ProductReport) (string, error) {
	c := *r
	c.Digest, c.ArchiveHash = "", ""
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize report: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
