// Package custody rebuilds the chain of physical possession of one product
// from its genesis event and the shipments that carried it.
package custody

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// Source is the part of the ledger the reconstructor reads.
type Source interface {
	Genesis(ctx context.Context, productID string) (domain.Genesis, error)
	ShipmentsContaining(ctx context.Context, productID string) ([]domain.Shipment, error)
}

// Reconstructor builds custody timelines.
type Reconstructor struct {
	src    Source
	logger *slog.Logger
}

func NewReconstructor(src Source) *Reconstructor {
	return &Reconstructor{src: src, logger: slog.Default().With("component", "custody")}
}

// Resolve returns the custody intervals of productID.
//
// The creator holds the product from genesis until the first shipment is
// confirmed. Each confirmed shipment then hands custody to its recipient
// until the next shipment's confirmation. Unconfirmed shipments hand nothing
// over, and gaps are left as they are.
func (r *Reconstructor) Resolve(ctx context.Context, productID string) ([]domain.CustodyInterval, error) {
	g, err := r.src.Genesis(ctx, productID)
	if err != nil {
		return nil, err
	}
	shipments, err := r.src.ShipmentsContaining(ctx, productID)
	if err != nil {
		return nil, err
	}

	intervals := make([]domain.CustodyInterval, 0, len(shipments)+1)
	first := domain.CustodyInterval{Actor: g.Emitter, ActorName: g.EmitterName, Start: g.Timestamp}
	if len(shipments) > 0 {
		first.End = copyTime(shipments[0].ConfirmedAt)
	}
	intervals = append(intervals, first)

	for i, s := range shipments {
		if !s.Confirmed() {
			continue
		}
		iv := domain.CustodyInterval{Actor: s.Recipient, ActorName: s.RecipientName, Start: *s.ConfirmedAt}
		if i+1 < len(shipments) {
			iv.End = copyTime(shipments[i+1].ConfirmedAt)
		}
		intervals = append(intervals, iv)
	}

	r.logger.DebugContext(ctx, "custody resolved", "product", productID, "shipments", len(shipments), "intervals", len(intervals))
	return intervals, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
