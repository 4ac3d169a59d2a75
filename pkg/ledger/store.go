package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// Reader is the read-only surface the provenance engine consumes.
// Every lookup of an unknown id returns a *domain.Error of kind ErrNotFound.
type Reader interface {
	// InputsOf returns the products consumed by the transformation that
	// produced productID. Empty for initially created products.
	InputsOf(ctx context.Context, productID string) ([]string, error)

	// Product returns the product with its creator and creation time.
	Product(ctx context.Context, productID string) (domain.Product, error)

	// Genesis returns the transformation that produced productID.
	Genesis(ctx context.Context, productID string) (domain.Genesis, error)

	// ShipmentsContaining returns every shipment carrying productID,
	// ordered by shipment timestamp ascending.
	ShipmentsContaining(ctx context.Context, productID string) ([]domain.Shipment, error)

	// PayoutFor returns the price of the earliest sale carrying productID,
	// or nil when the product was never sold.
	PayoutFor(ctx context.Context, productID string) (*domain.Payout, error)

	Actor(ctx context.Context, actorID string) (domain.Actor, error)

	// CertificatesValidAt returns the actor's certificates whose validity
	// window contains ts (both bounds inclusive).
	CertificatesValidAt(ctx context.Context, actorID string, ts time.Time) ([]domain.Certificate, error)

	// PracticesOf returns every practice granted to the actor.
	PracticesOf(ctx context.Context, actorID string) ([]domain.Practice, error)
}

// Writer appends records. Ids left empty are generated.
type Writer interface {
	RegisterActor(ctx context.Context, a domain.Actor) (domain.Actor, error)
	RecordTransformation(ctx context.Context, req TransformationRequest) (domain.Transformation, error)
	RecordShipment(ctx context.Context, s domain.Shipment) (domain.Shipment, error)
	ConfirmShipment(ctx context.Context, shipmentID, recipient string, at time.Time) error
	RecordSale(ctx context.Context, s domain.Sale) (domain.Sale, error)
	ConfirmSale(ctx context.Context, saleID, buyer string, at time.Time) error
	GrantCertificate(ctx context.Context, c domain.Certificate) (domain.Certificate, error)
	RecordPractice(ctx context.Context, p domain.Practice) (domain.Practice, error)
}

// Directory serves actor-centric scans. Inventory and Ownership only list
// products no transformation has consumed yet, and never WEIGHT_LOSS
// products.
type Directory interface {
	Actors(ctx context.Context) ([]domain.Actor, error)
	PendingFor(ctx context.Context, actorID string) (Pending, error)

	// Inventory lists the products the actor physically holds: it received
	// them in the latest confirmed shipment carrying them, or created them
	// and no shipment of them has been confirmed.
	Inventory(ctx context.Context, actorID string) ([]domain.Product, error)

	// Ownership lists the products the actor owns: it is the buyer of the
	// latest confirmed sale carrying them, or created them and no sale of
	// them has been confirmed.
	Ownership(ctx context.Context, actorID string) ([]domain.Product, error)
}

// Store is a complete ledger backend.
type Store interface {
	Reader
	Writer
	Directory
}

// Pending lists the unconfirmed transfers addressed to one actor.
type Pending struct {
	Shipments []domain.Shipment `json:"shipments"`
	Sales     []domain.Sale     `json:"sales"`
}

func sortActors(as []domain.Actor) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].Name != as[j].Name {
			return as[i].Name < as[j].Name
		}
		return as[i].ID < as[j].ID
	})
}

// sortShipments orders by timestamp, breaking ties by id so every backend
// returns the same sequence.
func sortShipments(ss []domain.Shipment) {
	sort.SliceStable(ss, func(i, j int) bool {
		if !ss[i].Timestamp.Equal(ss[j].Timestamp) {
			return ss[i].Timestamp.Before(ss[j].Timestamp)
		}
		return ss[i].ID < ss[j].ID
	})
}

func sortSales(ss []domain.Sale) {
	sort.SliceStable(ss, func(i, j int) bool {
		if !ss[i].Timestamp.Equal(ss[j].Timestamp) {
			return ss[i].Timestamp.Before(ss[j].Timestamp)
		}
		return ss[i].ID < ss[j].ID
	})
}

// currentHolder returns the recipient of the last confirmed shipment in ss,
// which must be sorted, or the product's creator.
func currentHolder(p domain.Product, ss []domain.Shipment) string {
	holder := p.CreatedBy
	for _, sh := range ss {
		if sh.Confirmed() {
			holder = sh.Recipient
		}
	}
	return holder
}

// currentOwner returns the buyer of the last confirmed sale in ss, which must
// be sorted, or the product's creator.
func currentOwner(p domain.Product, ss []domain.Sale) string {
	owner := p.CreatedBy
	for _, sa := range ss {
		if sa.ConfirmedAt != nil {
			owner = sa.Buyer
		}
	}
	return owner
}

func sortProducts(ps []domain.Product) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

func validCertificates(certs []domain.Certificate, ts time.Time) []domain.Certificate {
	out := make([]domain.Certificate, 0, len(certs))
	for _, c := range certs {
		if c.ValidAt(ts) {
			out = append(out, c)
		}
	}
	return out
}
