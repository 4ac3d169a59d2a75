package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// MemoryStore is a Store held in process memory. Every write is journaled
// before it is applied, so the indexes can be rebuilt from the journal alone.
type MemoryStore struct {
	mu      sync.RWMutex
	journal *Journal
	sink    func(Entry) error // persists an entry before it is applied

	actors             map[string]domain.Actor
	products           map[string]domain.Product
	transformations    map[string]domain.Transformation
	producedBy         map[string]string
	shipments          map[string]domain.Shipment
	shipmentsByProduct map[string][]string
	sales              map[string]domain.Sale
	salesByProduct     map[string][]string
	certificates       map[string][]domain.Certificate
	practices          map[string][]domain.Practice
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(NewJournal())
}

func newMemoryStore(j *Journal) *MemoryStore {
	return &MemoryStore{
		journal:            j,
		actors:             make(map[string]domain.Actor),
		products:           make(map[string]domain.Product),
		transformations:    make(map[string]domain.Transformation),
		producedBy:         make(map[string]string),
		shipments:          make(map[string]domain.Shipment),
		shipmentsByProduct: make(map[string][]string),
		sales:              make(map[string]domain.Sale),
		salesByProduct:     make(map[string][]string),
		certificates:       make(map[string][]domain.Certificate),
		practices:          make(map[string][]domain.Practice),
	}
}

// Journal exposes the hash-chained write history.
func (s *MemoryStore) Journal() *Journal { return s.journal }

// commit journals data and applies it. Caller holds s.mu.
func (s *MemoryStore) commit(kind EntryKind, data any) error {
	e, err := s.journal.Append(kind, data)
	if err != nil {
		return err
	}
	if s.sink != nil {
		if err := s.sink(e); err != nil {
			s.journal.dropHead()
			return fmt.Errorf("failed to persist %s entry: %w", kind, err)
		}
	}
	return s.apply(e)
}

// apply mutates the indexes for one journal entry. Caller holds s.mu.
func (s *MemoryStore) apply(e Entry) error {
	switch e.Kind {
	case KindActor:
		var a domain.Actor
		if err := json.Unmarshal(e.Data, &a); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		s.actors[a.ID] = a

	case KindTransformation:
		var rec transformationRecord
		if err := json.Unmarshal(e.Data, &rec); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		s.transformations[rec.Transformation.ID] = rec.Transformation
		for _, p := range rec.Products {
			s.products[p.ID] = p
			s.producedBy[p.ID] = rec.Transformation.ID
		}

	case KindShipment:
		var sh domain.Shipment
		if err := json.Unmarshal(e.Data, &sh); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		s.shipments[sh.ID] = sh
		for _, pid := range sh.Inputs {
			s.shipmentsByProduct[pid] = append(s.shipmentsByProduct[pid], sh.ID)
		}

	case KindShipmentConfirmation:
		var c confirmation
		if err := json.Unmarshal(e.Data, &c); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		sh, ok := s.shipments[c.ID]
		if !ok {
			return fmt.Errorf("entry %d: %w", e.Sequence, domain.NotFound("shipment", c.ID))
		}
		at := c.At
		sh.ConfirmedAt = &at
		s.shipments[c.ID] = sh

	case KindSale:
		var sa domain.Sale
		if err := json.Unmarshal(e.Data, &sa); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		s.sales[sa.ID] = sa
		for _, pid := range sa.Inputs {
			s.salesByProduct[pid] = append(s.salesByProduct[pid], sa.ID)
		}

	case KindSaleConfirmation:
		var c confirmation
		if err := json.Unmarshal(e.Data, &c); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		sa, ok := s.sales[c.ID]
		if !ok {
			return fmt.Errorf("entry %d: %w", e.Sequence, domain.NotFound("sale", c.ID))
		}
		at := c.At
		sa.ConfirmedAt = &at
		s.sales[c.ID] = sa

	case KindCertificate:
		var c domain.Certificate
		if err := json.Unmarshal(e.Data, &c); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		s.certificates[c.Receiver] = append(s.certificates[c.Receiver], c)

	case KindPractice:
		var p domain.Practice
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return fmt.Errorf("entry %d: %w", e.Sequence, err)
		}
		s.practices[p.Receiver] = append(s.practices[p.Receiver], p)

	default:
		return fmt.Errorf("entry %d: unknown kind %q", e.Sequence, e.Kind)
	}
	return nil
}

// memView reads the indexes without locking. Used by writes that already
// hold s.mu.
type memView struct{ s *MemoryStore }

func (v memView) Product(_ context.Context, id string) (domain.Product, error) {
	p, ok := v.s.products[id]
	if !ok {
		return domain.Product{}, domain.NotFound("product", id)
	}
	return p, nil
}

func (v memView) Actor(_ context.Context, id string) (domain.Actor, error) {
	a, ok := v.s.actors[id]
	if !ok {
		return domain.Actor{}, domain.NotFound("actor", id)
	}
	return a, nil
}

// --- Reader ---

func (s *MemoryStore) InputsOf(ctx context.Context, productID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txID, ok := s.producedBy[productID]
	if !ok {
		return nil, domain.NotFound("product", productID)
	}
	return append([]string{}, s.transformations[txID].Inputs...), nil
}

func (s *MemoryStore) Product(ctx context.Context, productID string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.Product(ctx, productID)
}

func (s *MemoryStore) Genesis(ctx context.Context, productID string) (domain.Genesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txID, ok := s.producedBy[productID]
	if !ok {
		return domain.Genesis{}, domain.NotFound("product", productID)
	}
	tx := s.transformations[txID]
	return domain.Genesis{
		TransformationID: tx.ID,
		Emitter:          tx.Emitter,
		EmitterName:      s.actors[tx.Emitter].Name,
		Timestamp:        tx.Timestamp,
	}, nil
}

func (s *MemoryStore) ShipmentsContaining(ctx context.Context, productID string) ([]domain.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.shipmentsByProduct[productID]
	out := make([]domain.Shipment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.shipments[id])
	}
	sortShipments(out)
	return out, nil
}

func (s *MemoryStore) PayoutFor(ctx context.Context, productID string) (*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first *domain.Sale
	for _, id := range s.salesByProduct[productID] {
		sa := s.sales[id]
		if first == nil || sa.Timestamp.Before(first.Timestamp) ||
			(sa.Timestamp.Equal(first.Timestamp) && sa.ID < first.ID) {
			first = &sa
		}
	}
	if first == nil {
		return nil, nil
	}
	return &domain.Payout{Amount: first.Price, Currency: first.Currency}, nil
}

func (s *MemoryStore) Actor(ctx context.Context, actorID string) (domain.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memView{s}.Actor(ctx, actorID)
}

func (s *MemoryStore) CertificatesValidAt(ctx context.Context, actorID string, ts time.Time) ([]domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return validCertificates(s.certificates[actorID], ts), nil
}

func (s *MemoryStore) PracticesOf(ctx context.Context, actorID string) ([]domain.Practice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Practice{}, s.practices[actorID]...), nil
}

// --- Directory ---

func (s *MemoryStore) Actors(ctx context.Context) ([]domain.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Actor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	sortActors(out)
	return out, nil
}

func (s *MemoryStore) PendingFor(ctx context.Context, actorID string) (Pending, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.actors[actorID]; !ok {
		return Pending{}, domain.NotFound("actor", actorID)
	}
	p := Pending{Shipments: []domain.Shipment{}, Sales: []domain.Sale{}}
	for _, sh := range s.shipments {
		if sh.Recipient == actorID && !sh.Confirmed() {
			p.Shipments = append(p.Shipments, sh)
		}
	}
	for _, sa := range s.sales {
		if sa.Buyer == actorID && sa.ConfirmedAt == nil {
			p.Sales = append(p.Sales, sa)
		}
	}
	sortShipments(p.Shipments)
	sortSales(p.Sales)
	return p, nil
}

func (s *MemoryStore) Inventory(ctx context.Context, actorID string) ([]domain.Product, error) {
	return s.holdings(actorID, func(p domain.Product) string {
		ss := make([]domain.Shipment, 0, len(s.shipmentsByProduct[p.ID]))
		for _, id := range s.shipmentsByProduct[p.ID] {
			ss = append(ss, s.shipments[id])
		}
		sortShipments(ss)
		return currentHolder(p, ss)
	})
}

func (s *MemoryStore) Ownership(ctx context.Context, actorID string) ([]domain.Product, error) {
	return s.holdings(actorID, func(p domain.Product) string {
		ss := make([]domain.Sale, 0, len(s.salesByProduct[p.ID]))
		for _, id := range s.salesByProduct[p.ID] {
			ss = append(ss, s.sales[id])
		}
		sortSales(ss)
		return currentOwner(p, ss)
	})
}

// holdings lists the unconsumed products for which party returns actorID.
// party runs under the read lock.
func (s *MemoryStore) holdings(actorID string, party func(domain.Product) string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.actors[actorID]; !ok {
		return nil, domain.NotFound("actor", actorID)
	}
	consumed := make(map[string]struct{})
	for _, tx := range s.transformations {
		for _, id := range tx.Inputs {
			consumed[id] = struct{}{}
		}
	}

	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.Type == domain.ProductWeightLoss {
			continue
		}
		if _, ok := consumed[p.ID]; ok {
			continue
		}
		if party(p) == actorID {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

// --- Writer ---

func (s *MemoryStore) RegisterActor(ctx context.Context, a domain.Actor) (domain.Actor, error) {
	a, err := planActor(a)
	if err != nil {
		return domain.Actor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.actors[a.ID]; ok {
		return domain.Actor{}, domain.Conflict("actor", a.ID, "actor already registered")
	}
	if err := s.commit(KindActor, a); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

func (s *MemoryStore) RecordTransformation(ctx context.Context, req TransformationRequest) (domain.Transformation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := planTransformation(ctx, memView{s}, req)
	if err != nil {
		return domain.Transformation{}, err
	}
	if _, ok := s.transformations[rec.Transformation.ID]; ok {
		return domain.Transformation{}, domain.Conflict("transformation", rec.Transformation.ID, "transformation already recorded")
	}
	if err := s.commit(KindTransformation, rec); err != nil {
		return domain.Transformation{}, err
	}
	return rec.Transformation, nil
}

func (s *MemoryStore) RecordShipment(ctx context.Context, sh domain.Shipment) (domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := planShipment(ctx, memView{s}, sh)
	if err != nil {
		return domain.Shipment{}, err
	}
	if _, ok := s.shipments[sh.ID]; ok {
		return domain.Shipment{}, domain.Conflict("shipment", sh.ID, "shipment already recorded")
	}
	if err := s.commit(KindShipment, sh); err != nil {
		return domain.Shipment{}, err
	}
	return sh, nil
}

func (s *MemoryStore) ConfirmShipment(ctx context.Context, shipmentID, recipient string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shipments[shipmentID]
	if !ok {
		return domain.NotFound("shipment", shipmentID)
	}
	if err := checkConfirmation("shipment", shipmentID, recipient, sh.Recipient, sh.ConfirmedAt); err != nil {
		return err
	}
	return s.commit(KindShipmentConfirmation, confirmation{ID: shipmentID, At: at.UTC()})
}

func (s *MemoryStore) RecordSale(ctx context.Context, sa domain.Sale) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa, err := planSale(ctx, memView{s}, sa)
	if err != nil {
		return domain.Sale{}, err
	}
	if _, ok := s.sales[sa.ID]; ok {
		return domain.Sale{}, domain.Conflict("sale", sa.ID, "sale already recorded")
	}
	if err := s.commit(KindSale, sa); err != nil {
		return domain.Sale{}, err
	}
	return sa, nil
}

func (s *MemoryStore) ConfirmSale(ctx context.Context, saleID, buyer string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa, ok := s.sales[saleID]
	if !ok {
		return domain.NotFound("sale", saleID)
	}
	if err := checkConfirmation("sale", saleID, buyer, sa.Buyer, sa.ConfirmedAt); err != nil {
		return err
	}
	return s.commit(KindSaleConfirmation, confirmation{ID: saleID, At: at.UTC()})
}

func (s *MemoryStore) GrantCertificate(ctx context.Context, c domain.Certificate) (domain.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := planCertificate(ctx, memView{s}, c)
	if err != nil {
		return domain.Certificate{}, err
	}
	if err := s.commit(KindCertificate, c); err != nil {
		return domain.Certificate{}, err
	}
	return c, nil
}

func (s *MemoryStore) RecordPractice(ctx context.Context, p domain.Practice) (domain.Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := planPractice(ctx, memView{s}, p)
	if err != nil {
		return domain.Practice{}, err
	}
	if err := s.commit(KindPractice, p); err != nil {
		return domain.Practice{}, err
	}
	return p, nil
}
