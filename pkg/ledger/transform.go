package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// OutputSpec describes one product emitted by a transformation.
type OutputSpec struct {
	ProductID string             `json:"product_id" yaml:"product_id"`
	Weight    int64              `json:"weight" yaml:"weight"`
	Type      domain.ProductType `json:"type" yaml:"type"`
	Varieties []domain.Variety   `json:"varieties,omitempty" yaml:"varieties,omitempty"`
}

// TransformationRequest is the write-side shape of a transformation.
// An empty Inputs slice creates the outputs from nothing.
type TransformationRequest struct {
	ID        string       `json:"id,omitempty"`
	Emitter   string       `json:"emitter"`
	Timestamp time.Time    `json:"timestamp"`
	Inputs    []string     `json:"inputs"`
	Outputs   []OutputSpec `json:"outputs"`
}

// transformationRecord is the journal payload of a transformation: the event
// plus every product it created.
type transformationRecord struct {
	Transformation domain.Transformation `json:"transformation"`
	Products       []domain.Product      `json:"products"`
}

type confirmation struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// lookup is the subset of Reader the write path validates against. Backends
// pass a view that is consistent with the pending write.
type lookup interface {
	Product(ctx context.Context, productID string) (domain.Product, error)
	Actor(ctx context.Context, actorID string) (domain.Actor, error)
}

func newID() string { return uuid.NewString() }

func planActor(a domain.Actor) (domain.Actor, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	if strings.TrimSpace(a.Name) == "" {
		return domain.Actor{}, domain.Invalid("actor", a.ID, "name is required")
	}
	if !a.Type.Valid() {
		return domain.Actor{}, domain.Invalid("actor", a.ID, fmt.Sprintf("unknown actor type %q", a.Type))
	}
	return a, nil
}

// planTransformation checks the shape of req and builds the records it
// produces. When inputs outweigh outputs the difference is appended as a
// WEIGHT_LOSS output so mass is conserved across the event.
func planTransformation(ctx context.Context, lk lookup, req TransformationRequest) (transformationRecord, error) {
	if req.ID == "" {
		req.ID = newID()
	}
	emitter, err := lk.Actor(ctx, req.Emitter)
	if err != nil {
		return transformationRecord{}, err
	}
	if len(req.Outputs) == 0 {
		return transformationRecord{}, domain.Invalid("transformation", req.ID, "transformations must have outputs")
	}
	if err := distinct("transformation", req.ID, "input", req.Inputs); err != nil {
		return transformationRecord{}, err
	}

	var inWeight int64
	for _, id := range req.Inputs {
		p, err := lk.Product(ctx, id)
		if err != nil {
			return transformationRecord{}, err
		}
		if p.Type == domain.ProductWeightLoss {
			return transformationRecord{}, domain.Invalid("transformation", req.ID, "cannot consume a weight loss product")
		}
		inWeight += p.Weight
	}

	outputs := append([]OutputSpec(nil), req.Outputs...)
	var outWeight int64
	outIDs := make([]string, 0, len(outputs)+1)
	for i := range outputs {
		if outputs[i].ProductID == "" {
			outputs[i].ProductID = newID()
		}
		o := outputs[i]
		if !o.Type.Valid() {
			return transformationRecord{}, domain.Invalid("product", o.ProductID, fmt.Sprintf("unknown product type %q", o.Type))
		}
		if o.Weight <= 0 {
			return transformationRecord{}, domain.Invalid("product", o.ProductID, "cannot produce weightless products")
		}
		if err := checkVarieties(o.ProductID, o.Varieties); err != nil {
			return transformationRecord{}, err
		}
		outWeight += o.Weight
		outIDs = append(outIDs, o.ProductID)
	}
	if err := distinct("transformation", req.ID, "output", outIDs); err != nil {
		return transformationRecord{}, err
	}

	if len(req.Inputs) > 0 && inWeight != outWeight {
		if outWeight > inWeight {
			return transformationRecord{}, domain.Invalid("transformation", req.ID,
				fmt.Sprintf("outputs weigh %dg, inputs only %dg", outWeight, inWeight))
		}
		for _, o := range outputs {
			if o.Type == domain.ProductWeightLoss {
				return transformationRecord{}, domain.Invalid("transformation", req.ID, "explicit weight loss output does not balance inputs")
			}
		}
		loss := OutputSpec{ProductID: newID(), Weight: inWeight - outWeight, Type: domain.ProductWeightLoss}
		outputs = append(outputs, loss)
		outIDs = append(outIDs, loss.ProductID)
	}

	for _, id := range outIDs {
		_, err := lk.Product(ctx, id)
		switch {
		case err == nil:
			return transformationRecord{}, domain.Conflict("product", id, "product id already in use")
		case !errors.Is(err, domain.ErrNotFound):
			return transformationRecord{}, err
		}
	}

	ts := req.Timestamp.UTC()
	rec := transformationRecord{
		Transformation: domain.Transformation{
			ID:        req.ID,
			Emitter:   emitter.ID,
			Timestamp: ts,
			Inputs:    append([]string{}, req.Inputs...),
			Outputs:   outIDs,
		},
		Products: make([]domain.Product, 0, len(outputs)),
	}
	for _, o := range outputs {
		rec.Products = append(rec.Products, domain.Product{
			ID:          o.ProductID,
			Weight:      o.Weight,
			Type:        o.Type,
			Varieties:   o.Varieties,
			CreatedAt:   ts,
			CreatedBy:   emitter.ID,
			CreatorName: emitter.Name,
		})
	}
	return rec, nil
}

// varietySlack absorbs float rounding in fixtures like 0.7 + 0.2 + 0.1.
const varietySlack = 1e-9

// checkVarieties requires every amount in [0, 1] and the amounts of one
// product to sum to at most 1.
func checkVarieties(productID string, vs []domain.Variety) error {
	var sum float64
	for _, v := range vs {
		if strings.TrimSpace(v.Name) == "" {
			return domain.Invalid("product", productID, "variety name is required")
		}
		if math.IsNaN(v.Amount) || v.Amount < 0 || v.Amount > 1 {
			return domain.Invalid("product", productID, fmt.Sprintf("variety %s amount %v is outside [0, 1]", v.Name, v.Amount))
		}
		sum += v.Amount
	}
	if sum > 1+varietySlack {
		return domain.Invalid("product", productID, fmt.Sprintf("variety amounts sum to %v, more than 1", sum))
	}
	return nil
}

func planShipment(ctx context.Context, lk lookup, s domain.Shipment) (domain.Shipment, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	if s.Sender == s.Recipient {
		return domain.Shipment{}, domain.Invalid("shipment", s.ID, "sender and recipient must be different")
	}
	if _, err := lk.Actor(ctx, s.Sender); err != nil {
		return domain.Shipment{}, err
	}
	recipient, err := lk.Actor(ctx, s.Recipient)
	if err != nil {
		return domain.Shipment{}, err
	}
	if err := checkInputs(ctx, lk, "shipment", s.ID, s.Inputs); err != nil {
		return domain.Shipment{}, err
	}
	s.RecipientName = recipient.Name
	s.Timestamp = s.Timestamp.UTC()
	s.ConfirmedAt = nil
	return s, nil
}

func planSale(ctx context.Context, lk lookup, s domain.Sale) (domain.Sale, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	if _, err := lk.Actor(ctx, s.Seller); err != nil {
		return domain.Sale{}, err
	}
	if _, err := lk.Actor(ctx, s.Buyer); err != nil {
		return domain.Sale{}, err
	}
	if s.Price.IsNegative() {
		return domain.Sale{}, domain.Invalid("sale", s.ID, "price must not be negative")
	}
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if s.Currency == "" {
		return domain.Sale{}, domain.Invalid("sale", s.ID, "currency is required")
	}
	if err := checkInputs(ctx, lk, "sale", s.ID, s.Inputs); err != nil {
		return domain.Sale{}, err
	}
	s.Timestamp = s.Timestamp.UTC()
	s.ConfirmedAt = nil
	return s, nil
}

func planCertificate(ctx context.Context, lk lookup, c domain.Certificate) (domain.Certificate, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, err := lk.Actor(ctx, c.Emitter); err != nil {
		return domain.Certificate{}, err
	}
	if _, err := lk.Actor(ctx, c.Receiver); err != nil {
		return domain.Certificate{}, err
	}
	if !c.Beginning.Before(c.Expiration) {
		return domain.Certificate{}, domain.Invalid("certificate", c.ID, "invalid date range")
	}
	c.Beginning = c.Beginning.UTC()
	c.Expiration = c.Expiration.UTC()
	return c, nil
}

func planPractice(ctx context.Context, lk lookup, p domain.Practice) (domain.Practice, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, err := lk.Actor(ctx, p.Emitter); err != nil {
		return domain.Practice{}, err
	}
	if _, err := lk.Actor(ctx, p.Receiver); err != nil {
		return domain.Practice{}, err
	}
	p.Timestamp = p.Timestamp.UTC()
	return p, nil
}

// checkConfirmation validates a confirmation by party against a transfer
// addressed to want. A transfer addressed to someone else is reported as
// not found.
func checkConfirmation(entity, id, party, want string, confirmedAt *time.Time) error {
	if party != want {
		return domain.NotFound(entity, id)
	}
	if confirmedAt != nil {
		return domain.Conflict(entity, id, "already confirmed")
	}
	return nil
}

func checkInputs(ctx context.Context, lk lookup, entity, id string, inputs []string) error {
	if len(inputs) == 0 {
		return domain.Invalid(entity, id, "inputs are required")
	}
	if err := distinct(entity, id, "input", inputs); err != nil {
		return err
	}
	for _, pid := range inputs {
		if _, err := lk.Product(ctx, pid); err != nil {
			return err
		}
	}
	return nil
}

func distinct(entity, id, role string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			return domain.Invalid(entity, id, fmt.Sprintf("duplicated %s id %s", role, v))
		}
		seen[v] = struct{}{}
	}
	return nil
}
