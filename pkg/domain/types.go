// Package domain holds the coffee supply-chain entities shared by the ledger
// store and the provenance engine. Persisted entities are immutable once
// recorded; confirmations are the only facts appended to an existing record.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType classifies a product by processing stage.
type ProductType string

const (
	ProductWetParchment ProductType = "WET_PARCHMENT"
	ProductDryParchment ProductType = "DRY_PARCHMENT"
	ProductGreen        ProductType = "GREEN"
	ProductRoasted      ProductType = "ROASTED"
	ProductWeightLoss   ProductType = "WEIGHT_LOSS"
)

// Valid reports whether t is a known product type.
func (t ProductType) Valid() bool {
	switch t {
	case ProductWetParchment, ProductDryParchment, ProductGreen, ProductRoasted, ProductWeightLoss:
		return true
	}
	return false
}

// ActorType classifies a supply-chain participant.
type ActorType string

const (
	ActorFarmer          ActorType = "FARMER"
	ActorCooperative     ActorType = "COOPERATIVE"
	ActorDryMill         ActorType = "DRY_MILL"
	ActorRoaster         ActorType = "ROASTER"
	ActorImporter        ActorType = "IMPORTER"
	ActorExporter        ActorType = "EXPORTER"
	ActorPurchasingPoint ActorType = "PURCHASING_POINT"
)

// Valid reports whether t is a known actor type.
func (t ActorType) Valid() bool {
	switch t {
	case ActorFarmer, ActorCooperative, ActorDryMill, ActorRoaster, ActorImporter, ActorExporter, ActorPurchasingPoint:
		return true
	}
	return false
}

// Variety is one entry of a product's crop-variety composition.
// Amount is a fraction of the product, not an absolute mass.
type Variety struct {
	Name   string  `json:"name" yaml:"name"`
	Amount float64 `json:"amount" yaml:"amount"`
}

// Product is a physical lot of coffee. Weight is in grams.
type Product struct {
	ID          string      `json:"id"`
	Weight      int64       `json:"weight"`
	Type        ProductType `json:"type"`
	Varieties   []Variety   `json:"varieties,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	CreatedBy   string      `json:"created_by"`
	CreatorName string      `json:"creator_name,omitempty"`
}

// Transformation consumes input products and emits output products.
// An empty Inputs slice marks the initial creation of the outputs.
type Transformation struct {
	ID        string    `json:"id"`
	Emitter   string    `json:"emitter"`
	Timestamp time.Time `json:"timestamp"`
	Inputs    []string  `json:"inputs"`
	Outputs   []string  `json:"outputs"`
}

// Genesis is the event that produced one exact product id.
type Genesis struct {
	TransformationID string    `json:"transformation_id"`
	Emitter          string    `json:"emitter"`
	EmitterName      string    `json:"emitter_name,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Shipment moves physical custody. ConfirmedAt is nil while pending.
type Shipment struct {
	ID            string     `json:"id"`
	Sender        string     `json:"sender"`
	Recipient     string     `json:"recipient"`
	RecipientName string     `json:"recipient_name,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	Inputs        []string   `json:"inputs"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

// Confirmed reports whether the recipient acknowledged the shipment.
func (s Shipment) Confirmed() bool { return s.ConfirmedAt != nil }

// Sale moves legal ownership. ConfirmedAt is nil while pending.
type Sale struct {
	ID          string          `json:"id"`
	Seller      string          `json:"seller"`
	Buyer       string          `json:"buyer"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
	Inputs      []string        `json:"inputs"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// Payout is the amount paid against a single product.
type Payout struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Actor is a supply-chain participant. Info carries optional structured
// details such as farm area or variety holdings.
type Actor struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Location string         `json:"location"`
	PlusCode string         `json:"pluscode,omitempty"`
	Type     ActorType      `json:"type"`
	Info     map[string]any `json:"info,omitempty"`
}

// Certificate is a time-scoped credential granted to Receiver by Emitter.
type Certificate struct {
	ID         string    `json:"id"`
	Emitter    string    `json:"emitter"`
	Receiver   string    `json:"receiver"`
	Type       string    `json:"type"`
	Beginning  time.Time `json:"beginning"`
	Expiration time.Time `json:"expiration"`
}

// ValidAt reports whether ts falls inside [Beginning, Expiration].
func (c Certificate) ValidAt(ts time.Time) bool {
	return !ts.Before(c.Beginning) && !ts.After(c.Expiration)
}

// Practice is an all-time credential (not time-scoped).
type Practice struct {
	ID        string    `json:"id"`
	Emitter   string    `json:"emitter"`
	Receiver  string    `json:"receiver"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Ancestor is an original (non-derived) product contributing to a queried
// product. Fraction accumulates over every path that reaches it.
type Ancestor struct {
	ProductID   string      `json:"id"`
	Fraction    float64     `json:"fraction"`
	Type        ProductType `json:"type"`
	Varieties   []Variety   `json:"varieties,omitempty"`
	Emitter     string      `json:"emitter"`
	EmitterName string      `json:"emitter_name,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// CustodyInterval is one holder's possession window. A nil End means the
// actor is the current holder.
type CustodyInterval struct {
	Actor     string     `json:"actor"`
	ActorName string     `json:"actor_name,omitempty"`
	Start     time.Time  `json:"start"`
	End       *time.Time `json:"end"`
}
