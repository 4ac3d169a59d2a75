// Package seed loads supply-chain fixtures into a ledger. A fixture lists
// farmers with their harvests; seeding ships every lot to one cooperative,
// blends them there, and sends the blend to one dry mill for hulling.
package seed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

//go:embed fixture.schema.json
var fixtureSchema string

//go:embed demo.yaml
var demoFixture []byte

const schemaURL = "https://coffeechain.schemas.local/seed/fixture.schema.json"

var compiledSchema = mustCompile()

// Fixture describes a seeding scenario.
type Fixture struct {
	Start       time.Time   `json:"start"`
	Cooperative ActorSpec   `json:"cooperative"`
	Mill        ActorSpec   `json:"mill"`
	Farmers     []Farmer    `json:"farmers"`
	Processing  *Processing `json:"processing,omitempty"`
}

// ActorSpec is an actor to register. An empty ID is generated.
type ActorSpec struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Location string         `json:"location"`
	PlusCode string         `json:"pluscode,omitempty"`
	Info     map[string]any `json:"info,omitempty"`
}

// Farmer is a producer with one harvest lot.
type Farmer struct {
	ActorSpec
	Harvest      Harvest  `json:"harvest"`
	Certificates []string `json:"certificates,omitempty"`
	Practices    []string `json:"practices,omitempty"`
}

// Harvest is a farmer's initial lot and what the cooperative paid for it.
type Harvest struct {
	ProductID string           `json:"product_id"`
	Weight    int64            `json:"weight"`
	Varieties []domain.Variety `json:"varieties,omitempty"`
	Price     decimal.Decimal  `json:"price"`
	Currency  string           `json:"currency"`
}

// Processing names the products made downstream of the harvests.
type Processing struct {
	BlendID     string `json:"blend_id"`
	BlendWeight int64  `json:"blend_weight"`
	GreenID     string `json:"green_id"`
	GreenWeight int64  `json:"green_weight"`
}

// Demo returns the bundled demo scenario.
func Demo() (*Fixture, error) {
	return Load(bytes.NewReader(demoFixture))
}

// LoadFile reads a YAML fixture from disk.
func LoadFile(path string) (*Fixture, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied fixture path
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Load parses a YAML fixture and validates it against the fixture schema.
func Load(r io.Reader) (*Fixture, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	// The schema validator and the struct decoder both work on JSON.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode fixture: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}

	var fx Fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	for i := range fx.Farmers {
		fx.Farmers[i].Harvest.Currency = strings.ToUpper(fx.Farmers[i].Harvest.Currency)
	}
	return &fx, nil
}

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(fixtureSchema)); err != nil {
		panic(fmt.Sprintf("seed schema load failed: %v", err))
	}
	return c.MustCompile(schemaURL)
}
