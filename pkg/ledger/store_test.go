package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

var t0 = time.Date(2023, 5, 1, 8, 0, 0, 0, time.UTC)

// seedChain records two farmers' lots blended by a cooperative, shipped to a
// roaster and sold. It returns the blended product id.
func seedChain(t *testing.T, s Store) string {
	t.Helper()
	ctx := context.Background()

	for _, a := range []domain.Actor{
		{ID: "farmer-1", Name: "Ana", Location: "Huila", Type: domain.ActorFarmer},
		{ID: "farmer-2", Name: "Bruno", Location: "Cauca", Type: domain.ActorFarmer},
		{ID: "coop", Name: "Coop Sur", Location: "Pitalito", Type: domain.ActorCooperative},
		{ID: "roaster", Name: "Tostadora", Location: "Bogota", Type: domain.ActorRoaster},
	} {
		_, err := s.RegisterActor(ctx, a)
		require.NoError(t, err)
	}

	_, err := s.RecordTransformation(ctx, TransformationRequest{
		ID: "t-p1", Emitter: "farmer-1", Timestamp: t0,
		Outputs: []OutputSpec{{ProductID: "P1", Weight: 1000, Type: domain.ProductWetParchment,
			Varieties: []domain.Variety{{Name: "Caturra", Amount: 1}}}},
	})
	require.NoError(t, err)
	_, err = s.RecordTransformation(ctx, TransformationRequest{
		ID: "t-p2", Emitter: "farmer-2", Timestamp: t0.Add(time.Hour),
		Outputs: []OutputSpec{{ProductID: "P2", Weight: 500, Type: domain.ProductWetParchment,
			Varieties: []domain.Variety{{Name: "Castillo", Amount: 0.5}, {Name: "Typica", Amount: 0.5}}}},
	})
	require.NoError(t, err)

	for _, pid := range []string{"P1", "P2"} {
		owner := map[string]string{"P1": "farmer-1", "P2": "farmer-2"}[pid]
		sh, err := s.RecordShipment(ctx, domain.Shipment{Sender: owner, Recipient: "coop", Timestamp: t0.Add(2 * time.Hour), Inputs: []string{pid}})
		require.NoError(t, err)
		require.NoError(t, s.ConfirmShipment(ctx, sh.ID, "coop", t0.Add(3*time.Hour)))
		_, err = s.RecordSale(ctx, domain.Sale{Seller: owner, Buyer: "coop", Price: decimal.NewFromInt(20), Currency: "usd",
			Timestamp: t0.Add(2 * time.Hour), Inputs: []string{pid}})
		require.NoError(t, err)
	}

	_, err = s.RecordTransformation(ctx, TransformationRequest{
		ID: "t-p3", Emitter: "coop", Timestamp: t0.Add(4 * time.Hour), Inputs: []string{"P1", "P2"},
		Outputs: []OutputSpec{{ProductID: "P3", Weight: 1200, Type: domain.ProductDryParchment}},
	})
	require.NoError(t, err)

	_, err = s.RecordShipment(ctx, domain.Shipment{ID: "ship-r", Sender: "coop", Recipient: "roaster",
		Timestamp: t0.Add(5 * time.Hour), Inputs: []string{"P3"}})
	require.NoError(t, err)

	_, err = s.GrantCertificate(ctx, domain.Certificate{Emitter: "coop", Receiver: "farmer-1", Type: "ORGANIC",
		Beginning: t0.AddDate(-1, 0, 0), Expiration: t0.AddDate(1, 0, 0)})
	require.NoError(t, err)
	_, err = s.GrantCertificate(ctx, domain.Certificate{Emitter: "coop", Receiver: "farmer-1", Type: "FAIRTRADE",
		Beginning: t0.AddDate(-3, 0, 0), Expiration: t0.AddDate(-2, 0, 0)})
	require.NoError(t, err)
	_, err = s.RecordPractice(ctx, domain.Practice{Emitter: "coop", Receiver: "farmer-2", Type: "SHADE_GROWN", Timestamp: t0})
	require.NoError(t, err)

	return "P3"
}

// exerciseStore checks the Reader and Directory contracts against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	p3 := seedChain(t, s)

	inputs, err := s.InputsOf(ctx, p3)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, inputs)

	inputs, err = s.InputsOf(ctx, "P1")
	require.NoError(t, err)
	assert.Empty(t, inputs)

	_, err = s.InputsOf(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p2, err := s.Product(ctx, "P2")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p2.Weight)
	assert.Equal(t, "farmer-2", p2.CreatedBy)
	assert.Equal(t, "Bruno", p2.CreatorName)
	assert.True(t, p2.CreatedAt.Equal(t0.Add(time.Hour)))
	assert.Len(t, p2.Varieties, 2)

	g, err := s.Genesis(ctx, p3)
	require.NoError(t, err)
	assert.Equal(t, "t-p3", g.TransformationID)
	assert.Equal(t, "coop", g.Emitter)
	assert.Equal(t, "Coop Sur", g.EmitterName)

	ships, err := s.ShipmentsContaining(ctx, p3)
	require.NoError(t, err)
	require.Len(t, ships, 1)
	assert.Equal(t, "ship-r", ships[0].ID)
	assert.Equal(t, "Tostadora", ships[0].RecipientName)
	assert.False(t, ships[0].Confirmed())
	assert.Equal(t, []string{"P3"}, ships[0].Inputs)

	payout, err := s.PayoutFor(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.True(t, payout.Amount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "USD", payout.Currency)

	payout, err = s.PayoutFor(ctx, p3)
	require.NoError(t, err)
	assert.Nil(t, payout)

	certs, err := s.CertificatesValidAt(ctx, "farmer-1", t0)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "ORGANIC", certs[0].Type)

	practices, err := s.PracticesOf(ctx, "farmer-2")
	require.NoError(t, err)
	require.Len(t, practices, 1)
	assert.Equal(t, "SHADE_GROWN", practices[0].Type)

	actors, err := s.Actors(ctx)
	require.NoError(t, err)
	assert.Len(t, actors, 4)
	assert.Equal(t, "Ana", actors[0].Name)

	pending, err := s.PendingFor(ctx, "roaster")
	require.NoError(t, err)
	require.Len(t, pending.Shipments, 1)
	assert.Empty(t, pending.Sales)

	pending, err = s.PendingFor(ctx, "coop")
	require.NoError(t, err)
	assert.Empty(t, pending.Shipments)
	assert.Len(t, pending.Sales, 2)

	held := func(ps []domain.Product, err error) []string {
		t.Helper()
		require.NoError(t, err)
		ids := make([]string, 0, len(ps))
		for _, p := range ps {
			ids = append(ids, p.ID)
		}
		return ids
	}
	assert.Equal(t, []string{p3}, held(s.Inventory(ctx, "coop")), "weight loss is never inventory")
	assert.Empty(t, held(s.Inventory(ctx, "roaster")), "unconfirmed shipments do not move custody")
	assert.Empty(t, held(s.Inventory(ctx, "farmer-1")), "consumed lots leave inventory")
	assert.Empty(t, held(s.Ownership(ctx, "farmer-1")))
	assert.Equal(t, []string{p3}, held(s.Ownership(ctx, "coop")))

	require.NoError(t, s.ConfirmShipment(ctx, "ship-r", "roaster", t0.Add(6*time.Hour)))
	ships, err = s.ShipmentsContaining(ctx, p3)
	require.NoError(t, err)
	require.True(t, ships[0].Confirmed())
	assert.True(t, ships[0].ConfirmedAt.Equal(t0.Add(6*time.Hour)))

	err = s.ConfirmShipment(ctx, "ship-r", "roaster", t0.Add(7*time.Hour))
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Equal(t, []string{p3}, held(s.Inventory(ctx, "roaster")))
	assert.Empty(t, held(s.Inventory(ctx, "coop")))
	assert.Equal(t, []string{p3}, held(s.Ownership(ctx, "coop")), "shipping does not transfer ownership")

	sale, err := s.RecordSale(ctx, domain.Sale{Seller: "coop", Buyer: "roaster", Price: decimal.NewFromInt(90),
		Currency: "USD", Timestamp: t0.Add(5 * time.Hour), Inputs: []string{p3}})
	require.NoError(t, err)
	assert.Equal(t, []string{p3}, held(s.Ownership(ctx, "coop")), "unconfirmed sales do not transfer ownership")
	require.NoError(t, s.ConfirmSale(ctx, sale.ID, "roaster", t0.Add(6*time.Hour)))
	assert.Equal(t, []string{p3}, held(s.Ownership(ctx, "roaster")))
	assert.Empty(t, held(s.Ownership(ctx, "coop")))

	_, err = s.Inventory(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Ownership(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_WeightLossOutput(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedChain(t, s)

	tx, err := s.RecordTransformation(ctx, TransformationRequest{
		Emitter: "coop", Timestamp: t0.Add(8 * time.Hour), Inputs: []string{"P3"},
		Outputs: []OutputSpec{{ProductID: "G1", Weight: 1000, Type: domain.ProductGreen}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID)
	require.Len(t, tx.Outputs, 2)
	assert.Equal(t, "G1", tx.Outputs[0])

	loss, err := s.Product(ctx, tx.Outputs[1])
	require.NoError(t, err)
	assert.Equal(t, domain.ProductWeightLoss, loss.Type)
	assert.Equal(t, int64(200), loss.Weight)

	inputs, err := s.InputsOf(ctx, loss.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"P3"}, inputs)
}

func TestMemoryStore_WriteShapeErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedChain(t, s)

	tests := []struct {
		name string
		req  TransformationRequest
		kind error
	}{
		{"unknown emitter", TransformationRequest{Emitter: "ghost", Outputs: []OutputSpec{{Weight: 1, Type: domain.ProductGreen}}}, domain.ErrNotFound},
		{"no outputs", TransformationRequest{Emitter: "coop", Inputs: []string{"P3"}}, domain.ErrInvalid},
		{"heavier outputs", TransformationRequest{Emitter: "coop", Inputs: []string{"P3"},
			Outputs: []OutputSpec{{Weight: 5000, Type: domain.ProductGreen}}}, domain.ErrInvalid},
		{"unknown input", TransformationRequest{Emitter: "coop", Inputs: []string{"nope"},
			Outputs: []OutputSpec{{Weight: 1, Type: domain.ProductGreen}}}, domain.ErrNotFound},
		{"reused product id", TransformationRequest{Emitter: "farmer-1",
			Outputs: []OutputSpec{{ProductID: "P1", Weight: 1, Type: domain.ProductWetParchment}}}, domain.ErrConflict},
		{"zero weight", TransformationRequest{Emitter: "farmer-1",
			Outputs: []OutputSpec{{Weight: 0, Type: domain.ProductWetParchment}}}, domain.ErrInvalid},
		{"duplicate input", TransformationRequest{Emitter: "coop", Inputs: []string{"P3", "P3"},
			Outputs: []OutputSpec{{Weight: 1, Type: domain.ProductGreen}}}, domain.ErrInvalid},
		{"negative variety amount", TransformationRequest{Emitter: "farmer-1",
			Outputs: []OutputSpec{{Weight: 10, Type: domain.ProductWetParchment, Varieties: []domain.Variety{
				{Name: "X", Amount: 1}, {Name: "Y", Amount: 1}, {Name: "Z", Amount: -0.5}}}}}, domain.ErrInvalid},
		{"variety amount above one", TransformationRequest{Emitter: "farmer-1",
			Outputs: []OutputSpec{{Weight: 10, Type: domain.ProductWetParchment, Varieties: []domain.Variety{
				{Name: "X", Amount: 1.5}}}}}, domain.ErrInvalid},
		{"variety amounts over one", TransformationRequest{Emitter: "farmer-1",
			Outputs: []OutputSpec{{Weight: 10, Type: domain.ProductWetParchment, Varieties: []domain.Variety{
				{Name: "X", Amount: 0.6}, {Name: "Y", Amount: 0.6}}}}}, domain.ErrInvalid},
		{"unnamed variety", TransformationRequest{Emitter: "farmer-1",
			Outputs: []OutputSpec{{Weight: 10, Type: domain.ProductWetParchment, Varieties: []domain.Variety{
				{Name: " ", Amount: 0.5}}}}}, domain.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Journal().Len()
			_, err := s.RecordTransformation(ctx, tt.req)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, before, s.Journal().Len(), "rejected writes are not journaled")
		})
	}

	_, err := s.RecordShipment(ctx, domain.Shipment{Sender: "coop", Recipient: "coop", Inputs: []string{"P3"}})
	assert.ErrorIs(t, err, domain.ErrInvalid)

	err = s.ConfirmShipment(ctx, "ship-r", "coop", t0)
	assert.ErrorIs(t, err, domain.ErrNotFound, "only the recipient can confirm")

	_, err = s.RegisterActor(ctx, domain.Actor{ID: "coop", Name: "Again", Type: domain.ActorCooperative})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestMemoryStore_VarietySplitsAcceptRounding(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedChain(t, s)

	_, err := s.RecordTransformation(ctx, TransformationRequest{Emitter: "farmer-1", Timestamp: t0,
		Outputs: []OutputSpec{{ProductID: "P9", Weight: 10, Type: domain.ProductWetParchment, Varieties: []domain.Variety{
			{Name: "X", Amount: 0.7}, {Name: "Y", Amount: 0.2}, {Name: "Z", Amount: 0.1}}}}})
	require.NoError(t, err)
}

func TestMemoryStore_JournalRecordsEveryWrite(t *testing.T) {
	s := NewMemoryStore()
	seedChain(t, s)
	require.NoError(t, s.Journal().Verify())

	// 4 actors, 3 transformations, 3 shipments, 2 confirmations, 2 sales,
	// 2 certificates, 1 practice.
	assert.Equal(t, 17, s.Journal().Len())
}
