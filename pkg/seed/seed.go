package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
	"github.com/Mindburn-Labs/coffeechain/pkg/ledger"
)

// Params are the hub actors every farmer lot flows through.
type Params struct {
	CooperativeID string
	MillID        string
	Start         time.Time
}

// Result lists what a seeding run recorded.
type Result struct {
	Params   Params
	Farmers  []string
	Lots     []string
	Blend    string
	Green    string
	Shipment string // blend shipment to the mill
}

// step is the spacing between seeded events.
const step = time.Hour

// Run registers the fixture's cooperative and mill, then applies the rest of
// the fixture against their ids.
func Run(ctx context.Context, w ledger.Writer, fx *Fixture) (*Result, error) {
	coop, err := register(ctx, w, fx.Cooperative, domain.ActorCooperative)
	if err != nil {
		return nil, fmt.Errorf("register cooperative: %w", err)
	}
	mill, err := register(ctx, w, fx.Mill, domain.ActorDryMill)
	if err != nil {
		return nil, fmt.Errorf("register mill: %w", err)
	}
	return Apply(ctx, w, fx, Params{CooperativeID: coop.ID, MillID: mill.ID, Start: fx.Start})
}

// Apply records the fixture's farmers and processing against hub actors that
// already exist. Each farmer's harvest is created, shipped to and bought by
// the cooperative, and credentialed. When Processing is set the cooperative
// blends every lot and ships the blend to the mill, which hulls it to green.
func Apply(ctx context.Context, w ledger.Writer, fx *Fixture, p Params) (*Result, error) {
	if p.CooperativeID == "" || p.MillID == "" {
		return nil, fmt.Errorf("seed: cooperative and mill ids are required")
	}
	if p.Start.IsZero() {
		p.Start = time.Now().UTC().Truncate(time.Second)
	}
	logger := slog.Default().With("component", "seed")
	res := &Result{Params: p}

	for i, f := range fx.Farmers {
		at := p.Start.Add(time.Duration(i) * 4 * step)
		farmerID, lot, err := seedFarmer(ctx, w, f, p, at)
		if err != nil {
			return nil, fmt.Errorf("seed farmer %q: %w", f.Name, err)
		}
		res.Farmers = append(res.Farmers, farmerID)
		res.Lots = append(res.Lots, lot)
	}

	if fx.Processing != nil {
		at := p.Start.Add(time.Duration(len(fx.Farmers)) * 4 * step)
		if err := process(ctx, w, *fx.Processing, res, at); err != nil {
			return nil, err
		}
	}

	logger.InfoContext(ctx, "ledger seeded",
		"cooperative", p.CooperativeID,
		"mill", p.MillID,
		"farmers", len(res.Farmers),
		"blend", res.Blend,
	)
	return res, nil
}

func register(ctx context.Context, w ledger.Writer, a ActorSpec, t domain.ActorType) (domain.Actor, error) {
	return w.RegisterActor(ctx, domain.Actor{
		ID:       a.ID,
		Name:     a.Name,
		Location: a.Location,
		PlusCode: a.PlusCode,
		Type:     t,
		Info:     a.Info,
	})
}

func seedFarmer(ctx context.Context, w ledger.Writer, f Farmer, p Params, at time.Time) (string, string, error) {
	farmer, err := register(ctx, w, f.ActorSpec, domain.ActorFarmer)
	if err != nil {
		return "", "", err
	}

	h := f.Harvest
	if _, err := w.RecordTransformation(ctx, ledger.TransformationRequest{
		Emitter:   farmer.ID,
		Timestamp: at,
		Outputs: []ledger.OutputSpec{{
			ProductID: h.ProductID,
			Weight:    h.Weight,
			Type:      domain.ProductWetParchment,
			Varieties: h.Varieties,
		}},
	}); err != nil {
		return "", "", err
	}

	sh, err := w.RecordShipment(ctx, domain.Shipment{
		Sender:    farmer.ID,
		Recipient: p.CooperativeID,
		Timestamp: at.Add(step),
		Inputs:    []string{h.ProductID},
	})
	if err != nil {
		return "", "", err
	}
	if err := w.ConfirmShipment(ctx, sh.ID, p.CooperativeID, at.Add(2*step)); err != nil {
		return "", "", err
	}

	sale, err := w.RecordSale(ctx, domain.Sale{
		Seller:    farmer.ID,
		Buyer:     p.CooperativeID,
		Price:     h.Price,
		Currency:  h.Currency,
		Timestamp: at.Add(step),
		Inputs:    []string{h.ProductID},
	})
	if err != nil {
		return "", "", err
	}
	if err := w.ConfirmSale(ctx, sale.ID, p.CooperativeID, at.Add(2*step)); err != nil {
		return "", "", err
	}

	// Certificates run one year either side of the harvest.
	for _, c := range f.Certificates {
		if _, err := w.GrantCertificate(ctx, domain.Certificate{
			Emitter:    p.CooperativeID,
			Receiver:   farmer.ID,
			Type:       c,
			Beginning:  at.AddDate(-1, 0, 0),
			Expiration: at.AddDate(1, 0, 0),
		}); err != nil {
			return "", "", err
		}
	}
	for _, pr := range f.Practices {
		if _, err := w.RecordPractice(ctx, domain.Practice{
			Emitter:   p.CooperativeID,
			Receiver:  farmer.ID,
			Type:      pr,
			Timestamp: at,
		}); err != nil {
			return "", "", err
		}
	}
	return farmer.ID, h.ProductID, nil
}

func process(ctx context.Context, w ledger.Writer, pr Processing, res *Result, at time.Time) error {
	p := res.Params
	if _, err := w.RecordTransformation(ctx, ledger.TransformationRequest{
		Emitter:   p.CooperativeID,
		Timestamp: at,
		Inputs:    res.Lots,
		Outputs:   []ledger.OutputSpec{{ProductID: pr.BlendID, Weight: pr.BlendWeight, Type: domain.ProductDryParchment}},
	}); err != nil {
		return fmt.Errorf("blend lots: %w", err)
	}
	res.Blend = pr.BlendID

	sh, err := w.RecordShipment(ctx, domain.Shipment{
		Sender:    p.CooperativeID,
		Recipient: p.MillID,
		Timestamp: at.Add(step),
		Inputs:    []string{pr.BlendID},
	})
	if err != nil {
		return fmt.Errorf("ship blend: %w", err)
	}
	if err := w.ConfirmShipment(ctx, sh.ID, p.MillID, at.Add(2*step)); err != nil {
		return fmt.Errorf("confirm blend shipment: %w", err)
	}
	res.Shipment = sh.ID

	if _, err := w.RecordTransformation(ctx, ledger.TransformationRequest{
		Emitter:   p.MillID,
		Timestamp: at.Add(3 * step),
		Inputs:    []string{pr.BlendID},
		Outputs:   []ledger.OutputSpec{{ProductID: pr.GreenID, Weight: pr.GreenWeight, Type: domain.ProductGreen}},
	}); err != nil {
		return fmt.Errorf("hull blend: %w", err)
	}
	res.Green = pr.GreenID
	return nil
}
