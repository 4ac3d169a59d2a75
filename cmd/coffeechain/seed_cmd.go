package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/coffeechain/pkg/config"
	"github.com/Mindburn-Labs/coffeechain/pkg/seed"
)

func runSeedCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	fixturePath := cmd.String("fixture", "", "fixture YAML (default: built-in demo)")
	coop := cmd.String("cooperative", "", "existing cooperative actor id")
	mill := cmd.String("mill", "", "existing mill actor id")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if (*coop == "") != (*mill == "") {
		_, _ = fmt.Fprintln(stderr, "Error: --cooperative and --mill must be given together")
		return 2
	}

	cfg := config.Load()
	setupLogger(cfg, stderr)
	if cfg.DBDriver == "memory" {
		_, _ = fmt.Fprintln(stderr, "Error: the memory driver is seeded on start and does not persist")
		return 2
	}
	ctx := context.Background()

	fx, err := loadFixture(*fixturePath)
	if err != nil {
		return exitOnErr(stderr, err)
	}

	b, err := openLedger(ctx, cfg)
	if err != nil {
		return exitOnErr(stderr, err)
	}
	defer b.Close()

	var res *seed.Result
	if *coop != "" {
		res, err = seed.Apply(ctx, b.store, fx, seed.Params{CooperativeID: *coop, MillID: *mill, Start: fx.Start})
	} else {
		res, err = seed.Run(ctx, b.store, fx)
	}
	if err != nil {
		return exitOnErr(stderr, err)
	}

	_, _ = fmt.Fprintf(stdout, "Seeded %d farmers, %d lots\n", len(res.Farmers), len(res.Lots))
	if res.Green != "" {
		_, _ = fmt.Fprintf(stdout, "  blend: %s\n  green: %s\n", res.Blend, res.Green)
	}
	return 0
}

func loadFixture(path string) (*seed.Fixture, error) {
	if path == "" {
		return seed.Demo()
	}
	return seed.LoadFile(path)
}
