package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/coffeechain/pkg/config"
	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

// runReportCmd prints the JSON report for a product, or for an actor with
// --actor.
//
// Exit codes:
//
//	0 = report printed
//	1 = runtime error
//	2 = usage error
//	3 = unknown product or actor
func runReportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("report", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	actor := cmd.Bool("actor", false, "treat the id as an actor id")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: coffeechain report [--actor] <id>")
		return 2
	}
	id := cmd.Arg(0)

	cfg := config.Load()
	setupLogger(cfg, stderr)
	ctx := context.Background()

	b, err := openLedger(ctx, cfg)
	if err != nil {
		return exitOnErr(stderr, err)
	}
	defer b.Close()

	svc, shutdown, err := newService(ctx, cfg, b)
	if err != nil {
		return exitOnErr(stderr, err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var out any
	if *actor {
		out, err = svc.ActorReport(ctx, id)
	} else {
		out, err = svc.ProductReport(ctx, id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 3
		}
		return exitOnErr(stderr, err)
	}
	if err := writeJSON(stdout, out); err != nil {
		return exitOnErr(stderr, err)
	}
	return 0
}
