package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/coffeechain/pkg/config"
	"github.com/Mindburn-Labs/coffeechain/pkg/ledger"
)

// runMigrateCmd creates the ledger schema. With --reset every table is dropped
// first and the record cache is flushed.
func runMigrateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	reset := cmd.Bool("reset", false, "drop all ledger data first")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	logger := setupLogger(cfg, stderr)
	ctx := context.Background()

	switch cfg.DBDriver {
	case "memory":
		_, _ = fmt.Fprintln(stdout, "memory driver: nothing to migrate")
		return 0
	case "file":
		if *reset {
			if err := os.Remove(cfg.DatabaseURL); err != nil && !errors.Is(err, os.ErrNotExist) {
				return exitOnErr(stderr, err)
			}
		}
	}

	// openLedger runs Init for SQL drivers, so the schema exists from here on.
	b, err := openLedger(ctx, cfg)
	if err != nil {
		return exitOnErr(stderr, err)
	}
	defer b.Close()

	if *reset {
		if st, ok := b.store.(*ledger.SQLStore); ok {
			if err := st.Reset(ctx); err != nil {
				return exitOnErr(stderr, err)
			}
		}
		// Cached records outlive the data they were read from.
		if b.redis != nil {
			if err := ledger.NewCachedReader(b.store, b.redis, cfg.CacheTTL).Invalidate(ctx); err != nil {
				logger.Warn("cache flush failed", "error", err)
			}
		}
		logger.Info("ledger reset", "driver", cfg.DBDriver)
	}

	if cfg.DBDriver == "file" {
		_, _ = fmt.Fprintf(stdout, "file ledger ready: %s\n", cfg.DatabaseURL)
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "%s ledger migrated\n", cfg.DBDriver)
	return 0
}
