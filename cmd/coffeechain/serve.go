package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/api"
	"github.com/Mindburn-Labs/coffeechain/pkg/config"
)

func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	port := cmd.String("port", cfg.Port, "listen port")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg.Port = *port

	logger := setupLogger(cfg, stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openLedger(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer b.Close()

	svc, shutdownObs, err := newService(ctx, cfg, b)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObs(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	srv := api.NewServer(svc, b.checks)
	if cfg.RateLimit > 0 {
		srv.WithRateLimit(api.NewGlobalRateLimiter(ctx, cfg.RateLimit, cfg.RateBurst))
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coffeechain listening", "addr", server.Addr, "driver", cfg.DBDriver)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			return 1
		}
	}
	_, _ = fmt.Fprintln(stdout, "stopped")
	return 0
}

// exitOnErr prints err and returns the exit code for it.
func exitOnErr(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	if errors.Is(err, os.ErrNotExist) {
		return 2
	}
	return 1
}
