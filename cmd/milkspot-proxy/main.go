// Command milkspot-proxy serves cached, rate-limited pages of the milkspot
// Airtable base.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/milkspot-proxy/pkg/logging"
)

func main() {
	cfg, err := loadConfig(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "milkspot-proxy: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger(logging.ComponentServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start")
	}
	defer srv.Close()

	if err := srv.run(ctx); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		srv.Close()
		os.Exit(1)
	}
	logger.Info().Msg("Server stopped")
}
