// Sentra - Real-time transaction fraud scoring and alerting
package main

import (
	"context"
	"os"

	"github.com/nmoreau/sentra/internal/config"
	"github.com/nmoreau/sentra/internal/logging"
	"github.com/nmoreau/sentra/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New("info", "text")
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting sentra",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
