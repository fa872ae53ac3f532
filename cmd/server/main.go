// Command server runs the harbour account-linking bridge.
//
// main reads configuration, builds the shared dependencies (logger, S3-backed
// directory, database-backed server) and starts the HTTP server. All logic
// lives in the internal packages.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adsabs/harbour/internal/config"
	"github.com/adsabs/harbour/internal/directory"
	"github.com/adsabs/harbour/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := loadConfig(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(cfg.DBPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	bundles, err := directory.NewS3Store(cfg.S3Region, cfg.S3Bucket)
	if err != nil {
		logger.Error("failed to create S3 store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The 2.0 directory snapshot is best-effort at startup: without it the
	// classic endpoints still work and the 2.0 endpoints report
	// directory_unavailable until a load succeeds.
	dir := &directory.Directory{}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := bundles.LoadDirectory(ctx, cfg.DirectoryKey, dir); err != nil {
		logger.Warn("could not load users directory", slog.String("error", err.Error()))
	} else {
		logger.Info("users directory loaded", slog.Int("entries", dir.Len()))
	}
	cancel()

	srv, err := server.New(cfg, logger, dir, bundles)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// loadConfig applies environment overrides on top of the defaults. Only main
// touches the environment; everything below gets the finished Config.
func loadConfig(logger *slog.Logger) *config.Config {
	cfg := config.Default()

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.S3Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.S3Region = v
	}
	if v := os.Getenv("CLASSIC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid CLASSIC_TIMEOUT value", slog.String("value", v))
			os.Exit(1)
		}
		cfg.RequestTimeout = d
	}

	return cfg
}
