// Package main implements the genflow server, which accepts asynchronous
// video and image generation requests, submits them to generation providers
// and reconciles the providers' callbacks into durable task state.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, reset, status, version) and exit")
	tokenFor := flag.String("token", "", "print a bearer token for the given user ID and exit")
	flag.Parse()

	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	cfg, err := loadAppConfig()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *migrateCmd != "":
		err = runMigrations(ctx, cfg, *migrateCmd, l)
	case *tokenFor != "":
		err = printToken(ctx, cfg.Auth, *tokenFor, os.Stdout)
	default:
		err = run(ctx, cfg, l)
	}
	if err != nil {
		l.Error("genflow exited with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

// loadAppConfig loads the application configuration from environment
// variables or config file.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// run starts the server and blocks until ctx is canceled or the server fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := setupAppDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(ctx, db, logger); err != nil {
			_ = db.Close()
			return err
		}
	}

	app, err := newApplication(ctx, cfg, logger, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.Run(ctx)
}
