package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/events"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/platform/gemini"
	"github.com/phrazzld/genflow/internal/platform/kie"
	"github.com/phrazzld/genflow/internal/platform/natsbus"
	"github.com/phrazzld/genflow/internal/platform/postgres"
	"github.com/phrazzld/genflow/internal/service/auth"
	"github.com/phrazzld/genflow/internal/service/orchestrator"
	"github.com/phrazzld/genflow/internal/store"
	"github.com/phrazzld/genflow/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore store.GenerationTaskStore
	gateways  *generation.Router

	// Event system
	eventEmitter events.EventEmitter
	eventBus     *natsbus.JetStreamEmitter

	jwtService   auth.JWTService
	orchestrator *orchestrator.Orchestrator
	reconciler   *orchestrator.Reconciler

	// Status polling for tasks whose callback never arrived; nil when disabled
	pollRunner *task.PollRunner
}

// newApplication creates an application backed by the Postgres store on db,
// with gateways, event emitters and the poll runner built from cfg.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	gateways, err := setupGateways(ctx, cfg.Providers, logger)
	if err != nil {
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	emitter, bus, err := setupEventEmitter(ctx, cfg.Events, logger)
	if err != nil {
		return nil, err
	}

	app := assembleApplication(
		cfg,
		logger,
		postgres.NewPostgresGenerationTaskStore(db, logger),
		gateways,
		emitter,
		jwtService,
	)
	app.db = db
	app.eventBus = bus

	if cfg.Poller.Enabled {
		app.pollRunner = task.NewPollRunner(app.orchestrator, task.PollRunnerConfigFrom(cfg.Poller), logger)
	}

	logger.Info("Application initialized successfully",
		"video_backend", cfg.Providers.VideoBackend,
		"event_bus", bus != nil,
		"poller_enabled", cfg.Poller.Enabled)
	return app, nil
}

// assembleApplication wires the orchestrator and reconciler over the given
// dependencies.
func assembleApplication(
	cfg *config.Config,
	logger *slog.Logger,
	taskStore store.GenerationTaskStore,
	gateways *generation.Router,
	emitter events.EventEmitter,
	jwtService auth.JWTService,
) *application {
	orch := orchestrator.NewOrchestrator(
		taskStore,
		gateways,
		emitter,
		orchestrator.NewCallbackURLs(cfg.Providers.CallbackBaseURL, cfg.Providers.CallbackToken),
		logger,
	)
	return &application{
		config:       cfg,
		logger:       logger,
		taskStore:    taskStore,
		gateways:     gateways,
		eventEmitter: emitter,
		jwtService:   jwtService,
		orchestrator: orch,
		reconciler:   orchestrator.NewReconciler(orch, logger),
	}
}

// setupGateways builds the provider gateways. The configured video backend
// handles new video submissions; the other video backend stays reachable by
// name when configured so that tasks it accepted can still be reconciled.
func setupGateways(ctx context.Context, cfg config.ProvidersConfig, logger *slog.Logger) (*generation.Router, error) {
	kieVeo, err := kie.NewVeoGateway(kie.Config{
		BaseURL:        cfg.Kie.BaseURL,
		APIKey:         cfg.Kie.APIKey,
		RequestTimeout: cfg.Kie.RequestTimeout,
		Model:          cfg.Kie.VeoModel,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Kie Veo gateway: %w", err)
	}

	kieImage, err := kie.NewImageGateway(kie.Config{
		BaseURL:        cfg.Kie.BaseURL,
		APIKey:         cfg.Kie.APIKey,
		RequestTimeout: cfg.Kie.RequestTimeout,
		Model:          cfg.Kie.ImageModel,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Kie image gateway: %w", err)
	}

	var geminiVeo generation.Gateway
	if cfg.VideoBackend == "gemini" || cfg.Gemini.APIKey != "" {
		gw, err := gemini.NewVeoGateway(ctx, gemini.Config{
			APIKey:         cfg.Gemini.APIKey,
			Model:          cfg.Gemini.VeoModel,
			RequestTimeout: cfg.Gemini.RequestTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini Veo gateway: %w", err)
		}
		geminiVeo = gw
	}

	if cfg.VideoBackend == "gemini" {
		logger.Info("Video generation routed to Gemini", "model", cfg.Gemini.VeoModel)
		return generation.NewRouter(geminiVeo, kieImage, kieVeo), nil
	}
	logger.Info("Video generation routed to Kie", "model", cfg.Kie.VeoModel)
	return generation.NewRouter(kieVeo, kieImage, geminiVeo), nil
}

// setupEventEmitter builds the event pipeline: events are always logged
// in-process and, when a NATS URL is configured, also published to JetStream.
// The returned bus is nil when NATS is not configured.
func setupEventEmitter(
	ctx context.Context,
	cfg config.EventsConfig,
	logger *slog.Logger,
) (events.EventEmitter, *natsbus.JetStreamEmitter, error) {
	local := events.NewInMemoryEventEmitter(logger)
	local.RegisterHandler(events.NewLoggingHandler(logger))

	if cfg.NATSURL == "" {
		return local, nil, nil
	}

	bus, err := natsbus.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect event bus: %w", err)
	}
	return events.NewFanOutEmitter(local, bus), bus, nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if app.pollRunner != nil {
		app.pollRunner.Start()
	}

	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// healthHandler reports liveness.
func (app *application) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		app.logger.Error("Failed to write health check response", "error", err)
	}
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.pollRunner != nil {
		app.pollRunner.Stop()
	}

	if app.eventBus != nil {
		if err := app.eventBus.Close(); err != nil {
			app.logger.Error("Error closing event bus", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
