package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/genflow/internal/api"
	apiMiddleware "github.com/phrazzld/genflow/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	api.RegisterRoutes(r,
		api.NewGenerationHandler(app.orchestrator, app.logger),
		api.NewCallbackHandler(app.reconciler, app.logger),
		authMiddleware.Authenticate,
	)

	r.Get("/health", app.healthHandler)

	return r
}
