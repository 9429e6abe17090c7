// Package api implements the REST surface: event ingestion and rule management.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/vigil/internal/ingest"
	"github.com/rafaeljc/vigil/internal/refresher"
	"github.com/rafaeljc/vigil/internal/ruleengine"
	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/validation"
)

const defaultMaxBodyBytes int64 = 4 << 20

// EventDispatcher accepts validated batches; *ingest.Dispatcher implements it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []*transaction.Event) (ingest.Result, error)
}

// RuleCatalog exposes the loaded rules and refresh controls; *refresher.Service implements it.
type RuleCatalog interface {
	Rules() []ruleengine.Rule
	CachedRules() int
	CompiledRules() int
	State() refresher.State
	RequestRefresh() bool
}

// Config holds the HTTP-layer settings of the API.
type Config struct {
	// APIKeyHash is the hex SHA-256 of the accepted X-API-Key value.
	APIKeyHash string
	// SkipAuth disables authentication. Only for tests and local development.
	SkipAuth bool
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
}

// API holds the router and its dependencies.
type API struct {
	// Router is the chi multiplexer serving every route.
	Router *chi.Mux

	logger     *slog.Logger
	dispatcher EventDispatcher
	catalog    RuleCatalog
	cfg        Config
}

// NewAPI builds the router.
//
// Panics if a dependency is nil, or if authentication is enabled without an API key hash.
func NewAPI(logger *slog.Logger, dispatcher EventDispatcher, catalog RuleCatalog, cfg Config) *API {
	validation.AssertNotNilInterface(dispatcher, "event dispatcher")
	validation.AssertNotNilInterface(catalog, "rule catalog")
	if !cfg.SkipAuth && cfg.APIKeyHash == "" {
		panic("api: APIKeyHash cannot be empty when authentication is enabled")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &API{
		Router:     chi.NewRouter(),
		logger:     logger,
		dispatcher: dispatcher,
		catalog:    catalog,
		cfg:        cfg,
	}
	a.configureRoutes()
	return a
}

func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.requestLogger)
	a.Router.Use(metricsRecorder)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, ErrorResponse{Code: "ERR_NOT_FOUND", Message: "Resource not found"})
	})
	a.Router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, ErrorResponse{Code: "ERR_METHOD_NOT_ALLOWED", Message: "Method not allowed"})
	})

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.With(a.limitBody).Post("/events", a.handleIngestEvents)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", a.handleListRules)
			r.Get("/stats", a.handleRuleStats)
			r.Post("/refresh", a.handleRefreshRules)
		})
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}
