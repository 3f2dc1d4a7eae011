package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/mockflow/internal/audit"
	"github.com/TimurManjosov/mockflow/internal/auth"
	"github.com/TimurManjosov/mockflow/internal/logging"
	"github.com/TimurManjosov/mockflow/internal/notify"
	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/telemetry"
	"github.com/TimurManjosov/mockflow/internal/workflow"
)

type Server struct {
	store       store.Store
	engine      *workflow.Engine
	adminAPIKey string
	logger      zerolog.Logger
	rateLimit   int
	timeout     time.Duration
	auth        *auth.Authenticator
	audit       *audit.Service
	auditLog    AuditReader
	events      *notify.Hub
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for access logs and handler errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimit limits dispatch routes to n requests per minute per client IP.
// Zero disables the limit.
func WithRateLimit(n int) Option {
	return func(s *Server) { s.rateLimit = n }
}

// WithRequestTimeout bounds every request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewServer(st store.Store, eng *workflow.Engine, adminKey string, opts ...Option) *Server {
	s := &Server{
		store:       st,
		engine:      eng,
		adminAPIKey: adminKey,
		logger:      zerolog.Nop(),
		timeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.auth = auth.NewAuthenticator(adminKey, s.authFailure)
	return s
}

func (s *Server) Router() http.Handler {
	timeout := middleware.Timeout(s.timeout)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(logging.AccessLog(s.logger))
	r.Use(telemetry.Middleware)

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// workflow dispatch
	r.Group(func(r chi.Router) {
		r.Use(timeout)
		if s.rateLimit > 0 {
			r.Use(httprate.Limit(s.rateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					RateLimitedError(w, r, "Too many requests")
				}),
			))
		}
		r.HandleFunc("/scenario/{scenarioID}/*", s.handleScenarioDispatch)
		r.HandleFunc("/workflow/*", s.handleGlobalDispatch)
	})

	// management
	r.Route("/v1/scenarios", func(r chi.Router) {
		r.Route("/{scenarioID}", func(r chi.Router) {
			// long-lived, so no request timeout
			r.Get("/state/events", s.handleStateEvents)

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Get("/", s.handleGetScenario)
				r.Put("/", s.authAdmin(s.handleUpdateScenario))
				r.Delete("/", s.authAdmin(s.handleDeleteScenario))

				r.Get("/transitions", s.handleListTransitions)
				r.Post("/transitions", s.authAdmin(s.handleCreateTransition))
				r.Get("/transitions/{transitionID}", s.handleGetTransition)
				r.Put("/transitions/{transitionID}", s.authAdmin(s.handleUpdateTransition))
				r.Delete("/transitions/{transitionID}", s.authAdmin(s.handleDeleteTransition))

				r.Get("/state", s.handleGetState)
				r.Delete("/state", s.authAdmin(s.handleResetState))
				r.Post("/simulate", s.authAdmin(s.handleSimulate))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Get("/", s.handleListScenarios)
			r.Post("/", s.authAdmin(s.handleCreateScenario))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(timeout)
		r.Get("/v1/catalog", s.handleExportCatalog)
		r.Put("/v1/catalog", s.authAdmin(s.handleImportCatalog))
		r.Get("/v1/audit", s.authAdmin(s.handleListAudit))
	})

	return r
}

// ---- middleware ----

func (s *Server) authAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.auth.RequireAdmin(next).ServeHTTP
}

func (s *Server) authFailure(w http.ResponseWriter, r *http.Request, f auth.Failure) {
	msg := "Invalid token"
	if f == auth.FailureMissing {
		msg = "Missing bearer token"
	}
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeSystem, r.Method+" "+r.URL.Path).
		WithAction(audit.ActionAuthFailed).
		Failure(msg))

	if f == auth.FailureMissing {
		UnauthorizedError(w, r, msg)
		return
	}
	ForbiddenError(w, r, msg)
}
