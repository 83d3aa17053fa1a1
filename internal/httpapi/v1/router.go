// Package v1 wires the HTTP surface of the daybook service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tinoosan/daybook/internal/service/daybook"
)

// Server wires handlers and middleware using Chi.
type Server struct {
	svc   daybook.Service
	ready ReadyChecker
	log   *slog.Logger
	now   func() time.Time
	rt    *chi.Mux

	corsOrigins    []string
	statementTitle string
}

// Option customises a Server.
type Option func(*Server)

// WithCORSOrigins enables CORS for the given origins.
func WithCORSOrigins(origins []string) Option { return func(s *Server) { s.corsOrigins = origins } }

// WithStatementTitle sets the heading printed on PDF statements.
func WithStatementTitle(title string) Option { return func(s *Server) { s.statementTitle = title } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// New constructs the HTTP server with routes and middleware. ready may be nil.
// The logger is used by request/response logging and panic recovery.
func New(svc daybook.Service, ready ReadyChecker, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		ready:          ready,
		log:            logger,
		now:            time.Now,
		rt:             chi.NewRouter(),
		statementTitle: "Daybook statement",
	}
	for _, o := range opts {
		o(s)
	}

	s.rt.Use(chimw.RequestID)
	s.rt.Use(requestLogger(logger))
	s.rt.Use(recoverer(logger))
	s.rt.Use(metricsMiddleware)
	if len(s.corsOrigins) > 0 {
		s.rt.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id"},
			ExposedHeaders: []string{"Idempotent-Replay", "Content-Disposition"},
			MaxAge:         300,
		}))
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Entries
	s.rt.With(s.validatePostEntry()).Post("/v1/entries", s.postEntry)
	s.rt.With(s.validateEntryFilter(true)).Get("/v1/entries", s.listEntries)
	s.rt.With(s.validateEntryFilter(false)).Get("/v1/entries/export", s.exportEntries)
	s.rt.With(s.validateEntryID()).Get("/v1/entries/{id}", s.getEntry)
	s.rt.With(s.validateEntryID(), s.validatePatchEntry()).Patch("/v1/entries/{id}", s.patchEntry)
	s.rt.With(s.validateEntryID()).Delete("/v1/entries/{id}", s.deleteEntry)
	// Periods
	s.rt.Get("/v1/periods", s.listPeriods)
	s.rt.With(s.validateMonth()).Get("/v1/periods/{year}/{month}", s.getMonthlyReport)
	s.rt.With(s.validateMonth()).Get("/v1/periods/{year}/{month}/statement.pdf", s.getStatementPDF)
	s.rt.With(s.validateMonth()).Post("/v1/periods/{year}/{month}/close", s.closeMonth)
	// Opening balance and maintenance
	s.rt.With(s.validateOpeningBalance()).Post("/v1/opening-balance", s.postOpeningBalance)
	s.rt.Get("/v1/opening-balance", s.getOpeningBalance)
	s.rt.Post("/v1/recalculate", s.recalculate)
	// Dictionary
	s.rt.Get("/v1/dictionary/voucher-types", s.getVoucherTypes)
	s.rt.Get("/v1/dictionary/account-heads", s.getAccountHeads)
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
