// Package api exposes health probes, Prometheus metrics and the reporting
// and operator endpoints of the reminder engine over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
	"expiry-reminders/internal/reporting"
)

// ItemStore is the read/registration side of the data store.
type ItemStore interface {
	CreateItem(ctx context.Context, in models.NewItem) (int64, error)
	ListItems(ctx context.Context, date time.Time) ([]models.ItemView, error)
	ListLogEntries(ctx context.Context, limit int) ([]models.LogView, error)
	LogSummary(ctx context.Context, since time.Time) (models.LogSummary, error)
}

type BatchRunner interface {
	Today() time.Time
	Plan(ctx context.Context, date time.Time) (*reminder.Plan, error)
	Run(ctx context.Context, opts reminder.RunOptions) (*reminder.Report, error)
}

type LogSearcher interface {
	Search(ctx context.Context, f reporting.Filter) (*reporting.SearchResult, error)
}

// Check is a readiness probe for one dependency.
type Check func(ctx context.Context) error

type Option func(*Server)

func WithSearcher(s LogSearcher) Option {
	return func(srv *Server) { srv.searcher = s }
}

func WithReadinessCheck(name string, c Check) Option {
	return func(srv *Server) { srv.checks[name] = c }
}

type Server struct {
	store    ItemStore
	runner   BatchRunner
	searcher LogSearcher
	checks   map[string]Check
	logger   logger.Logger

	// runMu keeps operator-triggered runs from overlapping each other.
	runMu sync.Mutex
}

func NewServer(store ItemStore, runner BatchRunner, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		store:  store,
		runner: runner,
		checks: make(map[string]Check),
		logger: log.WithFields(map[string]interface{}{"component": "api"}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.listItems)
			r.Post("/", s.createItem)
		})
		r.Route("/notification-log", func(r chi.Router) {
			r.Get("/", s.listLog)
			r.Get("/summary", s.logSummary)
			r.Get("/search", s.searchLog)
		})
		r.Route("/reminders", func(r chi.Router) {
			r.Get("/due", s.due)
			r.Post("/run", s.run)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Info("http request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}
