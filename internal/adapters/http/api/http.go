// Package api exposes the ranking service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/internal/domain/types"
	"github.com/okian/feedrank/internal/tracker"
	"github.com/okian/feedrank/pkg/logger"
	"github.com/okian/feedrank/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Enqueue queues an interaction. duplicate reports an event id seen before.
	Enqueue(ctx context.Context, in model.Interaction) (duplicate bool, err error)

	RankFeed(ctx context.Context, req types.FeedRequest) ([]types.RankedItem, error)
	Engagement(ctx context.Context, itemID string) (model.Aggregate, error)
	Trending(ctx context.Context, n int) ([]types.TrendingEntry, error)
	Flush(ctx context.Context) (tracker.FlushResult, error)
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	deps  Dependencies
	stats StatsProvider
	log   logger.Logger

	validate *validator.Validate
	limiter  *userLimiter

	maxFeedItems     int
	maxTrendingLimit int
	eventsRate       float64
	eventsBurst      int
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:             deps,
		stats:            stats,
		log:              logger.Default(),
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		maxFeedItems:     defaultMaxFeedItems,
		maxTrendingLimit: defaultMaxTrendingLimit,
		eventsRate:       defaultEventsRate,
		eventsBurst:      defaultEventsBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("api")
	if s.eventsRate > 0 {
		s.limiter = newUserLimiter(s.eventsRate, s.eventsBurst)
	}
	return s
}

// Router builds the chi router with every route attached. Callers may mount
// more routes on the result.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	r.Post("/events", s.handlePostEvent)
	r.Post("/feed/rank", s.handleRankFeed)
	r.Get("/items/{itemID}/engagement", s.handleGetEngagement)
	r.Get("/trending", s.handleGetTrending)
	r.Post("/admin/flush", s.handleFlush)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError flattens validator output into one readable error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Namespace() + " failed '" + fe.Tag() + "'"
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		parts = append(parts, msg)
	}
	return errors.New(strings.Join(parts, "; "))
}
