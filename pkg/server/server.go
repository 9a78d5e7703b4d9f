package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/elonfeng/trendcollector/internal/metrics"
	"github.com/elonfeng/trendcollector/internal/scheduler"
	"github.com/elonfeng/trendcollector/internal/store"
	"github.com/elonfeng/trendcollector/pkg/alert"
	"github.com/elonfeng/trendcollector/pkg/cache"
	"github.com/elonfeng/trendcollector/pkg/content"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector runs collection cycles on demand.
type Collector interface {
	Collect(ctx context.Context, trigger store.Trigger) (*scheduler.Summary, error)
	State() scheduler.State
	LastRun() (scheduler.Summary, bool)
}

// Options configure the HTTP server.
type Options struct {
	Port           int
	AllowedOrigins []string
	CacheTTL       time.Duration
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	collector Collector
	generator *content.Generator
	alerts    *alert.Manager
	cache     cache.Cache
	logger    *log.Logger
	validate  *requestValidator
	opts      Options

	// bg tracks publish notifications still in flight.
	bg sync.WaitGroup
}

// New creates a new HTTP server. collector, generator, alerts and c may be nil.
func New(
	s store.Store,
	collector Collector,
	generator *content.Generator,
	alerts *alert.Manager,
	c cache.Cache,
	logger *log.Logger,
	opts Options,
) *Server {
	if opts.Port == 0 {
		opts.Port = 8000
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		store:     s,
		collector: collector,
		generator: generator,
		alerts:    alerts,
		cache:     c,
		logger:    logger.WithPrefix("http"),
		validate:  newRequestValidator(),
		opts:      opts,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/collect", s.handleCollect)
	r.Get("/runs", s.handleRuns)

	r.Route("/trends", func(r chi.Router) {
		r.Get("/", s.handleTrends)
		r.Get("/latest", s.handleLatest)
		r.Get("/by-niche", s.handleByNiche)
	})
	r.Get("/niches", s.handleNiches)

	r.Route("/queue", func(r chi.Router) {
		r.Post("/add", s.handleQueueAdd)
		r.Get("/list", s.handleQueueList)
		r.Post("/status", s.handleQueueStatus)
		r.Post("/publish", s.handleQueuePublish)
	})

	r.Post("/content/generate", s.handleGenerate)

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.bg.Wait()
	return nil
}

// Wait blocks until background notifications finish.
func (s *Server) Wait() {
	s.bg.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"took", time.Since(start).Round(time.Microsecond),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}

type apiError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type errorResponse struct {
	Status string   `json:"status"`
	Error  apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, fields map[string]string) {
	writeJSON(w, status, errorResponse{
		Status: "error",
		Error: apiError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: chimiddleware.GetReqID(r.Context()),
		},
	})
}

// handleError maps domain errors to HTTP responses.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", verr.Message, verr.Fields)
	case errors.Is(err, store.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
			map[string]string{"status": "status must be one of: draft, ready, published"})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "queue item not found", nil)
	case errors.Is(err, content.ErrNoCompleter):
		writeError(w, r, http.StatusServiceUnavailable, "LLM_UNAVAILABLE", err.Error(), nil)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "An unexpected storage error occurred", nil)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return &ValidationError{Message: "Invalid request body"}
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ValidationError{Message: "Invalid request body"}
	}
	return nil
}

// queryLimit parses ?limit=N. A missing value returns 0, which the store
// replaces with its default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fieldError("limit", "limit must be a positive integer")
	}
	if n > store.MaxLimit {
		n = store.MaxLimit
	}
	return n, nil
}
