package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rfqdesk/native/settlement"
	"rfqdesk/observability"
	"rfqdesk/services/rfqd/storage"
)

const requestIDHeader = "X-Request-ID"

// Archive lists archived notifications.
type Archive interface {
	List(ctx context.Context, q storage.Query) ([]storage.Notification, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	ShutdownTimeout time.Duration
	RateLimit       RateLimit
}

// Server exposes the settlement engine over HTTP.
type Server struct {
	cfg     Config
	engine  *settlement.Engine
	archive Archive
	hub     *Hub
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	router  http.Handler
}

// New constructs the HTTP server. archive and hub are optional.
func New(cfg Config, engine *settlement.Engine, auth *Authenticator, archive Archive, hub *Hub, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("settlement engine required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		archive: archive,
		hub:     hub,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Use(s.auth.Middleware)

		api.Post("/requests", s.handleCreateRequest)
		api.Get("/requests", s.handleListRequests)
		api.Post("/requests/expire", s.handleExpire)
		api.Get("/requests/{id}", s.handleGetRequest)
		api.Delete("/requests/{id}", s.handleCancelRequest)
		api.Post("/requests/{id}/accept", s.handleAccept)

		api.Get("/limiter", s.handleLimiter)
		api.Put("/limiter", s.handleSetLimit)
		api.Post("/limiter/adjust", s.handleAdjustLimit)

		api.Get("/events", s.handleEvents)
		if s.hub != nil {
			api.Get("/events/ws", s.hub.handleStream)
		}
	})

	return otelhttp.NewHandler(r, "rfqd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rfqd listening", slog.String("addr", s.cfg.ListenAddress))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.HTTP().Observe(route, r.Method, status, time.Since(start))
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.String("request_id", w.Header().Get(requestIDHeader)),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": s.engine.Pending(),
	})
}
