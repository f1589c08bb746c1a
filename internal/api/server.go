// Package api exposes the ChainFlow engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/chainflow-labs/chainflow/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	limiter := NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	if cfg.SharedRateLimit && deps.Cache != nil {
		limiter.WithSharedCache(deps.Cache)
	}
	router := chi.NewRouter()

	router.Use(CORS(cfg.AllowedOrigins()))
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// No tenant required
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)
		r.Use(limiter.Middleware)

		r.Post("/routes/optimize", handler.OptimizeRoute)
		r.Get("/routes", handler.ListRoutes)
		r.Get("/routes/{id}", handler.GetRoute)

		r.Get("/regions", handler.Regions)
		r.Get("/regions/classify", handler.ClassifyRegion)

		r.Post("/suppliers/trust", handler.AssessTrust)
		r.Get("/trust/{id}", handler.GetTrust)

		r.Post("/fraud/assess", handler.AssessFraud)
		r.Get("/fraud/model", handler.FraudModel)
		r.Get("/fraud/{id}", handler.GetFraud)

		r.Post("/verify", handler.Verify)
		r.Get("/verifications/{id}", handler.GetVerification)

		r.Post("/shipments", handler.CreateShipment)
		r.Get("/shipments", handler.ListShipments)
		r.Get("/shipments/{id}", handler.GetShipment)
		r.Post("/shipments/{id}/advance", handler.AdvanceShipment)

		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		r.Get("/profiles", handler.ListProfiles)
		r.Get("/profiles/{id}", handler.GetProfile)
		r.Post("/profiles", handler.CreateProfile)
		r.Put("/profiles/{id}", handler.UpdateProfile)
		r.Delete("/profiles/{id}", handler.DeleteProfile)
		r.Post("/profiles/reload", handler.ReloadProfiles)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
