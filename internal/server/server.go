// Package server provides the HTTP server for the tenant API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/opsdeck/tenantd/internal/config"
	"github.com/opsdeck/tenantd/internal/handler"
	"github.com/opsdeck/tenantd/internal/identity"
	"github.com/opsdeck/tenantd/internal/middleware"
	"go.uber.org/zap"
)

// Server represents the HTTP server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	validator  identity.Validator
	tenants    *handler.TenantHandler
	schedules  *handler.ScheduleHandler
	perms      *handler.PermissionHandler
	logger     *zap.Logger
	cfg        *config.Config
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	validator identity.Validator,
	tenants *handler.TenantHandler,
	schedules *handler.ScheduleHandler,
	perms *handler.PermissionHandler,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		validator:  validator,
		tenants:    tenants,
		schedules:  schedules,
		perms:      perms,
		logger:     logger,
		cfg:        cfg,
	}
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS(s.cfg.Server.AllowedOrigins),
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Every API route requires a valid bearer token
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.Auth(s.validator, s.logger))

	// Tenant state and actions
	v1.HandleFunc("/tenants", s.tenants.ListTenants).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{namespace}", s.tenants.GetTenant).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{namespace}/start", s.tenants.StartTenant).Methods(http.MethodPost)
	v1.HandleFunc("/tenants/{namespace}/stop", s.tenants.StopTenant).Methods(http.MethodPost)
	v1.HandleFunc("/tenants/{namespace}/scale", s.tenants.ScaleTenant).Methods(http.MethodPost)
	v1.HandleFunc("/tenants/{namespace}/uptime", s.tenants.GetUptime).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{namespace}/metrics", s.tenants.GetMonthlyMetrics).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{namespace}/history", s.tenants.GetHistory).Methods(http.MethodGet)

	// Schedules
	v1.HandleFunc("/tenants/{namespace}/schedules", s.schedules.ListSchedules).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{namespace}/schedules", s.schedules.CreateSchedule).Methods(http.MethodPost)
	v1.HandleFunc("/tenants/{namespace}/schedules/{id}", s.schedules.GetSchedule).Methods(http.MethodGet)
	v1.HandleFunc("/tenants/{namespace}/schedules/{id}", s.schedules.UpdateSchedule).Methods(http.MethodPut)
	v1.HandleFunc("/tenants/{namespace}/schedules/{id}", s.schedules.DeleteSchedule).Methods(http.MethodDelete)

	// Namespace grants (admin only)
	v1.HandleFunc("/permissions", s.perms.GrantPermission).Methods(http.MethodPost)
	v1.HandleFunc("/permissions/{subject_id}", s.perms.ListPermissions).Methods(http.MethodGet)
	v1.HandleFunc("/permissions/{subject_id}/{namespace}", s.perms.RevokePermission).Methods(http.MethodDelete)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not_found","message":"endpoint not found"}`))
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method_not_allowed","message":"method not allowed"}`))
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("host", s.cfg.Server.Host),
		zap.Int("port", s.cfg.Server.Port),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the router for testing
func (s *Server) GetHandler() http.Handler {
	return s.router
}
