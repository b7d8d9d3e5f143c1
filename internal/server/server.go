package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/connector"
	"github.com/sluicehq/sluice/internal/handler"
	"github.com/sluicehq/sluice/internal/server/middleware"
	"github.com/sluicehq/sluice/internal/service"
	"github.com/sluicehq/sluice/internal/tenant"
)

// SystemScope is the scope a bearer token needs to use the system API.
const SystemScope = "backend"

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	// TokenRate is the per-client limit on grant requests per minute. One
	// address may send four times as many across all client ids.
	TokenRate int
	// APIRate is the per-IP limit on system API requests per minute.
	APIRate int
	// Tenant is used for requests that do not select one.
	Tenant tenant.Context
	// TenantHeader lets requests select a tenant with X-Tenant-Id.
	TenantHeader bool
	Version      string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     1 << 20,
		TokenRate:       60,
		APIRate:         600,
		Version:         "dev",
	}
}

// Deps are the services the server routes to.
type Deps struct {
	Store       *config.Store
	Registry    *connector.Registry
	Directory   *service.Directory
	Connections *service.ConnectionService
	Grants      *service.GrantService
	Resolver    *service.CredentialResolver
	Issuer      *service.TokenIssuer
	Codec       *service.JWTCodec
}

// Server is the top-level HTTP server. It owns the Chi router and the
// services behind it.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.TenantHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no tenant, no auth) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Tenant(s.cfg.Tenant, s.cfg.TenantHeader))

		r.Get("/openapi.json", handler.NewOpenAPIHandler(s.deps.Directory, s.deps.Registry, s.cfg.Version).ServeSpec)

		// --- OAuth2 endpoints ---
		oauth := handler.NewOAuthHandler(s.deps.Grants, s.deps.Resolver, s.deps.Issuer, s.deps.Codec, s.logger)
		r.Route("/authorization", func(r chi.Router) {
			r.With(middleware.RateLimitGrants(s.cfg.TokenRate)).Post("/token", oauth.Token)
			r.With(middleware.RateLimitGrants(s.cfg.TokenRate)).Post("/revoke", oauth.Revoke)
			r.With(middleware.Authenticate(s.deps.Issuer)).Post("/assertion", oauth.Assertion)
		})

		// --- System API ---
		sys := handler.NewSystemHandler(s.deps.Store, s.deps.Directory, s.deps.Connections, s.deps.Issuer, s.logger)
		tokens := handler.NewTokenHandler(s.deps.Grants, s.deps.Store, s.logger)
		r.Route("/api/v1/system", func(r chi.Router) {
			r.Use(middleware.RateLimit(s.cfg.APIRate))
			r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
			r.Use(middleware.Authenticate(s.deps.Issuer))
			r.Use(middleware.RequireScope(SystemScope))
			sys.Routes(r)
			r.Post("/token", tokens.Mint)
		})

		// --- Consumer API (any authenticated user) ---
		r.Route("/consumer", func(r chi.Router) {
			r.Use(middleware.RateLimit(s.cfg.APIRate))
			r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
			r.Use(middleware.Authenticate(s.deps.Issuer))
			tokens.ConsumerRoutes(r)
		})
	})

	s.router = r
}

// handleHealthz is the liveness check. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is the readiness check. Returns 200 when the config store and
// every open connection pool answer a ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	if err := s.deps.Store.Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
	}
	if err := s.deps.Registry.PingAll(ctx); err != nil {
		checks["connections"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["connections"] = fmt.Sprintf("ok (%d open)", len(s.deps.Registry.Keys()))
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing all connection pools.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "tenant", s.cfg.Tenant.String())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.deps.Registry.CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
