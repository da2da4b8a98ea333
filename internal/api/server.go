package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/craftyard/craftyard/internal/api/handler"
	mw "github.com/craftyard/craftyard/internal/api/middleware"
	"github.com/craftyard/craftyard/internal/config"
	"github.com/craftyard/craftyard/internal/core"
	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/hub"
)

//go:embed docs/swagger.json
var swaggerJSON []byte

type Server struct {
	router      chi.Router
	logger      zerolog.Logger
	services    *core.Services
	pool        *pgxpool.Pool
	engine      *deployer.DockerEngine
	hub         *hub.Hub
	cfg         *config.Config
	auditLogger *mw.AuditLogger
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, engine *deployer.DockerEngine, h *hub.Hub, services *core.Services, cfg *config.Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger,
		services:    services,
		pool:        pool,
		engine:      engine,
		hub:         h,
		cfg:         cfg,
		auditLogger: mw.NewAuditLogger(pool, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// API documentation (no auth required)
	s.router.Get("/docs/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(swaggerJSON)
	})
	s.router.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(scalarHTML))
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.services.APIKey))
		r.Use(s.auditLogger.Middleware)

		// Caller identity
		me := handler.NewMe(s.services.Permission)
		r.Get("/me", me.Get)

		// Flavor catalog
		flavors := handler.NewFlavors()
		r.Get("/flavors", flavors.List)

		// Servers
		server := handler.NewServer(s.services.Server, s.services.Permission, s.services.Backup)
		r.Get("/servers", server.List)
		r.Get("/servers/{id}", server.Get)
		r.Put("/servers/{id}", server.Update)
		r.Post("/servers/{id}/start", server.Start)
		r.Post("/servers/{id}/stop", server.Stop)
		r.Post("/servers/{id}/restart", server.Restart)
		r.Get("/servers/{id}/stats", server.Stats)

		// Console
		console := handler.NewConsole(s.services.Console, s.services.Permission)
		r.Post("/servers/{id}/console/command", console.Command)
		r.Get("/servers/{id}/console/players", console.Players)
		r.Post("/servers/{id}/console/say", console.Say)
		r.Post("/servers/{id}/console/stop", console.Stop)

		// Per-server grants
		permission := handler.NewPermission(s.services.Permission)
		r.Get("/servers/{id}/permissions", permission.ListForServer)
		r.Post("/servers/{id}/permissions", permission.Grant)
		r.Delete("/servers/{id}/permissions/{userID}", permission.Revoke)

		// Backups
		backup := handler.NewBackup(s.services.Backup, s.services.Permission)
		r.Get("/servers/{id}/backups", backup.List)
		r.Post("/servers/{id}/backups", backup.Create)
		r.Post("/servers/{id}/backups/{backupID}/restore", backup.Restore)
		r.Delete("/servers/{id}/backups/{backupID}", backup.Delete)

		// Event stream
		ws := handler.NewWS(s.hub, s.services.Server, s.services.Permission)
		r.Get("/servers/{id}/ws", ws.Subscribe)

		// Admin-only surface: fleet mutation, accounts and the audit trail.
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAdmin())

			r.Post("/servers", server.Create)
			r.Delete("/servers/{id}", server.Delete)

			user := handler.NewUser(s.services.User)
			r.Get("/users", user.List)
			r.Post("/users", user.Create)
			r.Get("/users/{id}", user.Get)
			r.Put("/users/{id}/role", user.UpdateRole)
			r.Delete("/users/{id}", user.Delete)

			apiKey := handler.NewAPIKey(s.services.APIKey)
			r.Post("/api-keys", apiKey.Create)
			r.Delete("/api-keys/{id}", apiKey.Revoke)
			r.Get("/users/{id}/api-keys", apiKey.ListByUser)

			audit := handler.NewAudit(s.pool)
			r.Get("/audit-logs", audit.List)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.pool.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	} else {
		checks["db"] = "ok"
	}

	if err := s.engine.Ping(ctx); err != nil {
		checks["docker"] = err.Error()
		healthy = false
	} else {
		checks["docker"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

const scalarHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Craftyard API</title>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
</head>
<body>
  <script id="api-reference" data-url="/docs/openapi.json"></script>
  <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`
