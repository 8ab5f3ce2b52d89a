// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/job"
	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/service"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// ScanJobService creates scan jobs and reports their progress
type ScanJobService interface {
	CreateScanJob(ctx context.Context, input job.CreateScanJobInput) (*models.ScanJob, error)
	GetProgress(ctx context.Context, jobID string) (*models.JobProgress, error)
	ListJobs(ctx context.Context, communityID string, limit int) ([]*models.ScanJob, error)
}

// LeaderboardService answers leaderboard and rank queries
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, q service.LeaderboardQuery) (*models.Leaderboard, error)
	GetPlayerRank(ctx context.Context, communityID, username string, period types.Period, month *time.Time, ranking types.RankingType) (*models.PlayerRank, error)
}

// RegistrationService links community members to player IDs
type RegistrationService interface {
	Upsert(ctx context.Context, reg *models.PlayerRegistration) error
	Delete(ctx context.Context, communityID, discordUserID string) error
}

// StepRunner runs one scheduler step
type StepRunner interface {
	Step(ctx context.Context) (*job.StepResult, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	scanJobs      ScanJobService
	leaderboards  LeaderboardService
	registrations RegistrationService
	steps         StepRunner
	checks        map[string]HealthChecker
	config        *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
	// TriggerToken guards the step trigger; empty disables the route
	TriggerToken string
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	scanJobs ScanJobService,
	leaderboards LeaderboardService,
	registrations RegistrationService,
	steps StepRunner,
	checks map[string]HealthChecker,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		scanJobs:      scanJobs,
		leaderboards:  leaderboards,
		registrations: registrations,
		steps:         steps,
		checks:        checks,
		config:        config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Scan job endpoints
	api.HandleFunc("/communities/{communityId}/scan-jobs", s.handleCreateScanJob).Methods("POST")
	api.HandleFunc("/communities/{communityId}/scan-jobs", s.handleListScanJobs).Methods("GET")
	api.HandleFunc("/scan-jobs/{jobId}", s.handleGetScanJob).Methods("GET")

	// Leaderboard endpoints
	api.HandleFunc("/communities/{communityId}/leaderboard", s.handleGetLeaderboard).Methods("GET")
	api.HandleFunc("/communities/{communityId}/players/{username}/rank", s.handleGetPlayerRank).Methods("GET")

	// Registration endpoints
	api.HandleFunc("/communities/{communityId}/registrations/{discordUserId}", s.handlePutRegistration).Methods("PUT")
	api.HandleFunc("/communities/{communityId}/registrations/{discordUserId}", s.handleDeleteRegistration).Methods("DELETE")

	// Step trigger for an external scheduler
	if s.config.TriggerToken != "" {
		internal := s.router.PathPrefix("/internal").Subrouter()
		internal.Use(BearerAuthMiddleware(s.config.TriggerToken))
		internal.HandleFunc("/scan/step", s.handleScanStep).Methods("POST")
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			logging.FromContext(ctx).WithError(err).WithField("dependency", name).Warn("health check failed")
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":       state,
		"service":      "openfront-scan",
		"dependencies": deps,
	})
}

// Router exposes the configured handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
