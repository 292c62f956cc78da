// File: internal/app/server.go
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/config"
	"onboarding_backend/internal/dashboard"
	"onboarding_backend/internal/flow"
	"onboarding_backend/internal/jobs"
	"onboarding_backend/internal/metrics"
	"onboarding_backend/internal/middleware"
	"onboarding_backend/internal/session"
)

// Server struct holds the dependencies for the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	cfg        *config.Config
	logger     *zap.Logger

	sessions    *session.Manager
	rateLimiter *middleware.RateLimiter
	statsJob    *jobs.DashboardStatsJob
}

// NewServer creates a new instance of our application server.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	sessions *session.Manager,
	guards *middleware.Guards,
	rateLimiter *middleware.RateLimiter,
	collector *metrics.Collector,
	flowHandler *flow.Handler,
	dashboardHandler *dashboard.Handler,
	statsJob *jobs.DashboardStatsJob,
) (*Server, error) {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// --- Global Middleware ---
	router.Use(middleware.ZapLogger(logger, cfg))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))
	router.Use(collector.Middleware())

	// --- Operational routes (no session) ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "Onboarding API is healthy!"})
	})
	router.GET("/metrics", gin.WrapH(collector.Handler()))

	// --- Pages: every screen runs inside a resolved session ---
	pages := router.Group("", sessions.Middleware(), flowHandler.LeaveSuccess())
	flowHandler.RegisterRoutes(pages, guards.PublicOnly(), guards.SignupFlow(), rateLimiter.Middleware())
	dashboardHandler.RegisterRoutes(pages, guards.AuthenticatedOnly())

	toLogin := func(c *gin.Context) { common.RespondRedirect(c, flow.PathLogin) }
	router.GET("/", toLogin)
	router.NoRoute(toLogin)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:  httpServer,
		router:      router,
		cfg:         cfg,
		logger:      logger,
		sessions:    sessions,
		rateLimiter: rateLimiter,
		statsJob:    statsJob,
	}, nil
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", common.RequestIDHeader}
	c.ExposeHeaders = []string{"Content-Length", "Location", "Retry-After", common.RequestIDHeader}

	origins := cfg.CORSAllowedOrigins
	for _, o := range origins {
		if o == "*" {
			origins = nil
			break
		}
	}
	if len(origins) == 0 {
		// Wildcard responses cannot carry the session cookie.
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	if s.statsJob != nil {
		if err := s.statsJob.SetupAndStart(); err != nil {
			s.logger.Error("Failed to setup and start dashboard stats job", zap.Error(err))
		}
	}

	s.logger.Info("HTTP Server starting",
		zap.String("address", s.httpServer.Addr),
		zap.String("gin_mode", s.cfg.GinMode),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Failed to start HTTP server", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP Server stopped")
	return nil
}

// Shutdown stops accepting requests, then waits for background session work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Attempting graceful server shutdown...")
	if s.statsJob != nil {
		s.statsJob.Stop()
	}
	err := s.httpServer.Shutdown(ctx)
	s.rateLimiter.Stop()

	idle := make(chan struct{})
	go func() {
		s.sessions.WaitIdle()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		s.logger.Warn("Shutdown deadline reached with session work still running")
	}
	return err
}
