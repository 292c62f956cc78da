// File: cmd/server/wire.go
//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"onboarding_backend/internal/app"
	"onboarding_backend/internal/config"
	"onboarding_backend/internal/dashboard"
	"onboarding_backend/internal/draft"
	"onboarding_backend/internal/flow"
	"onboarding_backend/internal/identity"
	"onboarding_backend/internal/jobs"
	"onboarding_backend/internal/metrics"
	"onboarding_backend/internal/middleware"
	"onboarding_backend/internal/session"
)

// initializeServer is the main Wire injector.
func initializeServer(cfg *config.Config) (*app.Server, func(), error) {
	wire.Build(
		// Platform Layer
		provideLogger,
		provideDatabase,
		provideSearcher,
		metrics.NewCollector,

		// Identity and sessions
		identity.NewGateway,
		draft.NewStore,
		session.NewHub,
		session.NewManager,
		wire.Bind(new(flow.SessionOpener), new(*session.Manager)),

		// Dashboard
		dashboard.NewGORMRepository,
		provideDashboardService,
		dashboard.NewHandler,
		jobs.NewDashboardStatsJob,
		wire.Bind(new(jobs.StatsRefresher), new(dashboard.Service)),

		// Signup flow
		provideFlowOptions,
		flow.NewService,
		flow.NewHandler,

		// Middleware
		middleware.NewGuards,
		wire.Bind(new(middleware.RedirectRecorder), new(*metrics.Collector)),
		middleware.RateLimiterConfigFrom,
		middleware.NewRateLimiter,

		// Application Layer
		app.NewServer,
	)
	return nil, nil, nil
}
