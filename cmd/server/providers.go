package main

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"onboarding_backend/internal/config"
	"onboarding_backend/internal/dashboard"
	"onboarding_backend/internal/flow"
	"onboarding_backend/internal/metrics"
	"onboarding_backend/internal/platform/database"
	platformElasticsearch "onboarding_backend/internal/platform/elasticsearch"
	"onboarding_backend/internal/platform/logger"
)

func provideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	l, err := logger.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.UsesDevelopmentSessionSecret() {
		l.Warn("SESSION_SECRET not set; using the built-in development secret")
	}
	return l, logger.Cleanup(l), nil
}

// provideDatabase opens and migrates the customer directory.
func provideDatabase(cfg *config.Config, l *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.NewGORM(cfg, l)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(cfg, db, l, &dashboard.Customer{}); err != nil {
		database.CloseGORMDB(db, l)
		return nil, nil, err
	}
	return db, func() { database.CloseGORMDB(db, l) }, nil
}

// provideSearcher returns a nil Searcher when ELASTICSEARCH_URL is empty.
func provideSearcher(cfg *config.Config, l *zap.Logger) (dashboard.Searcher, error) {
	if cfg.ElasticsearchURL == "" {
		l.Info("ELASTICSEARCH_URL not set; customer search runs against the database")
		return nil, nil
	}
	client, err := platformElasticsearch.NewClient(cfg, l)
	if err != nil {
		return nil, err
	}
	mapping, err := platformElasticsearch.CustomersMapping()
	if err != nil {
		return nil, err
	}
	if err := platformElasticsearch.CreateIndexIfNotExists(context.Background(), client, platformElasticsearch.CustomersIndexName, mapping, l); err != nil {
		return nil, err
	}
	return dashboard.NewElasticsearchSearcher(client, l), nil
}

// provideDashboardService builds the directory service and seeds it when DASHBOARD_SEED is set.
func provideDashboardService(repo dashboard.Repository, searcher dashboard.Searcher, cfg *config.Config, l *zap.Logger) (dashboard.Service, error) {
	svc := dashboard.NewService(repo, searcher, cfg, l)
	if cfg.DashboardSeed {
		if _, err := svc.Seed(context.Background()); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func provideFlowOptions(cfg *config.Config, collector *metrics.Collector, directory dashboard.Service) flow.Options {
	return flow.Options{
		GracePeriod:  cfg.AuthGracePeriod,
		SuccessDelay: cfg.SuccessRedirectDelay,
		AfterFunc:    flow.TimeAfterFunc,
		Recorder:     collector,
		Directory:    directory,
	}
}
