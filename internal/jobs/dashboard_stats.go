// Package jobs holds the scheduled background work.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"onboarding_backend/internal/config"
	"onboarding_backend/internal/dashboard"
)

const (
	statsRunTimeout  = time.Minute
	stopGraceTimeout = 10 * time.Second
)

// StatsRefresher recomputes the dashboard header cards.
type StatsRefresher interface {
	RefreshStats(ctx context.Context) (dashboard.Stats, error)
}

// DashboardStatsJob refreshes the dashboard stats snapshot on DASHBOARD_STATS_SCHEDULE.
type DashboardStatsJob struct {
	refresher StatsRefresher
	schedule  string
	logger    *zap.Logger
	scheduler *cron.Cron
}

func NewDashboardStatsJob(refresher StatsRefresher, cfg *config.Config, logger *zap.Logger) *DashboardStatsJob {
	cl := NewCronLogger(logger.Named("cron"))
	return &DashboardStatsJob{
		refresher: refresher,
		schedule:  cfg.DashboardStatsSchedule,
		logger:    logger.Named("DashboardStatsJob"),
		scheduler: cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
	}
}

// SetupAndStart schedules the refresh and starts the scheduler. An empty schedule disables the job.
func (j *DashboardStatsJob) SetupAndStart() error {
	if j.schedule == "" {
		j.logger.Warn("Dashboard stats schedule not defined (DASHBOARD_STATS_SCHEDULE). Job will not run.")
		return nil
	}

	jobID, err := j.scheduler.AddFunc(j.schedule, j.runJob)
	if err != nil {
		j.logger.Error("Failed to schedule dashboard stats job", zap.String("schedule", j.schedule), zap.Error(err))
		return err
	}

	j.logger.Info("Dashboard stats job scheduled", zap.String("schedule", j.schedule), zap.Int("jobID", int(jobID)))
	j.scheduler.Start()
	return nil
}

func (j *DashboardStatsJob) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), statsRunTimeout)
	defer cancel()

	stats, err := j.refresher.RefreshStats(ctx)
	if err != nil {
		j.logger.Error("Dashboard stats refresh failed", zap.Error(err))
		return
	}
	j.logger.Debug("Dashboard stats refreshed",
		zap.Int64("total_customers", stats.TotalCustomers),
		zap.Int64("members", stats.Members),
		zap.Int64("active_now", stats.ActiveNow),
	)
}

// Stop waits for a running refresh to finish, up to a bounded grace period.
func (j *DashboardStatsJob) Stop() {
	if j.scheduler == nil {
		return
	}
	j.logger.Info("Stopping dashboard stats scheduler...")
	select {
	case <-j.scheduler.Stop().Done():
		j.logger.Info("Dashboard stats scheduler stopped.")
	case <-time.After(stopGraceTimeout):
		j.logger.Warn("Dashboard stats scheduler stop timed out.")
	}
}
