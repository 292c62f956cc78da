package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"onboarding_backend/internal/common"
	"onboarding_backend/internal/config"
	"onboarding_backend/internal/flow"
	"onboarding_backend/internal/identity"
)

const (
	statsCacheKey       = "stats"
	defaultActiveWindow = 15 * time.Minute
	syncBatchSize       = 100
)

// ErrSearchDisabled is returned by SyncSearchIndex when no search backend is configured.
var ErrSearchDisabled = errors.New("dashboard: customer search is not configured")

// Service defines the dashboard business logic.
type Service interface {
	// RecordSignup adds a completed signup to the directory.
	RecordSignup(ctx context.Context, profile *identity.Profile) error
	Overview(ctx context.Context, viewer Viewer, query CustomerQuery) (*Overview, error)
	Stats(ctx context.Context) (Stats, error)
	RefreshStats(ctx context.Context) (Stats, error)
	// Seed fills an empty directory with the starter customers and reports how many were added.
	Seed(ctx context.Context) (int, error)
	SyncSearchIndex(ctx context.Context) (int, error)
}

// ServiceImplementation implements Service.
type ServiceImplementation struct {
	repo         Repository
	searcher     Searcher
	stats        *cache.Cache
	activeWindow time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewService creates the dashboard service. searcher may be nil, in which case
// text search runs against the database.
func NewService(repo Repository, searcher Searcher, cfg *config.Config, logger *zap.Logger) Service {
	window := cfg.DashboardActiveWindow
	if window <= 0 {
		window = defaultActiveWindow
	}
	return &ServiceImplementation{
		repo:         repo,
		searcher:     searcher,
		stats:        cache.New(cache.NoExpiration, 0),
		activeWindow: window,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.Named("dashboard"),
	}
}

func (s *ServiceImplementation) RecordSignup(ctx context.Context, profile *identity.Profile) error {
	if profile == nil || strings.TrimSpace(profile.Email) == "" {
		return fmt.Errorf("record signup: profile without email")
	}
	now := s.now()
	customer := &Customer{
		Name:         profile.FullName,
		Handle:       profile.Handle,
		Phone:        profile.PhoneNumber,
		Email:        strings.ToLower(strings.TrimSpace(profile.Email)),
		Country:      CountryForPhone(profile.PhoneNumber),
		Status:       StatusActive,
		LastActiveAt: now,
	}
	if err := s.repo.Upsert(ctx, customer); err != nil {
		return err
	}
	s.stats.Delete(statsCacheKey)

	stored, err := s.repo.FindByEmail(ctx, customer.Email)
	if err != nil {
		return fmt.Errorf("reload customer: %w", err)
	}
	if s.searcher != nil {
		if err := s.searcher.Index(ctx, stored); err != nil {
			s.logger.Warn("Failed to index new customer", zap.String("customerID", stored.ID.String()), zap.Error(err))
		}
	}
	s.logger.Info("Customer recorded", zap.String("customerID", stored.ID.String()), zap.String("country", stored.Country))
	return nil
}

func (s *ServiceImplementation) Overview(ctx context.Context, viewer Viewer, query CustomerQuery) (*Overview, error) {
	if query.Sort == "" {
		query.Sort = SortNewest
	}
	if viewer.User != nil && viewer.User.Email != "" {
		if err := s.repo.Touch(ctx, strings.ToLower(viewer.User.Email), s.now()); err != nil {
			s.logger.Warn("Failed to record customer activity", zap.Error(err))
		}
	}

	customers, pagination, err := s.customers(ctx, query)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Overview{
		Greeting:   GreetingName(viewer.Profile, viewer.User),
		Profile:    viewer.Profile,
		Stats:      stats,
		Customers:  customers,
		Pagination: pagination,
	}, nil
}

func (s *ServiceImplementation) customers(ctx context.Context, query CustomerQuery) ([]Customer, *common.Pagination, error) {
	if s.searcher != nil && strings.TrimSpace(query.Text) != "" {
		ids, total, err := s.searcher.Search(ctx, query)
		if err == nil {
			found, err := s.repo.FindByIDs(ctx, ids)
			if err != nil {
				return nil, nil, err
			}
			return found, common.NewPagination(total, query.Page, query.PageSize), nil
		}
		s.logger.Warn("Customer search failed; falling back to the database", zap.Error(err))
	}
	return s.repo.Search(ctx, query)
}

// Stats returns the cached snapshot, computing it on first use.
func (s *ServiceImplementation) Stats(ctx context.Context) (Stats, error) {
	if v, ok := s.stats.Get(statsCacheKey); ok {
		return v.(Stats), nil
	}
	return s.RefreshStats(ctx)
}

func (s *ServiceImplementation) RefreshStats(ctx context.Context) (Stats, error) {
	now := s.now()
	total, err := s.repo.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count customers: %w", err)
	}
	members, err := s.repo.CountByStatus(ctx, StatusActive)
	if err != nil {
		return Stats{}, fmt.Errorf("count members: %w", err)
	}
	active, err := s.repo.CountActiveSince(ctx, now.Add(-s.activeWindow))
	if err != nil {
		return Stats{}, fmt.Errorf("count active customers: %w", err)
	}
	stats := Stats{TotalCustomers: total, Members: members, ActiveNow: active, ComputedAt: now}
	s.stats.Set(statsCacheKey, stats, cache.NoExpiration)
	return stats, nil
}

func (s *ServiceImplementation) Seed(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	if n > 0 {
		s.logger.Debug("Customer directory already populated; skipping seed", zap.Int64("customers", n))
		return 0, nil
	}
	customers := SeedCustomers(s.now())
	if err := s.repo.CreateBatch(ctx, customers); err != nil {
		return 0, err
	}
	s.stats.Delete(statsCacheKey)
	if s.searcher != nil {
		if _, err := s.searcher.BulkIndex(ctx, customers); err != nil {
			s.logger.Warn("Failed to index seeded customers", zap.Error(err))
		}
	}
	s.logger.Info("Customer directory seeded", zap.Int("customers", len(customers)))
	return len(customers), nil
}

// SyncSearchIndex re-indexes the whole directory and returns how many customers were indexed.
func (s *ServiceImplementation) SyncSearchIndex(ctx context.Context) (int, error) {
	if s.searcher == nil {
		return 0, ErrSearchDisabled
	}
	indexed := 0
	err := s.repo.ForEachBatch(ctx, syncBatchSize, func(batch []Customer) error {
		n, err := s.searcher.BulkIndex(ctx, batch)
		indexed += n
		return err
	})
	if err != nil {
		return indexed, fmt.Errorf("sync customer index: %w", err)
	}
	s.logger.Info("Customer index synchronised", zap.Int("indexed", indexed))
	return indexed, nil
}

// CountryForPhone names the country of the longest dialing prefix phone starts with.
func CountryForPhone(phone string) string {
	best := ""
	for prefix := range flow.CountryCodes {
		if strings.HasPrefix(phone, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	return flow.CountryCodes[best]
}

// GreetingName picks the name the dashboard greets the viewer with.
func GreetingName(profile *identity.Profile, user *identity.User) string {
	if profile != nil {
		if first := firstWord(profile.FullName); first != "" {
			return first
		}
	}
	if user != nil {
		if first := firstWord(user.DisplayName); first != "" {
			return first
		}
		if local, _, ok := strings.Cut(user.Email, "@"); ok && local != "" {
			return local
		}
	}
	return "User"
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
