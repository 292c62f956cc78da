// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// IdentityBackendFirebase selects the hosted Firebase Auth + Firestore gateway.
	IdentityBackendFirebase = "firebase"
	// IdentityBackendMemory selects the in-process gateway used for local development.
	IdentityBackendMemory = "memory"

	// DraftStoreRedis keeps session drafts in Redis so several instances can share them.
	DraftStoreRedis = "redis"
	// DraftStoreMemory keeps session drafts in process memory.
	DraftStoreMemory = "memory"

	// DBDriverPostgres and DBDriverSQLite select the customer directory database.
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	// developmentSessionSecret is only accepted outside release mode.
	developmentSessionSecret = "onboarding-development-session-secret-change-me"
	minSessionSecretLength   = 32
)

// Config holds all configuration for the application.
type Config struct {
	// Server Configuration
	GinMode            string        `mapstructure:"GIN_MODE"`
	ServerHost         string        `mapstructure:"SERVER_HOST"`
	ServerPort         string        `mapstructure:"SERVER_PORT"`
	ServerTimeout      time.Duration `mapstructure:"SERVER_TIMEOUT_SECONDS"`
	CORSAllowedOrigins []string      `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Database Configuration (customer directory)
	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            string        `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSL_MODE"`
	DBTimezone        string        `mapstructure:"DB_TIMEZONE"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBSQLitePath      string        `mapstructure:"DB_SQLITE_PATH"`
	DBAutoMigrate     bool          `mapstructure:"DB_AUTO_MIGRATE"`

	// Logging Configuration
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Identity Gateway
	IdentityBackend               string `mapstructure:"IDENTITY_BACKEND"`
	FirebaseServiceAccountKeyPath string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_KEY_PATH"`
	FirebaseProjectID             string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseWebAPIKey             string `mapstructure:"FIREBASE_WEB_API_KEY"`
	FirebaseProfilesCollection    string `mapstructure:"FIREBASE_PROFILES_COLLECTION"`

	// Session Draft Store
	DraftStore    string        `mapstructure:"DRAFT_STORE"`
	RedisURL      string        `mapstructure:"REDIS_URL"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	DraftTTL      time.Duration `mapstructure:"DRAFT_TTL_MINUTES"`

	// Session cookie
	SessionSecret         string        `mapstructure:"SESSION_SECRET"`
	SessionCookieName     string        `mapstructure:"SESSION_COOKIE_NAME"`
	SessionCookieDomain   string        `mapstructure:"SESSION_COOKIE_DOMAIN"`
	SessionCookieSecure   bool          `mapstructure:"SESSION_COOKIE_SECURE"`
	SessionCookieSameSite string        `mapstructure:"SESSION_COOKIE_SAMESITE"`
	SessionTTL            time.Duration `mapstructure:"SESSION_TTL_HOURS"`

	// Signup flow timing
	AuthGracePeriod      time.Duration `mapstructure:"AUTH_GRACE_PERIOD_MS"`
	SuccessRedirectDelay time.Duration `mapstructure:"SUCCESS_REDIRECT_DELAY_MS"`
	ProfileCacheTTL      time.Duration `mapstructure:"PROFILE_CACHE_TTL_MINUTES"`
	ProfileFetchAttempts int           `mapstructure:"PROFILE_FETCH_ATTEMPTS"`

	// Rate limiting for /login and /register
	AuthRatePerMinute int `mapstructure:"AUTH_RATE_PER_MINUTE"`
	AuthRateBurst     int `mapstructure:"AUTH_RATE_BURST"`

	// Dashboard
	DashboardStatsSchedule string        `mapstructure:"DASHBOARD_STATS_SCHEDULE"`
	DashboardSeed          bool          `mapstructure:"DASHBOARD_SEED"`
	DashboardActiveWindow  time.Duration `mapstructure:"DASHBOARD_ACTIVE_WINDOW_MINUTES"`

	// Elasticsearch Configuration (empty URL disables search indexing)
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL"`
}

// Load attempts to load configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Duration keys carry their unit in the name; viper reads them as plain integers.
	cfg.ServerTimeout = time.Duration(v.GetInt("SERVER_TIMEOUT_SECONDS")) * time.Second
	cfg.DBConnMaxLifetime = time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_MINUTES")) * time.Minute
	cfg.DraftTTL = time.Duration(v.GetInt("DRAFT_TTL_MINUTES")) * time.Minute
	cfg.SessionTTL = time.Duration(v.GetInt("SESSION_TTL_HOURS")) * time.Hour
	cfg.AuthGracePeriod = time.Duration(v.GetInt("AUTH_GRACE_PERIOD_MS")) * time.Millisecond
	cfg.SuccessRedirectDelay = time.Duration(v.GetInt("SUCCESS_REDIRECT_DELAY_MS")) * time.Millisecond
	cfg.ProfileCacheTTL = time.Duration(v.GetInt("PROFILE_CACHE_TTL_MINUTES")) * time.Minute
	cfg.DashboardActiveWindow = time.Duration(v.GetInt("DASHBOARD_ACTIVE_WINDOW_MINUTES")) * time.Minute
	cfg.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	cfg.IdentityBackend = strings.ToLower(strings.TrimSpace(cfg.IdentityBackend))
	cfg.DraftStore = strings.ToLower(strings.TrimSpace(cfg.DraftStore))
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_TIMEOUT_SECONDS", 30)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("DB_DRIVER", DBDriverSQLite)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "onboarding_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 60)
	v.SetDefault("DB_SQLITE_PATH", "onboarding.db")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("IDENTITY_BACKEND", IdentityBackendMemory)
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_KEY_PATH", "")
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_WEB_API_KEY", "")
	v.SetDefault("FIREBASE_PROFILES_COLLECTION", "users")

	v.SetDefault("DRAFT_STORE", DraftStoreMemory)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("DRAFT_TTL_MINUTES", 60)

	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_COOKIE_NAME", "onboarding_session")
	v.SetDefault("SESSION_COOKIE_DOMAIN", "")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("SESSION_COOKIE_SAMESITE", "Lax")
	v.SetDefault("SESSION_TTL_HOURS", 24)

	v.SetDefault("AUTH_GRACE_PERIOD_MS", 2000)
	v.SetDefault("SUCCESS_REDIRECT_DELAY_MS", 5000)
	v.SetDefault("PROFILE_CACHE_TTL_MINUTES", 30)
	v.SetDefault("PROFILE_FETCH_ATTEMPTS", 2)

	v.SetDefault("AUTH_RATE_PER_MINUTE", 10)
	v.SetDefault("AUTH_RATE_BURST", 5)

	v.SetDefault("DASHBOARD_STATS_SCHEDULE", "@every 5m")
	v.SetDefault("DASHBOARD_SEED", true)
	v.SetDefault("DASHBOARD_ACTIVE_WINDOW_MINUTES", 15)

	v.SetDefault("ELASTICSEARCH_URL", "")
}

func (cfg *Config) validate() error {
	switch cfg.IdentityBackend {
	case IdentityBackendMemory:
	case IdentityBackendFirebase:
		if strings.TrimSpace(cfg.FirebaseServiceAccountKeyPath) == "" {
			return fmt.Errorf("FATAL: FIREBASE_SERVICE_ACCOUNT_KEY_PATH is not set. This is required for the firebase identity backend")
		}
		if _, err := os.Stat(cfg.FirebaseServiceAccountKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("FATAL: Firebase service account key file specified in FIREBASE_SERVICE_ACCOUNT_KEY_PATH (%s) not found", cfg.FirebaseServiceAccountKeyPath)
		}
		if strings.TrimSpace(cfg.FirebaseWebAPIKey) == "" {
			return fmt.Errorf("FATAL: FIREBASE_WEB_API_KEY is not set. Password sign-in needs the project's web API key")
		}
	default:
		return fmt.Errorf("unsupported IDENTITY_BACKEND %q (want %q or %q)", cfg.IdentityBackend, IdentityBackendFirebase, IdentityBackendMemory)
	}

	switch cfg.DraftStore {
	case DraftStoreMemory:
	case DraftStoreRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return fmt.Errorf("FATAL: REDIS_URL is required when DRAFT_STORE=redis")
		}
	default:
		return fmt.Errorf("unsupported DRAFT_STORE %q (want %q or %q)", cfg.DraftStore, DraftStoreRedis, DraftStoreMemory)
	}

	if cfg.DBDriver != DBDriverPostgres && cfg.DBDriver != DBDriverSQLite {
		return fmt.Errorf("unsupported DB_DRIVER %q (want %q or %q)", cfg.DBDriver, DBDriverPostgres, DBDriverSQLite)
	}

	if len(cfg.SessionSecret) < minSessionSecretLength {
		if cfg.GinMode == "release" {
			return fmt.Errorf("FATAL: SESSION_SECRET must be at least %d bytes in release mode", minSessionSecretLength)
		}
		cfg.SessionSecret = developmentSessionSecret
	}

	if cfg.ProfileFetchAttempts < 1 {
		cfg.ProfileFetchAttempts = 1
	}
	return nil
}

// UsesDevelopmentSessionSecret reports whether the built-in secret is in effect.
func (cfg *Config) UsesDevelopmentSessionSecret() bool {
	return cfg.SessionSecret == developmentSessionSecret
}

// Addr is the listen address of the HTTP server.
func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
