// Package config handles environment-based configuration loading for the
// monitor, provider adapters, and persistence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	StateDir string

	// Operational HTTP API
	APIPort int

	// Actor service credentials and identifiers
	ApifyToken         string
	ActorImmoscout24   string
	ActorImmowelt      string
	ActorKleinanzeigen string
	IS24StartURL       string
	ImmoweltStartURL   string

	// Search defaults
	DefaultCity string
	MaxPriceCap float64

	// Monitoring cadence
	CheckIntervalNormal time.Duration
	CheckIntervalQuiet  time.Duration
	QuietHours          QuietHours
	Workers             int

	// Provider cost controls
	ActorCooldown time.Duration
	QuietScaling  float64
	SyncRun       bool
	ActorTimeout  time.Duration
	EnrichTimeout time.Duration

	// Notification limits
	MaxNotifyPerCycle   int
	NotifyThrottle      time.Duration
	MaxApartmentsPerJob int

	// On-demand feed
	FeedCacheTTL time.Duration

	// Retention
	RetentionDays   int
	JanitorSchedule string

	// Feature flags
	EnableImmoweltLive  bool
	EnableKleinanzeigen bool

	// Optional YAML provider registry overriding the env-derived adapters.
	ProvidersFile string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any value is invalid; missing values fall back to defaults.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	cfg.StateDir = envStr("FLATWATCH_STATE_DIR", "/var/lib/flatwatch")
	cfg.APIPort = envInt("FLATWATCH_API_PORT", 8090, &errs)

	cfg.ApifyToken = os.Getenv("FLATWATCH_APIFY_TOKEN")
	cfg.ActorImmoscout24 = envStr("FLATWATCH_ACTOR_IMMOSCOUT24", "azzouzana~immobilienscout24-de-search-results-scraper-by-search-url")
	cfg.ActorImmowelt = envStr("FLATWATCH_ACTOR_IMMOWELT", "azzouzana~immowelt-de-search-results-scraper-by-search-url")
	cfg.ActorKleinanzeigen = envStr("FLATWATCH_ACTOR_KLEINANZEIGEN", "real_spidery~kleinanzeigen-scraper")
	cfg.IS24StartURL = strings.TrimSpace(envStr("FLATWATCH_IS24_START_URL", ""))
	cfg.ImmoweltStartURL = strings.TrimSpace(envStr("FLATWATCH_IMMOWELT_START_URL", ""))

	cfg.DefaultCity = envStr("FLATWATCH_DEFAULT_CITY", "Berlin")
	cfg.MaxPriceCap = envFloat("FLATWATCH_MAX_PRICE_CAP", 5000, &errs)

	cfg.CheckIntervalNormal = envDuration("FLATWATCH_CHECK_INTERVAL_NORMAL", 30*time.Second, &errs)
	cfg.CheckIntervalQuiet = envDuration("FLATWATCH_CHECK_INTERVAL_QUIET", 5*time.Minute, &errs)
	cfg.QuietHours = QuietHours{
		Start: envInt("FLATWATCH_QUIET_HOURS_START", 23, &errs),
		End:   envInt("FLATWATCH_QUIET_HOURS_END", 7, &errs),
	}
	cfg.Workers = envInt("FLATWATCH_WORKERS", 6, &errs)

	cfg.ActorCooldown = envDuration("FLATWATCH_ACTOR_COOLDOWN", 5*time.Minute, &errs)
	cfg.QuietScaling = envFloat("FLATWATCH_QUIET_SCALING", 2.0, &errs)
	cfg.SyncRun = envBool("FLATWATCH_SYNC_RUN", true, &errs)
	cfg.ActorTimeout = envDuration("FLATWATCH_ACTOR_TIMEOUT", 60*time.Second, &errs)
	cfg.EnrichTimeout = envDuration("FLATWATCH_ENRICH_TIMEOUT", 12*time.Second, &errs)

	cfg.MaxNotifyPerCycle = envInt("FLATWATCH_MAX_NOTIFY_PER_CYCLE", 8, &errs)
	cfg.NotifyThrottle = envDuration("FLATWATCH_NOTIFY_THROTTLE", 2*time.Second, &errs)
	cfg.MaxApartmentsPerJob = envInt("FLATWATCH_MAX_APARTMENTS_PER_JOB", 15, &errs)

	cfg.FeedCacheTTL = envDuration("FLATWATCH_FEED_CACHE_TTL", 5*time.Minute, &errs)

	cfg.RetentionDays = envInt("FLATWATCH_RETENTION_DAYS", 30, &errs)
	cfg.JanitorSchedule = envStr("FLATWATCH_JANITOR_SCHEDULE", "0 4 * * *")

	cfg.EnableImmoweltLive = envBool("FLATWATCH_ENABLE_IMMOWELT_LIVE", false, &errs)
	cfg.EnableKleinanzeigen = envBool("FLATWATCH_ENABLE_KLEINANZEIGEN", false, &errs)

	cfg.ProvidersFile = strings.TrimSpace(envStr("FLATWATCH_PROVIDERS_FILE", ""))

	// --- Validation ---
	if strings.TrimSpace(cfg.StateDir) == "" {
		errs = append(errs, "FLATWATCH_STATE_DIR must not be empty")
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("FLATWATCH_API_PORT: must be 1-65535, got %d", cfg.APIPort))
	}
	if strings.TrimSpace(cfg.DefaultCity) == "" {
		errs = append(errs, "FLATWATCH_DEFAULT_CITY must not be empty")
	}
	if cfg.MaxPriceCap <= 0 {
		errs = append(errs, "FLATWATCH_MAX_PRICE_CAP must be positive")
	}
	if cfg.CheckIntervalNormal <= 0 {
		errs = append(errs, "FLATWATCH_CHECK_INTERVAL_NORMAL must be positive")
	}
	if cfg.CheckIntervalQuiet <= 0 {
		errs = append(errs, "FLATWATCH_CHECK_INTERVAL_QUIET must be positive")
	}
	validateHour("FLATWATCH_QUIET_HOURS_START", cfg.QuietHours.Start, &errs)
	validateHour("FLATWATCH_QUIET_HOURS_END", cfg.QuietHours.End, &errs)
	validatePositive("FLATWATCH_WORKERS", cfg.Workers, &errs)
	if cfg.ActorCooldown <= 0 {
		errs = append(errs, "FLATWATCH_ACTOR_COOLDOWN must be positive")
	}
	if cfg.QuietScaling < 1 {
		errs = append(errs, "FLATWATCH_QUIET_SCALING must be >= 1")
	}
	if cfg.ActorTimeout <= 0 {
		errs = append(errs, "FLATWATCH_ACTOR_TIMEOUT must be positive")
	}
	if cfg.EnrichTimeout <= 0 {
		errs = append(errs, "FLATWATCH_ENRICH_TIMEOUT must be positive")
	}
	validatePositive("FLATWATCH_MAX_NOTIFY_PER_CYCLE", cfg.MaxNotifyPerCycle, &errs)
	if cfg.NotifyThrottle < 0 {
		errs = append(errs, "FLATWATCH_NOTIFY_THROTTLE must not be negative")
	}
	validatePositive("FLATWATCH_MAX_APARTMENTS_PER_JOB", cfg.MaxApartmentsPerJob, &errs)
	if cfg.FeedCacheTTL <= 0 {
		errs = append(errs, "FLATWATCH_FEED_CACHE_TTL must be positive")
	}
	validatePositive("FLATWATCH_RETENTION_DAYS", cfg.RetentionDays, &errs)
	if _, err := cron.ParseStandard(cfg.JanitorSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("FLATWATCH_JANITOR_SCHEDULE: invalid cron expression %q: %v", cfg.JanitorSchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// QuietHours is a local-time window [Start, End) in hours, wrapping past
// midnight when Start > End. Start == End disables the window.
type QuietHours struct {
	Start int
	End   int
}

// Contains reports whether the given local hour falls in the window.
func (q QuietHours) Contains(hour int) bool {
	if q.Start == q.End {
		return false
	}
	if q.Start < q.End {
		return q.Start <= hour && hour < q.End
	}
	return hour >= q.Start || hour < q.End
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid number %q", key, v))
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}

func validateHour(name string, value int, errs *[]string) {
	if value < 0 || value > 23 {
		*errs = append(*errs, fmt.Sprintf("%s: hour must be 0-23, got %d", name, value))
	}
}
