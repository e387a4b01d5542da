// Package config loads the environment-variable driven configuration this
// service needs at startup (spec §6.3): store and cache connectivity, the
// cache-disable and notifier-enable flags, token max age, and per-route
// rate-limit tuning (wider in development, tighter in production). Mirrors
// the teacher's pkg/database.LoadConfigFromEnv/Validate split: load once,
// validate eagerly, fail fast with every problem reported together.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wayfarian/groupjourney/pkg/database"
)

// Environment names accepted by ENVIRONMENT.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// RateLimitConfig tunes one HTTP route group's fixed-window budget.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// Config is the fully resolved, validated application configuration.
type Config struct {
	Environment string
	HTTPPort    string

	Database database.Config

	RedisURL     string
	CacheDisable bool

	TokenMaxAge time.Duration
	JWTSecret   string

	NotifierEnabled bool

	// LocationThrottleWindow bounds how often the HTTP location endpoint
	// accepts an update for one instance on this process (spec §4.3: 1.5-3s).
	LocationThrottleWindow time.Duration

	// JourneyRateLimit and AuthRateLimit are the two per-user HTTP fixed
	// windows named in spec §6.1.
	JourneyRateLimit RateLimitConfig
	AuthRateLimit    RateLimitConfig
}

// Load reads configuration from the environment, applying the same
// development/production defaults split the teacher's database config uses,
// then validates the result.
func Load() (*Config, error) {
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	env := getEnvOrDefault("ENVIRONMENT", EnvDevelopment)

	tokenMaxAge, err := parseDurationEnv("TOKEN_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	locationThrottle, err := parseDurationEnv("LOCATION_THROTTLE_WINDOW", 2*time.Second)
	if err != nil {
		return nil, err
	}

	journeyLimit, authLimit := rateLimitDefaults(env)
	if v, err := parseIntEnv("JOURNEY_RATE_LIMIT"); err != nil {
		return nil, err
	} else if v > 0 {
		journeyLimit = v
	}
	if v, err := parseIntEnv("AUTH_RATE_LIMIT"); err != nil {
		return nil, err
	} else if v > 0 {
		authLimit = v
	}

	cfg := &Config{
		Environment:            env,
		HTTPPort:               getEnvOrDefault("HTTP_PORT", "8080"),
		Database:               dbCfg,
		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		CacheDisable:           getEnvOrDefault("CACHE_DISABLE", "false") == "true",
		TokenMaxAge:            tokenMaxAge,
		JWTSecret:              os.Getenv("JWT_SECRET"),
		NotifierEnabled:        getEnvOrDefault("NOTIFIER_ENABLED", "true") == "true",
		LocationThrottleWindow: locationThrottle,
		JourneyRateLimit:       RateLimitConfig{Limit: journeyLimit, Window: 15 * time.Minute},
		AuthRateLimit:          RateLimitConfig{Limit: authLimit, Window: 15 * time.Minute},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// rateLimitDefaults returns the journey/auth route budgets named in spec
// §6.1: ~50/30 per 15min in production, wider in development so local
// testing isn't throttled.
func rateLimitDefaults(env string) (journey, auth int) {
	if env == EnvProduction {
		return 50, 30
	}
	return 1000, 1000
}

// Validate aggregates every configuration problem into a single error so
// a misconfigured deployment fails once, with a complete report, instead of
// one env var at a time.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Environment))
	}
	if c.TokenMaxAge <= 0 {
		errs = append(errs, errors.New("TOKEN_MAX_AGE must be positive"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.LocationThrottleWindow < 1500*time.Millisecond || c.LocationThrottleWindow > 3*time.Second {
		errs = append(errs, errors.New("LOCATION_THROTTLE_WINDOW must be between 1.5s and 3s per spec §4.3"))
	}
	if c.JourneyRateLimit.Limit <= 0 || c.AuthRateLimit.Limit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
