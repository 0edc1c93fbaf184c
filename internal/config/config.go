package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Guard    GuardConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
	StoreType         string
	MigrateOnStart    bool
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	AdminTokenExpiry  time.Duration
	DeviceTokenExpiry time.Duration
	AdminEmail        string
	AdminPassword     string
	AdminTOTPSecret   string
}

// GuardConfig carries every admission threshold and risk weight.
type GuardConfig struct {
	MaxAttemptsPerHour int
	MaxAttemptsPerDay  int
	BlockAfterFailures int
	BlockDuration      time.Duration

	HighRiskThreshold float64
	MaxRiskScore      float64
	WeakQualityBelow  float64
	StaleKeyAge       time.Duration
	BurstWindow       time.Duration
	BurstThreshold    int
	FailureWindow     time.Duration

	WeightFailedAttempt float64
	FailedAttemptCap    float64
	WeightOffHours      float64
	WeightWeakQuality   float64
	WeightNoMAC         float64
	WeightNoUserAgent   float64
	WeightBotSignature  float64
	WeightBurst         float64
	WeightStaleKey      float64

	BusinessHoursStart int
	BusinessHoursEnd   int
	BusinessTimezone   string

	SweepInterval     time.Duration
	ProfileRetention  time.Duration
	AuditWriteTimeout time.Duration
	HTTPRequestLimit  int
	HTTPRequestWindow time.Duration
}

type NotifyConfig struct {
	AWSRegion   string
	FromAddress string
	Recipients  []string
}

// Load reads configuration from the environment (and .env when present).
// Malformed numeric, boolean or duration values are errors rather than
// silent fallbacks to the default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := &envReader{}
	jwtSecret := env.str("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	serverEnv := env.str("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			StoreType:         strings.ToLower(env.str("STORE_TYPE", StoreTypePostgres)),
			MigrateOnStart:    env.boolean("MIGRATE_ON_START", true),
			Host:              env.str("DB_HOST", "localhost"),
			Port:              env.integer("DB_PORT", 5432),
			User:              env.str("DB_USER", "postgres"),
			Password:          env.str("DB_PASSWORD", ""),
			Name:              env.str("DB_NAME", "enrollguard"),
			SSLMode:           env.str("DB_SSLMODE", "disable"),
			MaxConns:          int32(env.integer("DB_MAX_CONNS", 25)),
			MinConns:          int32(env.integer("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   env.duration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   env.duration("DB_MAX_CONN_IDLE_TIME", time.Minute),
			HealthCheckPeriod: env.duration("DB_HEALTH_CHECK_PERIOD", time.Minute),
		},
		Server: ServerConfig{
			Port:           env.str("PORT", "8080"),
			Env:            serverEnv,
			LogLevel:       env.str("LOG_LEVEL", "info"),
			AllowedOrigins: allowedOrigins(env, serverEnv),
			TrustedProxies: env.list("TRUSTED_PROXIES"),
			ReadTimeout:    env.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   env.duration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    env.duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AdminTokenExpiry:  env.duration("ADMIN_TOKEN_EXPIRY", 15*time.Minute),
			DeviceTokenExpiry: env.duration("DEVICE_TOKEN_EXPIRY", 30*24*time.Hour),
			AdminEmail:        env.str("ADMIN_EMAIL", ""),
			AdminPassword:     env.str("ADMIN_PASSWORD", ""),
			AdminTOTPSecret:   env.str("ADMIN_TOTP_SECRET", ""),
		},
		Guard: DefaultGuardConfig(),
		Notify: NotifyConfig{
			AWSRegion:   env.str("AWS_REGION", ""),
			FromAddress: env.str("ALERT_FROM_ADDRESS", ""),
			Recipients:  env.list("ALERT_RECIPIENTS"),
		},
	}
	cfg.Guard.applyEnv(env)

	if err := env.err(); err != nil {
		return nil, err
	}

	switch cfg.Database.StoreType {
	case StoreTypePostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
	case StoreTypeMemory:
	default:
		return nil, fmt.Errorf("STORE_TYPE must be %q or %q, got %q", StoreTypePostgres, StoreTypeMemory, cfg.Database.StoreType)
	}

	if err := validateJWTSecret(jwtSecret, serverEnv); err != nil {
		return nil, err
	}
	if err := cfg.Guard.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultGuardConfig returns the stock admission thresholds.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAttemptsPerHour: 5,
		MaxAttemptsPerDay:  20,
		BlockAfterFailures: 10,
		BlockDuration:      30 * time.Minute,

		HighRiskThreshold: 7.0,
		MaxRiskScore:      15.0,
		WeakQualityBelow:  0.5,
		StaleKeyAge:       90 * 24 * time.Hour,
		BurstWindow:       10 * time.Minute,
		BurstThreshold:    3,
		FailureWindow:     time.Hour,

		WeightFailedAttempt: 0.5,
		FailedAttemptCap:    3.0,
		WeightOffHours:      1.0,
		WeightWeakQuality:   2.0,
		WeightNoMAC:         1.0,
		WeightNoUserAgent:   1.5,
		WeightBotSignature:  3.0,
		WeightBurst:         2.0,
		WeightStaleKey:      1.0,

		BusinessHoursStart: 8,
		BusinessHoursEnd:   18,
		BusinessTimezone:   "UTC",

		SweepInterval:     5 * time.Minute,
		ProfileRetention:  24 * time.Hour,
		AuditWriteTimeout: 5 * time.Second,
		HTTPRequestLimit:  60,
		HTTPRequestWindow: time.Minute,
	}
}

func (g *GuardConfig) applyEnv(env *envReader) {
	g.MaxAttemptsPerHour = env.integer("GUARD_MAX_ATTEMPTS_PER_HOUR", g.MaxAttemptsPerHour)
	g.MaxAttemptsPerDay = env.integer("GUARD_MAX_ATTEMPTS_PER_DAY", g.MaxAttemptsPerDay)
	g.BlockAfterFailures = env.integer("GUARD_BLOCK_AFTER_FAILURES", g.BlockAfterFailures)
	g.BlockDuration = env.duration("GUARD_BLOCK_DURATION", g.BlockDuration)

	g.HighRiskThreshold = env.float("GUARD_HIGH_RISK_THRESHOLD", g.HighRiskThreshold)
	g.MaxRiskScore = env.float("GUARD_MAX_RISK_SCORE", g.MaxRiskScore)
	g.WeakQualityBelow = env.float("GUARD_WEAK_QUALITY_BELOW", g.WeakQualityBelow)
	g.StaleKeyAge = env.duration("GUARD_STALE_KEY_AGE", g.StaleKeyAge)
	g.BurstWindow = env.duration("GUARD_BURST_WINDOW", g.BurstWindow)
	g.BurstThreshold = env.integer("GUARD_BURST_THRESHOLD", g.BurstThreshold)
	g.FailureWindow = env.duration("RISK_FAILURE_WINDOW", g.FailureWindow)

	g.WeightFailedAttempt = env.float("RISK_WEIGHT_FAILED_ATTEMPT", g.WeightFailedAttempt)
	g.FailedAttemptCap = env.float("RISK_FAILED_ATTEMPT_CAP", g.FailedAttemptCap)
	g.WeightOffHours = env.float("RISK_WEIGHT_OFF_HOURS", g.WeightOffHours)
	g.WeightWeakQuality = env.float("RISK_WEIGHT_WEAK_FINGERPRINT", g.WeightWeakQuality)
	g.WeightNoMAC = env.float("RISK_WEIGHT_NO_MAC", g.WeightNoMAC)
	g.WeightNoUserAgent = env.float("RISK_WEIGHT_NO_USER_AGENT", g.WeightNoUserAgent)
	g.WeightBotSignature = env.float("RISK_WEIGHT_BOT_SIGNATURE", g.WeightBotSignature)
	g.WeightBurst = env.float("RISK_WEIGHT_BURST", g.WeightBurst)
	g.WeightStaleKey = env.float("RISK_WEIGHT_STALE_KEY", g.WeightStaleKey)

	g.BusinessHoursStart = env.integer("BUSINESS_HOURS_START", g.BusinessHoursStart)
	g.BusinessHoursEnd = env.integer("BUSINESS_HOURS_END", g.BusinessHoursEnd)
	g.BusinessTimezone = env.str("BUSINESS_TIMEZONE", g.BusinessTimezone)

	g.SweepInterval = env.duration("SWEEP_INTERVAL", g.SweepInterval)
	g.ProfileRetention = env.duration("PROFILE_RETENTION", g.ProfileRetention)
	g.AuditWriteTimeout = env.duration("AUDIT_WRITE_TIMEOUT", g.AuditWriteTimeout)
	g.HTTPRequestLimit = env.integer("HTTP_REGISTER_LIMIT", g.HTTPRequestLimit)
	g.HTTPRequestWindow = env.duration("HTTP_REGISTER_WINDOW", g.HTTPRequestWindow)
}

// Validate rejects threshold combinations the guard cannot operate with.
func (g *GuardConfig) Validate() error {
	if g.MaxAttemptsPerHour <= 0 || g.MaxAttemptsPerDay <= 0 {
		return fmt.Errorf("attempt limits must be positive")
	}
	if g.MaxAttemptsPerHour > g.MaxAttemptsPerDay {
		return fmt.Errorf("GUARD_MAX_ATTEMPTS_PER_HOUR (%d) exceeds GUARD_MAX_ATTEMPTS_PER_DAY (%d)",
			g.MaxAttemptsPerHour, g.MaxAttemptsPerDay)
	}
	if g.BlockAfterFailures <= 0 {
		return fmt.Errorf("GUARD_BLOCK_AFTER_FAILURES must be positive")
	}
	if g.BlockDuration <= 0 {
		return fmt.Errorf("GUARD_BLOCK_DURATION must be positive")
	}
	if g.FailureWindow <= 0 {
		return fmt.Errorf("RISK_FAILURE_WINDOW must be positive")
	}
	if g.HighRiskThreshold <= 0 || g.HighRiskThreshold > g.MaxRiskScore {
		return fmt.Errorf("GUARD_HIGH_RISK_THRESHOLD must be in (0, %.1f]", g.MaxRiskScore)
	}
	if g.BusinessHoursStart < 0 || g.BusinessHoursEnd > 24 || g.BusinessHoursStart >= g.BusinessHoursEnd {
		return fmt.Errorf("business hours must satisfy 0 <= start < end <= 24 (got %d-%d)",
			g.BusinessHoursStart, g.BusinessHoursEnd)
	}
	if _, err := time.LoadLocation(g.BusinessTimezone); err != nil {
		return fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", g.BusinessTimezone, err)
	}
	if g.SweepInterval <= 0 || g.ProfileRetention <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL and PROFILE_RETENTION must be positive")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// envReader reads typed variables and collects every malformed value so
// Load can report them together.
type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	return parseEnv(e, key, def, strconv.Atoi)
}

func (e *envReader) float(key string, def float64) float64 {
	return parseEnv(e, key, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func (e *envReader) boolean(key string, def bool) bool {
	return parseEnv(e, key, def, strconv.ParseBool)
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	return parseEnv(e, key, def, time.ParseDuration)
}

// list splits a comma-separated variable, dropping empty entries.
func (e *envReader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func parseEnv[T any](e *envReader, key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
		return def
	}
	return v
}

func allowedOrigins(env *envReader, serverEnv string) []string {
	if serverEnv == "production" {
		return env.list("ALLOWED_ORIGINS")
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
