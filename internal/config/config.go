package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName            = "AuthFlow"
	defaultAppEnv             = "development"
	defaultPort               = "8080"
	defaultLogLevel           = "info"
	defaultMongoDatabase      = "authflow"
	defaultShutdownDelay      = 10 * time.Second
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultSessionTTL         = 72 * time.Hour
	defaultCookieExpireDays   = 3
	defaultOTPTTL             = 10 * time.Minute
	defaultResetTokenTTL      = 15 * time.Minute
	defaultNotifyTimeout      = 15 * time.Second
	defaultMaxPendingAttempts = 3
	defaultRateLimitPerMinute = 5
	defaultSMTPPort           = 587
	defaultKafkaTopic         = "account-events"
	defaultFrontendURL        = "http://localhost:5173"
)

// SMTP holds outbound mail settings.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Configured reports whether enough settings are present to send mail.
func (s SMTP) Configured() bool {
	return s.Host != "" && s.From != ""
}

// Twilio holds voice call provider credentials.
type Twilio struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

// Configured reports whether every credential is present.
func (t Twilio) Configured() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.PhoneNumber != ""
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	MongoURI       string
	MongoDatabase  string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret        string
	SessionTTL       time.Duration
	CookieExpireDays int
	FrontendURL      string

	OTPTTL             time.Duration
	ResetTokenTTL      time.Duration
	NotifyTimeout      time.Duration
	MaxPendingAttempts int
	RateLimitPerMinute int

	SMTP   SMTP
	Twilio Twilio

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is applied first when present; real
// environment variables always win over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    getEnv("MONGO_DATABASE", defaultMongoDatabase),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		FrontendURL:      strings.TrimRight(getEnv("FRONTEND_URL", defaultFrontendURL), "/"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		CookieExpireDays: defaultCookieExpireDays,
		SMTP: SMTP{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     defaultSMTPPort,
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			FromName: getEnv("SMTP_FROM_NAME", defaultAppName),
		},
		Twilio: Twilio{
			AccountSID:  os.Getenv("TWILIO_SID"),
			AuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
			PhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),
		},
	}

	var err error
	durations := []struct {
		name     string
		dst      *time.Duration
		fallback time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod, defaultShutdownDelay},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL, defaultIdempotencyTTL},
		{"JWT_EXPIRE", &cfg.SessionTTL, defaultSessionTTL},
		{"OTP_TTL", &cfg.OTPTTL, defaultOTPTTL},
		{"RESET_TOKEN_TTL", &cfg.ResetTokenTTL, defaultResetTokenTTL},
		{"NOTIFY_TIMEOUT", &cfg.NotifyTimeout, defaultNotifyTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.name, d.fallback); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		name     string
		dst      *int
		fallback int
	}{
		{"COOKIE_EXPIRE", &cfg.CookieExpireDays, defaultCookieExpireDays},
		{"MAX_PENDING_ATTEMPTS", &cfg.MaxPendingAttempts, defaultMaxPendingAttempts},
		{"RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute, defaultRateLimitPerMinute},
		{"SMTP_PORT", &cfg.SMTP.Port, defaultSMTPPort},
	}
	for _, i := range ints {
		if *i.dst, err = getInt(i.name, i.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	if !cfg.IsDev() && cfg.MongoURI == "" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("MONGO_URI or DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}

	// Outside development codes and reset links must reach a real provider;
	// the logging fallback would write them to the log.
	if !cfg.IsDev() && !cfg.SMTP.Configured() {
		return Config{}, fmt.Errorf("SMTP_HOST and SMTP_FROM must be set when APP_ENV=%s", cfg.AppEnv)
	}
	if !cfg.IsDev() && !cfg.Twilio.Configured() {
		return Config{}, fmt.Errorf("TWILIO_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the application runs in a local/development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// CookieTTL is the lifetime of the session cookie.
func (c Config) CookieTTL() time.Duration {
	return time.Duration(c.CookieExpireDays) * 24 * time.Hour
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration reads KEY_SECONDS as an integer first, then KEY as a Go duration string.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
