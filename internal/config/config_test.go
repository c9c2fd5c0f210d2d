package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 15*time.Minute, cfg.ResetTokenTTL)
	assert.Equal(t, 3, cfg.MaxPendingAttempts)
	assert.Equal(t, 72*time.Hour, cfg.CookieTTL())
	assert.True(t, cfg.IsDev())
	assert.False(t, cfg.SMTP.Configured())
	assert.False(t, cfg.Twilio.Configured())
}

func setProviders(t *testing.T) {
	t.Helper()
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")
	t.Setenv("TWILIO_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15005550006")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	setProviders(t)
	t.Setenv("PORT", ":9090")
	t.Setenv("OTP_TTL_SECONDS", "120")
	t.Setenv("RESET_TOKEN_TTL", "30m")
	t.Setenv("COOKIE_EXPIRE", "7")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 2*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 30*time.Minute, cfg.ResetTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.CookieTTL())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "https://app.example.com", cfg.FrontendURL)
	assert.False(t, cfg.IsDev())
	assert.True(t, cfg.SMTP.Configured())
	assert.True(t, cfg.Twilio.Configured())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresStoreOutsideDev(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("MONGO_URI", "")
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OTP_TTL", "ten minutes")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresProvidersOutsideDev(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	setProviders(t)

	t.Setenv("SMTP_HOST", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP_HOST")

	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("TWILIO_SID", "")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWILIO_SID")
}

func TestLoadAllowsLogDeliveryInDev(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "development")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("TWILIO_SID", "")

	_, err := Load()
	assert.NoError(t, err)
}
