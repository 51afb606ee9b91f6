package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "proserve-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	require.Equal(t, "whsec_123", cfg.Stripe.WebhookSecret)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, "https://app.example.com", cfg.URLs.Frontend)
	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.False(t, cfg.Cleanup.Enabled)
	require.Equal(t, "@hourly", cfg.Cleanup.TokenSchedule)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/proserve.sqlite", cfg.Database.Path)
	require.Equal(t, "proserve", cfg.Auth.JWT.Issuer)
	require.Equal(t, 24*time.Hour, cfg.Auth.JWT.TTL)
	require.False(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "http://localhost:3000", cfg.URLs.Frontend)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Cleanup.Enabled)
	require.Equal(t, "@daily", cfg.Cleanup.TokenSchedule)
}

func TestDatabaseSettingsSelectsDriverBlock(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Driver: "postgres",
			Postgres: DBAuthConfig{
				Host:     "pg.internal",
				Port:     5432,
				Database: "proserve",
				Username: "svc",
				Password: "pw",
			},
			MySQL: DBAuthConfig{Host: "mysql.internal"},
		},
	}

	settings := cfg.DatabaseSettings()
	require.Equal(t, "pg.internal", settings.Host)
	require.Equal(t, 5432, settings.Port)
	require.Equal(t, "proserve", settings.Name)
	require.Equal(t, "svc", settings.User)
	require.Equal(t, "pw", settings.Password)

	cfg.Database.Driver = "mysql"
	settings = cfg.DatabaseSettings()
	require.Equal(t, "mysql.internal", settings.Host)
}
