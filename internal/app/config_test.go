package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "/var/log/hunarmitra/api.log", cfg.Logging.File.Path)
	require.Equal(t, 50, cfg.Logging.File.MaxSizeMB)
	require.Equal(t, 5, cfg.Logging.File.MaxBackups)
	require.True(t, cfg.Logging.File.Compress)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "hunarmitra-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.True(t, cfg.Emergency.AutoAssign)
	require.InDelta(t, 7.5, cfg.Emergency.SearchRadiusKm, 1e-9)
	require.Equal(t, 3, cfg.Emergency.MaxCandidates)
	require.Equal(t, 50, cfg.Emergency.CandidatePoolLimit)
	require.Equal(t, 90*time.Second, cfg.Emergency.ResponseTimeout)
	require.Equal(t, "@every 30s", cfg.Emergency.SweepSchedule)
	require.Equal(t, 2, cfg.Emergency.RateLimitPerMinute)

	require.True(t, cfg.Push.Enabled)
	require.Equal(t, 5, cfg.Push.MaxRetries)
	require.Equal(t, 250, cfg.Push.BatchSize)
	require.Equal(t, 2*time.Second, cfg.Push.BackoffBase)
	require.Equal(t, 5*time.Minute, cfg.Push.BackoffMax)
	require.Equal(t, 600, cfg.Push.RateLimitPerMinute)
	require.Equal(t, "hunarmitra-prod", cfg.Push.ProjectID)

	require.Equal(t, "redis", cfg.Queue.Backend)
	require.Equal(t, 8, cfg.Queue.Concurrency)
	require.Equal(t, 500*time.Millisecond, cfg.Queue.PollInterval)
	require.Equal(t, 16, cfg.Queue.Batch)
	require.Equal(t, 72*time.Hour, cfg.Queue.Retention)

	require.Equal(t, "mongo", cfg.Timeline.Backend)
	require.Equal(t, "hunarmitra_timeline", cfg.Timeline.MongoDatabase)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/hunarmitra.sqlite", cfg.Database.Path)
	require.False(t, cfg.Cache.Redis.Enabled)

	require.False(t, cfg.Emergency.AutoAssign)
	require.InDelta(t, 5.0, cfg.Emergency.SearchRadiusKm, 1e-9)
	require.Equal(t, 5, cfg.Emergency.MaxCandidates)
	require.Equal(t, 100, cfg.Emergency.CandidatePoolLimit)
	require.Equal(t, 45*time.Second, cfg.Emergency.ResponseTimeout)
	require.Equal(t, 1, cfg.Emergency.RateLimitPerMinute)

	require.False(t, cfg.Push.Enabled)
	require.Equal(t, 3, cfg.Push.MaxRetries)
	require.Equal(t, 100, cfg.Push.BatchSize)
	require.Equal(t, time.Second, cfg.Push.BackoffBase)
	require.Equal(t, 10*time.Minute, cfg.Push.BackoffMax)
	require.Equal(t, time.Minute, cfg.Push.RequeueAfter)
	require.Equal(t, "@every 1m", cfg.Push.RequeueSchedule)

	require.Equal(t, "database", cfg.Queue.Backend)
	require.Equal(t, 168*time.Hour, cfg.Queue.Retention)
	require.Equal(t, 5, cfg.Queue.MaxAttempts)
	require.Equal(t, time.Second, cfg.Queue.RetryBase)
	require.Equal(t, 5*time.Minute, cfg.Queue.RetryMax)
	require.Equal(t, "hunarmitra", cfg.Realtime.RedisChannelPrefix)
	require.Equal(t, "database", cfg.Timeline.Backend)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("HUNARMITRA_EMERGENCY_AUTO_ASSIGN", "true")
	t.Setenv("HUNARMITRA_PUSH_MAX_RETRIES", "7")
	t.Setenv("HUNARMITRA_SERVER_PORT", "8181")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.True(t, cfg.Emergency.AutoAssign)
	require.Equal(t, 7, cfg.Push.MaxRetries)
	require.Equal(t, 8181, cfg.Server.Port)
}

func TestLoadConfigExplicitFileMustExist(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "secret", Issuer: " hunarmitra "}}

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, "secret", jwtCfg.Secret)
	require.Equal(t, "hunarmitra", jwtCfg.Issuer)
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)
}

func TestDatabaseOpenConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "MySQL",
		MySQL: DBAuthConfig{
			Host:     "mysql.internal",
			Port:     3306,
			Database: "hunarmitra",
			Username: "dispatch",
			Password: "pw",
		},
		Postgres: DBAuthConfig{Host: "ignored"},
	}

	open := cfg.OpenConfig()
	require.Equal(t, "mysql", open.Driver)
	require.Equal(t, "mysql.internal", open.Host)
	require.Equal(t, "hunarmitra", open.Name)
	require.Equal(t, "dispatch", open.User)

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/x.sqlite", Postgres: DBAuthConfig{Host: "ignored"}}.OpenConfig()
	require.Equal(t, "./data/x.sqlite", sqlite.Path)
	require.Empty(t, sqlite.Host)
}

func TestServiceSettingsAdapters(t *testing.T) {
	emergency := EmergencyConfig{
		AutoAssign:         true,
		SearchRadiusKm:     3,
		MaxCandidates:      2,
		CandidatePoolLimit: 40,
		ResponseTimeout:    time.Minute,
		RateLimitPerMinute: 4,
	}
	settings := emergency.Settings()
	require.True(t, settings.AutoAssign)
	require.Equal(t, 4, settings.RateLimitPerMinute)
	require.InDelta(t, 3.0, settings.Dispatch.RadiusKm, 1e-9)
	require.Equal(t, 2, settings.Dispatch.MaxCandidates)
	require.Equal(t, 40, settings.Dispatch.PoolLimit)

	pushSettings := PushConfig{Enabled: true, BackoffBase: time.Minute, BackoffMax: time.Second}.Settings()
	require.True(t, pushSettings.Enabled)
	require.Equal(t, 3, pushSettings.MaxRetries)
	require.Equal(t, 100, pushSettings.BatchSize)
	require.Equal(t, time.Minute, pushSettings.BackoffBase)
	require.Equal(t, 10*time.Minute, pushSettings.BackoffMax)
}
