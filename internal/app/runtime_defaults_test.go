package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	require.Len(t, cfg.Auth.JWT.Secret, jwtSecretBytes*2)
	require.True(t, generated["auth.jwt.secret"])
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, 45*time.Second, cfg.Emergency.ResponseTimeout)
	require.Equal(t, "@every 60s", cfg.Emergency.SweepSchedule)
}

func TestApplyRuntimeDefaultsPreservesExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)
	cfg.Server.Port = 9090
	cfg.Emergency.ResponseTimeout = 2 * time.Minute

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("a", 10), cfg.Auth.JWT.Secret)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2*time.Minute, cfg.Emergency.ResponseTimeout)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}

func TestGenerateHexKey(t *testing.T) {
	key, err := generateHexKey(4)
	require.NoError(t, err)
	require.Len(t, key, 8)

	_, err = generateHexKey(0)
	require.Error(t, err)
}
