package testutil

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/database"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	file        bool
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithFileDatabase backs the test database with a WAL file in t.TempDir() instead of
// memory. Use it when a test needs real concurrent connections.
func WithFileDatabase() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.file = true
	}
}

// MustOpenTestDB opens an isolated in-memory SQLite database for a single test.
// The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	dbCfg := database.Config{Driver: "sqlite", DSN: database.MemoryDSN(uuid.NewString())}
	if cfg.file {
		dbCfg = database.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.sqlite")}
	}
	db, err := database.Open(dbCfg)
	require.NoError(t, err)

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
