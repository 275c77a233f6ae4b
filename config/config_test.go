package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"DATABASE_URL": "postgres://localhost/tuition",
	})
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.RateLimit.MaxCallsPerDay)
	assert.Equal(t, "/api/v1/tuition/query", cfg.RateLimit.Endpoint)
	assert.Equal(t, BalanceLatest, cfg.Ledger.BalanceMode)
	assert.True(t, cfg.Ledger.AutoCreateStudents)
	assert.False(t, cfg.Ledger.BatchAutoCreateStudents)
	assert.Equal(t, int64(10<<20), cfg.Ledger.MaxUploadBytes)
	assert.Equal(t, 15*time.Second, cfg.App.ShutdownTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"STORAGE_DRIVER":                    "SQLite",
		"SQLITE_PATH":                       "/tmp/ledger.db",
		"RATE_LIMIT_MAX_PER_DAY":            "5",
		"LEDGER_BALANCE_MODE":               "sum",
		"LEDGER_BATCH_AUTO_CREATE_STUDENTS": "true",
	})
	require.NoError(t, err)

	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.RateLimit.MaxCallsPerDay)
	assert.Equal(t, BalanceSum, cfg.Ledger.BalanceMode)
	assert.True(t, cfg.Ledger.BatchAutoCreateStudents)
}

func TestLoadFrom_CollectsAllErrors(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"STORAGE_DRIVER":         "postgres",
		"LEDGER_BALANCE_MODE":    "average",
		"RATE_LIMIT_MAX_PER_DAY": "0",
		"RATE_LIMIT_BACKEND":     "redis",
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL is required")
	assert.Contains(t, msg, "LEDGER_BALANCE_MODE must be latest or sum")
	assert.Contains(t, msg, "RATE_LIMIT_MAX_PER_DAY must be at least 1")
	assert.Contains(t, msg, "RATE_LIMIT_BACKEND=redis requires REDIS_DISABLED=false")
}

func TestLoadFrom_MemoryRejectedInProduction(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"APP_ENV":        "production",
		"STORAGE_DRIVER": "memory",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed in production")
}

func TestLoadFrom_BadDuration(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"STORAGE_DRIVER":       "memory",
		"APP_SHUTDOWN_TIMEOUT": "soon",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestSchedulerConfig_DailyPurgeOffset(t *testing.T) {
	_, ok, err := SchedulerConfig{}.DailyPurgeOffset()
	require.NoError(t, err)
	assert.False(t, ok)

	at, ok, err := SchedulerConfig{PurgeAt: "03:30"}.DailyPurgeOffset()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Hour+30*time.Minute, at)

	_, err = LoadFrom(map[string]string{
		"STORAGE_DRIVER":     "memory",
		"SCHEDULER_PURGE_AT": "3am",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULER_PURGE_AT must be HH:MM")
}

func TestLoad_DotEnvFillsUnsetVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STORAGE_DRIVER=memory\nRATE_LIMIT_MAX_PER_DAY=9\n"), 0o600))

	t.Setenv("ENV_FILE", path)
	t.Setenv("RATE_LIMIT_MAX_PER_DAY", "5")
	t.Cleanup(func() { os.Unsetenv("STORAGE_DRIVER") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.RateLimit.MaxCallsPerDay)
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	_, err := Load()
	assert.ErrorContains(t, err, "absent.env")
}
