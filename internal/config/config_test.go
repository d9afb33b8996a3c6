package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("RECONCILE_INTERVAL_SECONDS", "")
	t.Setenv("NOTIFY_TIMEOUT_SECONDS", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	require.Equal(t, 30*time.Second, cfg.Reconcile.Interval())
	require.Equal(t, 24*time.Hour, cfg.Idempotency.TTL())
	require.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	require.Equal(t, 5*time.Second, cfg.Notification.Timeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/v.db")
	t.Setenv("RECONCILE_MAX_ATTEMPTS", "4")
	t.Setenv("TREASURY_RETRY_MAX", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	require.Equal(t, "/tmp/v.db", cfg.SQLite.Path)
	require.Equal(t, 4, cfg.Reconcile.MaxAttempts)
	require.Equal(t, 3, cfg.Treasury.RetryMax)
}

func TestLoadRejectsBadDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "")
	_, err = Load()
	require.Error(t, err)
}

func TestZeroDurations(t *testing.T) {
	require.Zero(t, AppConfig{RequestTimeoutSeconds: -1}.RequestTimeout())
	require.Zero(t, ReconcileConfig{}.PendingGrace())
}
