package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.BotToken)
	assert.Equal(t, int64(100), cfg.AdminID)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "data/support.db", cfg.DBPath)
	assert.Equal(t, 5, cfg.MaxPerMinute)
	assert.Equal(t, 30, cfg.MaxPerHour)
	assert.Equal(t, 7*24*time.Hour, cfg.RateRetention)
	assert.Equal(t, 500*time.Millisecond, cfg.AlbumWindow)
	assert.Equal(t, 4096, cfg.CorrelationLimit)
	assert.Equal(t, ":8080", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "100")
	t.Setenv("TECH_MANAGER_ID", "200")
	t.Setenv("MONITOR_ID", "300")
	t.Setenv("MAX_MESSAGES_PER_MINUTE", "10")
	t.Setenv("MAX_MESSAGES_PER_HOUR", "60")
	t.Setenv("ALBUM_WINDOW", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(200), cfg.TechManagerID)
	assert.Equal(t, int64(300), cfg.MonitorID)
	assert.Equal(t, 10, cfg.MaxPerMinute)
	assert.Equal(t, 60, cfg.MaxPerHour)
	assert.Equal(t, 750*time.Millisecond, cfg.AlbumWindow)
}

func TestLoad_RequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("ADMIN_ID", "100")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_TOKEN")
}

func TestLoad_RequiresAdmin(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_ID")
}

func TestLoad_PostgresNeedsDSN(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "100")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/support?sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "100")
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}
