package database

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func memoryConfig() Config {
	pool := DefaultPoolConfig()
	pool.MaxOpenConns = 1
	pool.HealthCheckInterval = 0
	return Config{Driver: DriverSQLite, DSN: ":memory:", Pool: pool}
}

func TestOpen_SQLite(t *testing.T) {
	pm, err := Open(memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	require.NoError(t, pm.Ping(context.Background()))
	assert.Equal(t, 1, pm.Stats().MaxOpenConnections)

	type row struct {
		ID   uint
		Name string
	}
	require.NoError(t, pm.DB().AutoMigrate(&row{}))
	require.NoError(t, pm.DB().Create(&row{Name: "a"}).Error)

	var count int64
	require.NoError(t, pm.DB().Model(&row{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")

	_, err = Open(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_CloseIsIdempotent(t *testing.T) {
	pm, err := Open(memoryConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())

	assert.ErrorIs(t, pm.Ping(context.Background()), ErrClosed)
}

func TestPoolManager_HealthCheckStopsOnClose(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := DefaultPoolConfig()
	cfg.HealthCheckInterval = 5 * time.Millisecond
	pm, err := NewPoolManager(db, cfg, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pm.Close())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLogLevel(""))
	assert.Equal(t, gormlogger.Error, parseLogLevel("ERROR"))
	assert.Equal(t, gormlogger.Warn, parseLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, parseLogLevel("info"))
}

func TestOpen_LogsStatementsThroughZap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := memoryConfig()
	cfg.LogLevel = "info"

	pm, err := Open(cfg, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	require.NoError(t, pm.DB().Exec("SELECT 1").Error)
	assert.NotZero(t, logs.FilterLoggerName("gorm").FilterMessageSnippet("SELECT 1").Len())
}
