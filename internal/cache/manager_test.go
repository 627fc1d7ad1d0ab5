package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.DefaultTTL = time.Minute
	config.HealthCheckInterval = 0

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = manager.Close()
		mr.Close()
	})
	return mr, manager
}

func TestNewManager_Unreachable(t *testing.T) {
	config := DefaultConfig()
	config.Addr = "127.0.0.1:1"
	config.MaxRetries = 0

	_, err := NewManager(config, nil)
	assert.Error(t, err)
}

func TestManager_Key(t *testing.T) {
	_, manager := setupTestRedis(t)
	assert.Equal(t, "visionflow:chatctx:abc", manager.Key("chatctx", "abc"))

	manager.config.KeyPrefix = ""
	assert.Equal(t, "chatctx:abc", manager.Key("chatctx", "abc"))
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetMiss(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "", value)
}

func TestManager_JSONRoundTrip(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, manager.SetJSON(ctx, "json-key", payload{Name: "x", Count: 2}, 0))

	var got payload
	require.NoError(t, manager.GetJSON(ctx, "json-key", &got))
	assert.Equal(t, payload{Name: "x", Count: 2}, got)
}

func TestManager_GetJSONInvalid(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "bad", "{not json", 0))

	var dest map[string]any
	assert.Error(t, manager.GetJSON(ctx, "bad", &dest))
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ttl-key", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("ttl-key"))

	mr.FastForward(2 * time.Minute)
	_, err := manager.Get(ctx, "ttl-key")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	require.NoError(t, manager.Delete(ctx, "k"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_ClosedRejects(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, manager.Healthy())
}

func TestManager_NegativeTTLPersists(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "forever", "v", -1))
	assert.Zero(t, mr.TTL("forever"))

	mr.FastForward(48 * time.Hour)
	value, err := manager.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestManager_HealthTracksPing(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Ping(ctx))
	assert.True(t, manager.Healthy())

	mr.SetError("ERR simulated outage")
	assert.Error(t, manager.Ping(ctx))
	assert.False(t, manager.Healthy())

	mr.SetError("")
	require.NoError(t, manager.Ping(ctx))
	assert.True(t, manager.Healthy())
}

func TestManager_HealthCheckStopsOnClose(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.HealthCheckInterval = 5 * time.Millisecond
	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.True(t, manager.Healthy())
	require.NoError(t, manager.Close())
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.Set(ctx, "shared", "v", 0))
			_, _ = manager.Get(ctx, "shared")
		}()
	}
	wg.Wait()
}
