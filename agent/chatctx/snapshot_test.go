package chatctx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/internal/cache"
	"github.com/BaSui01/visionflow/types"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisSnapshotStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	m, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = m.Close()
		mr.Close()
	})
	return mr, NewRedisSnapshotStore(m, time.Hour, nil)
}

func TestRedisSnapshotStore_SaveLoad(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	c := New()
	c.AddMessage(types.RoleUser, types.TextPart("hi"))
	c.AddMessage(types.RoleUser, imagePart("AA"))

	require.NoError(t, store.Save(ctx, "sess-1", c))
	assert.True(t, mr.Exists("visionflow:chatctx:sess-1"))
	assert.Equal(t, time.Hour, mr.TTL("visionflow:chatctx:sess-1"))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	msgs := loaded.Messages()
	assert.Equal(t, "hi", msgs[0].Text())
	require.Len(t, msgs[1].Images(), 1)
	assert.Equal(t, "AA", msgs[1].Images()[0].Data)
}

func TestRedisSnapshotStore_LoadMissing(t *testing.T) {
	_, store := newTestStore(t)

	_, err := store.Load(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, cache.IsCacheMiss(err))
}
