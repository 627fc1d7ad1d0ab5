package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFileManager(t *testing.T, cfg Config) (*Manager, *fakeClock) {
	t.Helper()
	cfg.Dir = t.TempDir()
	idx, err := NewFileIndex(cfg.Dir)
	require.NoError(t, err)
	m, err := NewManager(cfg, idx, nil)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	m.now = clock.now
	return m, clock
}

func newGormManager(t *testing.T, cfg Config) (*Manager, *fakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	idx, err := NewGormIndex(db)
	require.NoError(t, err)
	cfg.Dir = t.TempDir()
	m, err := NewManager(cfg, idx, nil)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	m.now = clock.now
	return m, clock
}

func TestNames(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	assert.Equal(t, "received_image_alice_1700000000.png", ReceivedName("alice", ts))
	assert.Equal(t, "fetched_image_1700000000.png", FetchedName(ts))
	assert.Equal(t, "received_image__etc_passwd_1700000000.png", ReceivedName("/etc/passwd", ts))
}

func TestManager_SaveReceivedWritesExactBytes(t *testing.T) {
	m, _ := newFileManager(t, Config{})
	ctx := context.Background()

	a, err := m.SaveReceived(ctx, "alice", []byte("ABCDEF"), WithSessionID("s1"), WithMimeType("image/png"))
	require.NoError(t, err)

	assert.Equal(t, "received_image_alice_1700000000.png", a.Name)
	assert.Equal(t, KindReceived, a.Kind)
	assert.Equal(t, "alice", a.Participant)
	assert.Equal(t, int64(6), a.Size)
	assert.Len(t, a.Checksum, 64)

	onDisk, err := os.ReadFile(filepath.Join(m.Dir(), a.Name))
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCDEF"), onDisk)

	data, err := m.ReadData(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCDEF"), data)
}

func TestManager_SaveFetched(t *testing.T) {
	m, _ := newFileManager(t, Config{MaxAge: time.Hour})

	a, err := m.SaveFetched(context.Background(), "http://example.com/cat.jpg", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "fetched_image_1700000000.png", a.Name)
	assert.Equal(t, KindFetched, a.Kind)
	assert.Equal(t, "http://example.com/cat.jpg", a.SourceURL)
	require.NotNil(t, a.ExpiresAt)
	assert.Equal(t, a.CreatedAt.Add(time.Hour), *a.ExpiresAt)
}

func TestManager_SameSecondOverwrites(t *testing.T) {
	m, _ := newFileManager(t, Config{})
	ctx := context.Background()

	_, err := m.SaveFetched(ctx, "u1", []byte("first"))
	require.NoError(t, err)
	second, err := m.SaveFetched(ctx, "u2", []byte("second"))
	require.NoError(t, err)

	all, err := m.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second.ID, all[0].ID)

	onDisk, err := os.ReadFile(second.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), onDisk)
}

func TestManager_WriteFailure(t *testing.T) {
	m, _ := newFileManager(t, Config{})
	require.NoError(t, os.RemoveAll(m.Dir()))
	require.NoError(t, os.WriteFile(m.Dir(), []byte("not a dir"), 0o644))

	_, err := m.SaveFetched(context.Background(), "u", []byte("x"))
	require.Error(t, err)
}

func testRetention(t *testing.T, newManager func(*testing.T, Config) (*Manager, *fakeClock)) {
	ctx := context.Background()

	t.Run("max age", func(t *testing.T) {
		m, clock := newManager(t, Config{MaxAge: time.Hour})
		old, err := m.SaveReceived(ctx, "alice", []byte("old"))
		require.NoError(t, err)
		clock.advance(2 * time.Hour)
		fresh, err := m.SaveReceived(ctx, "alice", []byte("fresh"))
		require.NoError(t, err)

		deleted, err := m.Cleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		_, err = m.Get(ctx, old.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = os.Stat(old.StoragePath)
		assert.True(t, os.IsNotExist(err))

		_, err = m.Get(ctx, fresh.ID)
		assert.NoError(t, err)
	})

	t.Run("max files keeps newest", func(t *testing.T) {
		m, clock := newManager(t, Config{MaxFiles: 2})
		var ids []string
		for i := 0; i < 4; i++ {
			a, err := m.SaveFetched(ctx, "u", []byte{byte(i)})
			require.NoError(t, err)
			ids = append(ids, a.ID)
			clock.advance(time.Second)
		}

		deleted, err := m.Cleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		left, err := m.List(ctx, Query{})
		require.NoError(t, err)
		require.Len(t, left, 2)
		assert.Equal(t, ids[2], left[0].ID)
		assert.Equal(t, ids[3], left[1].ID)
	})

	t.Run("disabled rules keep everything", func(t *testing.T) {
		m, clock := newManager(t, Config{})
		for i := 0; i < 3; i++ {
			_, err := m.SaveFetched(ctx, "u", []byte{byte(i)})
			require.NoError(t, err)
			clock.advance(48 * time.Hour)
		}
		deleted, err := m.Cleanup(ctx)
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("query filters", func(t *testing.T) {
		m, clock := newManager(t, Config{})
		_, err := m.SaveReceived(ctx, "alice", []byte("a"), WithSessionID("s1"))
		require.NoError(t, err)
		clock.advance(time.Second)
		_, err = m.SaveReceived(ctx, "bob", []byte("b"), WithSessionID("s2"))
		require.NoError(t, err)
		clock.advance(time.Second)
		_, err = m.SaveFetched(ctx, "u", []byte("c"), WithSessionID("s1"))
		require.NoError(t, err)

		got, err := m.List(ctx, Query{Kind: KindReceived})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = m.List(ctx, Query{SessionID: "s1"})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = m.List(ctx, Query{Participant: "bob"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "bob", got[0].Participant)

		got, err = m.List(ctx, Query{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "alice", got[0].Participant)
	})
}

func TestRetention_FileIndex(t *testing.T) { testRetention(t, newFileManager) }

func TestRetention_GormIndex(t *testing.T) { testRetention(t, newGormManager) }

func TestFileIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewFileIndex(dir)
	require.NoError(t, err)

	a := &Artifact{ID: "a1", Name: "fetched_image_1.png", Kind: KindFetched, CreatedAt: time.Unix(1, 0)}
	require.NoError(t, idx.Put(context.Background(), a))

	reopened, err := NewFileIndex(dir)
	require.NoError(t, err)
	got, err := reopened.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, a.Name, got.Name)
	assert.Equal(t, KindFetched, got.Kind)
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	m, _ := newFileManager(t, Config{MaxFiles: 1, CleanupInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.RunJanitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
