package chatctx

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/internal/cache"
	"github.com/BaSui01/visionflow/types"
)

// SnapshotStore persists serialized chat contexts keyed by session ID.
type SnapshotStore interface {
	Save(ctx context.Context, sessionID string, c *ChatContext) error
	Load(ctx context.Context, sessionID string) (*ChatContext, error)
}

type snapshot struct {
	SessionID string          `json:"session_id"`
	SavedAt   time.Time       `json:"saved_at"`
	Messages  []types.Message `json:"messages"`
}

// RedisSnapshotStore keeps the latest snapshot of every session in Redis.
type RedisSnapshotStore struct {
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSnapshotStore creates a Redis backed snapshot store.
func NewRedisSnapshotStore(m *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisSnapshotStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSnapshotStore{
		cache:  m,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "chatctx_snapshot")),
	}
}

func (s *RedisSnapshotStore) key(sessionID string) string {
	return s.cache.Key("chatctx", sessionID)
}

// Save writes the snapshot, overwriting the previous one.
func (s *RedisSnapshotStore) Save(ctx context.Context, sessionID string, c *ChatContext) error {
	snap := snapshot{
		SessionID: sessionID,
		SavedAt:   time.Now(),
		Messages:  c.Messages(),
	}
	if err := s.cache.SetJSON(ctx, s.key(sessionID), snap, s.ttl); err != nil {
		return fmt.Errorf("save chat context snapshot: %w", err)
	}
	s.logger.Debug("chat context snapshot saved",
		zap.String("session_id", sessionID),
		zap.Int("messages", len(snap.Messages)))
	return nil
}

// Load reads the latest snapshot. A missing snapshot is cache.ErrCacheMiss.
func (s *RedisSnapshotStore) Load(ctx context.Context, sessionID string) (*ChatContext, error) {
	var snap snapshot
	if err := s.cache.GetJSON(ctx, s.key(sessionID), &snap); err != nil {
		return nil, fmt.Errorf("load chat context snapshot: %w", err)
	}
	return New(snap.Messages...), nil
}
