package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrCacheMiss is returned when a key does not exist or has expired.
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// =============================================================================
// 💾 Redis 管理器
// =============================================================================

// Config 缓存配置
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// KeyPrefix namespaces every key built by Key.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// DefaultTTL applies when Set is called with ttl 0.
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	PoolSize   int `yaml:"pool_size" json:"pool_size"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "visionflow",
		DefaultTTL:          24 * time.Hour,
		MaxRetries:          3,
		PoolSize:            10,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager wraps a Redis client with key namespacing, JSON helpers and a
// background health check.
type Manager struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	closed  atomic.Bool
	healthy atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager connects to Redis and fails fast when the server is unreachable.
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		done:   make(chan struct{}),
	}
	m.healthy.Store(true)

	if config.HealthCheckInterval > 0 {
		m.wg.Add(1)
		go m.healthLoop(config.HealthCheckInterval)
	}

	m.logger.Info("redis connected",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
	)
	return m, nil
}

// Key joins parts with ":" under the configured prefix:
//
//	Key("chatctx", "abc") -> visionflow:chatctx:abc
func (m *Manager) Key(parts ...string) string {
	key := strings.Join(parts, ":")
	if m.config.KeyPrefix == "" {
		return key
	}
	return m.config.KeyPrefix + ":" + key
}

func (m *Manager) conn() (*redis.Client, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.client, nil
}

// =============================================================================
// 🎯 读写
// =============================================================================

// Get returns ErrCacheMiss for absent keys.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	c, err := m.conn()
	if err != nil {
		return "", err
	}
	val, err := c.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrCacheMiss
	case err != nil:
		m.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value. A zero ttl uses DefaultTTL, a negative ttl keeps the key
// until it is deleted.
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c, err := m.conn()
	if err != nil {
		return err
	}
	switch {
	case ttl == 0:
		ttl = m.config.DefaultTTL
	case ttl < 0:
		ttl = 0
	}
	if err := c.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value stored at key into dest.
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and stores it with Set's ttl rules.
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete removes keys; deleting nothing is not an error.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	c, err := m.conn()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.Del(ctx, keys...).Err(); err != nil {
		m.logger.Warn("redis delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// Ping checks the connection and records the outcome for Healthy.
func (m *Manager) Ping(ctx context.Context) error {
	c, err := m.conn()
	if err != nil {
		return err
	}
	err = c.Ping(ctx).Err()
	m.healthy.Store(err == nil)
	return err
}

// Healthy reports the result of the most recent Ping.
func (m *Manager) Healthy() bool {
	return !m.closed.Load() && m.healthy.Load()
}

func (m *Manager) healthLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			wasHealthy := m.healthy.Load()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.Ping(ctx)
			cancel()
			switch {
			case err != nil && wasHealthy:
				m.logger.Error("redis became unreachable", zap.Error(err))
			case err == nil && !wasHealthy:
				m.logger.Info("redis reachable again")
			}
		}
	}
}

// Close stops the health check and closes the client. Repeated calls are no-ops.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.done)
	m.wg.Wait()
	m.logger.Info("closing redis connection")
	return m.client.Close()
}
