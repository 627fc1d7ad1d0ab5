package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/types"
)

// Kind identifies how an image reached the worker.
type Kind string

const (
	KindReceived Kind = "received"
	KindFetched  Kind = "fetched"
)

// Artifact is the metadata of one persisted image.
type Artifact struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        Kind       `json:"kind"`
	Participant string     `json:"participant,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
	MimeType    string     `json:"mime_type,omitempty"`
	Size        int64      `json:"size"`
	Checksum    string     `json:"checksum"`
	StoragePath string     `json:"storage_path"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Query filters index listings. Results are ordered oldest first.
type Query struct {
	SessionID     string
	Kind          Kind
	Participant   string
	CreatedBefore time.Time
	Limit         int
}

// Index stores artifact metadata. Put replaces any entry with the same Name.
type Index interface {
	Put(ctx context.Context, artifact *Artifact) error
	Get(ctx context.Context, id string) (*Artifact, error)
	List(ctx context.Context, query Query) ([]*Artifact, error)
	Delete(ctx context.Context, id string) error
}

// ErrNotFound is returned by indexes for unknown ids.
var ErrNotFound = errors.New("artifact not found")

// Config configures the Manager.
type Config struct {
	Dir             string        `yaml:"dir" env:"DIR"`
	Index           string        `yaml:"index" env:"INDEX"`
	MaxAge          time.Duration `yaml:"max_age" env:"MAX_AGE"`
	MaxFiles        int           `yaml:"max_files" env:"MAX_FILES"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// DefaultConfig returns the default artifact settings.
func DefaultConfig() Config {
	return Config{
		Dir:             ".",
		Index:           "file",
		MaxAge:          24 * time.Hour,
		MaxFiles:        1000,
		CleanupInterval: 10 * time.Minute,
	}
}

// Manager persists images under Dir and tracks them in an Index.
type Manager struct {
	dir       string
	index     Index
	config    Config
	logger    *zap.Logger
	now       func() time.Time
	cleanupMu sync.Mutex
}

// NewManager creates the artifact directory and a manager over it.
func NewManager(config Config, index Index, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Dir == "" {
		config.Dir = "."
	}
	if index == nil {
		return nil, fmt.Errorf("artifact index is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &Manager{
		dir:    config.Dir,
		index:  index,
		config: config,
		logger: logger.With(zap.String("component", "artifact_manager")),
		now:    time.Now,
	}, nil
}

// Dir returns the directory images are written to.
func (m *Manager) Dir() string { return m.dir }

// ReceivedName is the file name of an image streamed by participant at t.
func ReceivedName(participant string, t time.Time) string {
	return fmt.Sprintf("received_image_%s_%d.png", safeIdentity(participant), t.Unix())
}

// FetchedName is the file name of an image fetched at t.
func FetchedName(t time.Time) string {
	return fmt.Sprintf("fetched_image_%d.png", t.Unix())
}

// safeIdentity keeps identities from escaping the artifact directory.
func safeIdentity(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(s)
}

// SaveReceived persists an image streamed by participant.
func (m *Manager) SaveReceived(ctx context.Context, participant string, data []byte, opts ...SaveOption) (*Artifact, error) {
	now := m.now()
	opts = append(opts, withParticipant(participant))
	return m.save(ctx, ReceivedName(participant, now), KindReceived, now, data, opts...)
}

// SaveFetched persists an image downloaded from sourceURL.
func (m *Manager) SaveFetched(ctx context.Context, sourceURL string, data []byte, opts ...SaveOption) (*Artifact, error) {
	now := m.now()
	opts = append(opts, withSourceURL(sourceURL))
	return m.save(ctx, FetchedName(now), KindFetched, now, data, opts...)
}

func (m *Manager) save(ctx context.Context, name string, kind Kind, now time.Time, data []byte, opts ...SaveOption) (*Artifact, error) {
	options := &saveOptions{}
	for _, opt := range opts {
		opt(options)
	}

	artifact := &Artifact{
		ID:          uuid.NewString(),
		Name:        name,
		Kind:        kind,
		Participant: options.participant,
		SessionID:   options.sessionID,
		SourceURL:   options.sourceURL,
		MimeType:    options.mimeType,
		Size:        int64(len(data)),
		Checksum:    computeChecksum(data),
		StoragePath: filepath.Join(m.dir, name),
		CreatedAt:   now,
	}
	if m.config.MaxAge > 0 {
		expiresAt := now.Add(m.config.MaxAge)
		artifact.ExpiresAt = &expiresAt
	}

	if err := os.WriteFile(artifact.StoragePath, data, 0o644); err != nil {
		return nil, types.NewError(types.ErrArtifactWrite, fmt.Sprintf("write %s", name)).WithCause(err)
	}
	if err := m.index.Put(ctx, artifact); err != nil {
		// The image is on disk; only retention bookkeeping is lost.
		m.logger.Warn("failed to index artifact",
			zap.String("name", name),
			zap.Error(err))
	}

	m.logger.Info("artifact saved",
		zap.String("id", artifact.ID),
		zap.String("name", name),
		zap.String("kind", string(kind)),
		zap.Int64("size", artifact.Size))
	return artifact, nil
}

// Get returns artifact metadata.
func (m *Manager) Get(ctx context.Context, id string) (*Artifact, error) {
	return m.index.Get(ctx, id)
}

// ReadData returns the bytes of an artifact.
func (m *Manager) ReadData(ctx context.Context, id string) ([]byte, error) {
	artifact, err := m.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(artifact.StoragePath)
}

// List lists artifacts matching query.
func (m *Manager) List(ctx context.Context, query Query) ([]*Artifact, error) {
	return m.index.List(ctx, query)
}

// Delete removes an artifact file and its index entry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	artifact, err := m.index.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(artifact.StoragePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact file: %w", err)
	}
	return m.index.Delete(ctx, id)
}

// Cleanup applies the retention policy: entries older than MaxAge go first,
// then the oldest entries beyond MaxFiles. Zero disables a rule.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	m.cleanupMu.Lock()
	defer m.cleanupMu.Unlock()

	all, err := m.index.List(ctx, Query{})
	if err != nil {
		return 0, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	now := m.now()
	var doomed []*Artifact
	var kept []*Artifact
	for _, a := range all {
		if m.config.MaxAge > 0 && now.Sub(a.CreatedAt) > m.config.MaxAge {
			doomed = append(doomed, a)
			continue
		}
		kept = append(kept, a)
	}
	if m.config.MaxFiles > 0 && len(kept) > m.config.MaxFiles {
		excess := len(kept) - m.config.MaxFiles
		doomed = append(doomed, kept[:excess]...)
	}

	deleted := 0
	for _, a := range doomed {
		if err := m.Delete(ctx, a.ID); err != nil {
			m.logger.Warn("failed to delete artifact",
				zap.String("id", a.ID),
				zap.String("name", a.Name),
				zap.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Info("artifact cleanup completed", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// RunJanitor runs Cleanup every CleanupInterval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context) error {
	interval := m.config.CleanupInterval
	if interval <= 0 || (m.config.MaxAge <= 0 && m.config.MaxFiles <= 0) {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Cleanup(ctx); err != nil {
				m.logger.Warn("artifact cleanup failed", zap.Error(err))
			}
		}
	}
}

// SaveOption configures a save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	participant string
	sessionID   string
	sourceURL   string
	mimeType    string
}

func WithSessionID(sessionID string) SaveOption {
	return func(o *saveOptions) { o.sessionID = sessionID }
}

func WithMimeType(mimeType string) SaveOption {
	return func(o *saveOptions) { o.mimeType = mimeType }
}

func withParticipant(participant string) SaveOption {
	return func(o *saveOptions) { o.participant = participant }
}

func withSourceURL(u string) SaveOption {
	return func(o *saveOptions) { o.sourceURL = u }
}

func computeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
