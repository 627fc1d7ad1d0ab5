package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/visionflow/agent/bytestream"
	"github.com/BaSui01/visionflow/agent/chatctx"
	"github.com/BaSui01/visionflow/agent/session"
)

// --- RecordingSink ---

// RecordingSink 记录所有发送到房间的回复
type RecordingSink struct {
	mu      sync.Mutex
	replies []session.Reply
	err     error
}

// NewRecordingSink 创建 RecordingSink
func NewRecordingSink() *RecordingSink { return &RecordingSink{} }

// WithError 让 SendReply 返回错误
func (s *RecordingSink) WithError(err error) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// SendReply 记录回复
func (s *RecordingSink) SendReply(ctx context.Context, reply session.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	return s.err
}

// Replies 返回已记录回复的副本
func (s *RecordingSink) Replies() []session.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Reply(nil), s.replies...)
}

// Len 返回已记录回复数
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

// --- FakeRoom ---

// FakeRoom 是内存中的 session.Room，可直接推送字节流
type FakeRoom struct {
	name     string
	registry *bytestream.Registry
}

// NewFakeRoom 创建 FakeRoom
func NewFakeRoom(name string) *FakeRoom {
	return &FakeRoom{name: name, registry: bytestream.NewRegistry()}
}

// Name 返回房间名
func (r *FakeRoom) Name() string { return r.name }

// RegisterByteStreamHandler 登记处理函数
func (r *FakeRoom) RegisterByteStreamHandler(topic string, h bytestream.Handler) error {
	return r.registry.Register(topic, h)
}

// SendStream 以给定分块向 topic 发送一个完整的流
func (r *FakeRoom) SendStream(topic, participant, name string, chunks ...[]byte) error {
	reader := bytestream.NewSliceReader(bytestream.Info{ID: name, Topic: topic, Name: name}, chunks...)
	if !r.registry.Dispatch(reader, participant) {
		return fmt.Errorf("no handler for topic %q", topic)
	}
	return nil
}

// OpenStream 打开一个在途流，由调用方推送分块并关闭
func (r *FakeRoom) OpenStream(topic, participant, name string) (*bytestream.PendingStream, error) {
	stream := bytestream.NewPendingStream(bytestream.Info{ID: name, Topic: topic, Name: name}, participant, 16)
	if !r.registry.Dispatch(stream, participant) {
		return nil, fmt.Errorf("no handler for topic %q", topic)
	}
	return stream, nil
}

// --- MemorySnapshotStore ---

// MemorySnapshotStore 是内存中的 chatctx.SnapshotStore
type MemorySnapshotStore struct {
	mu    sync.Mutex
	snaps map[string]*chatctx.ChatContext
	saves int
	err   error
}

// NewMemorySnapshotStore 创建 MemorySnapshotStore
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snaps: make(map[string]*chatctx.ChatContext)}
}

// WithError 让 Save 返回错误
func (m *MemorySnapshotStore) WithError(err error) *MemorySnapshotStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Save 保存快照
func (m *MemorySnapshotStore) Save(ctx context.Context, sessionID string, c *chatctx.ChatContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.snaps[sessionID] = c.Copy()
	return nil
}

// Load 读取快照
func (m *MemorySnapshotStore) Load(ctx context.Context, sessionID string) (*chatctx.ChatContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.snaps[sessionID]
	if !ok {
		return nil, fmt.Errorf("no snapshot for session %s", sessionID)
	}
	return c.Copy(), nil
}

// Saves 返回 Save 调用次数
func (m *MemorySnapshotStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
