package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/agent/bytestream"
	"github.com/BaSui01/visionflow/agent/session"
	"github.com/BaSui01/visionflow/agent/streaming"
	"github.com/BaSui01/visionflow/types"
)

// Room is a named space shared by participants and one agent session. It
// routes inbound byte streams to topic handlers and broadcasts replies.
type Room struct {
	name     string
	registry *bytestream.Registry
	logger   *zap.Logger

	mu           sync.RWMutex
	participants map[string]streaming.FrameConnection
}

// NewRoom creates an empty room.
func NewRoom(name string, logger *zap.Logger) *Room {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Room{
		name:         name,
		registry:     bytestream.NewRegistry(),
		logger:       logger.With(zap.String("component", "room"), zap.String("room", name)),
		participants: make(map[string]streaming.FrameConnection),
	}
}

func (r *Room) Name() string { return r.name }

// RegisterByteStreamHandler binds h to topic. A topic can be bound once.
func (r *Room) RegisterByteStreamHandler(topic string, h bytestream.Handler) error {
	return r.registry.Register(topic, h)
}

// Dispatch hands a newly opened stream to its topic handler.
func (r *Room) Dispatch(reader bytestream.Reader, participant string) bool {
	return r.registry.Dispatch(reader, participant)
}

// Join adds a participant. An identity can be connected once.
func (r *Room) Join(identity string, conn streaming.FrameConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.participants[identity]; exists {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("participant %q is already in room %q", identity, r.name))
	}
	r.participants[identity] = conn
	r.logger.Info("participant joined", zap.String("participant", identity))
	return nil
}

// Leave removes a participant and returns how many remain.
func (r *Room) Leave(identity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[identity]; ok {
		delete(r.participants, identity)
		r.logger.Info("participant left", zap.String("participant", identity))
	}
	return len(r.participants)
}

// Participants returns the connected identities in sorted order.
func (r *Room) Participants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast writes f to every participant. Write failures are joined; a
// failing participant does not stop delivery to the others.
func (r *Room) Broadcast(ctx context.Context, f streaming.Frame) error {
	r.mu.RLock()
	conns := make(map[string]streaming.FrameConnection, len(r.participants))
	for id, c := range r.participants {
		conns[id] = c
	}
	r.mu.RUnlock()

	if f.Room == "" {
		f.Room = r.name
	}
	var errs []error
	for id, c := range conns {
		if err := c.WriteFrame(ctx, f); err != nil {
			r.logger.Warn("failed to deliver frame",
				zap.String("participant", id),
				zap.String("type", string(f.Type)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// SendReply broadcasts an agent reply. It makes the room the session's
// ReplySink.
func (r *Room) SendReply(ctx context.Context, reply session.Reply) error {
	ts := reply.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return r.Broadcast(ctx, streaming.Frame{
		Type:      streaming.FrameAgentReply,
		ID:        reply.ID,
		Text:      reply.Text,
		SessionID: reply.SessionID,
		IsFinal:   true,
		Timestamp: ts,
	})
}

// Disconnect closes every participant connection, ending their read loops.
func (r *Room) Disconnect() {
	r.mu.RLock()
	conns := make([]streaming.FrameConnection, 0, len(r.participants))
	for _, c := range r.participants {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

var (
	_ session.Room      = (*Room)(nil)
	_ session.ReplySink = (*Room)(nil)
)
