package room

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/agent/session"
	"github.com/BaSui01/visionflow/agent/streaming"
	"github.com/BaSui01/visionflow/internal/metrics"
	"github.com/BaSui01/visionflow/types"
)

// SessionFactory creates the agent session of a new room. The room is the
// session's reply sink.
type SessionFactory func(room *Room) *session.AgentSession

// AgentFactory creates the agent that enters a new room's session. Agents
// that implement Close are closed when the room is torn down.
type AgentFactory func(room *Room) session.Agent

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// ChunkBuffer is the number of chunks queued per inbound stream.
	ChunkBuffer int
	// ReadLimit caps a single frame in bytes.
	ReadLimit int64
	// OriginPatterns are the browser origins allowed to connect. Empty
	// allows same-origin requests only.
	OriginPatterns []string
	// StartTimeout bounds agent entry, including the greeting.
	StartTimeout time.Duration
}

// DefaultWorkerConfig returns the stock worker settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ChunkBuffer:  64,
		ReadLimit:    1 << 20,
		StartTimeout: 90 * time.Second,
	}
}

// job is the running agent of one room.
type job struct {
	room    *Room
	session *session.AgentSession
	agent   session.Agent
	members int // guarded by Worker.mu

	once sync.Once
	err  error
}

// Worker serves room connections. It starts a job on the first join of a
// room and tears it down when the last participant leaves.
type Worker struct {
	config     WorkerConfig
	auth       *Authenticator
	newSession SessionFactory
	newAgent   AgentFactory
	metrics    *metrics.Collector
	logger     *zap.Logger

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
	conns  sync.WaitGroup
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithWorkerMetrics records room and participant gauges on c.
func WithWorkerMetrics(c *metrics.Collector) WorkerOption {
	return func(w *Worker) { w.metrics = c }
}

// NewWorker creates a Worker.
func NewWorker(config WorkerConfig, auth *Authenticator, newSession SessionFactory, newAgent AgentFactory, logger *zap.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ChunkBuffer <= 0 {
		config.ChunkBuffer = DefaultWorkerConfig().ChunkBuffer
	}
	w := &Worker{
		config:     config,
		auth:       auth,
		newSession: newSession,
		newAgent:   newAgent,
		logger:     logger.With(zap.String("component", "room_worker")),
		jobs:       make(map[string]*job),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// =============================================================================
// 🔌 连接处理
// =============================================================================

// ServeHTTP upgrades GET /rooms/{room}/ws and runs the participant's read
// loop until the connection closes.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	name := r.PathValue("room")
	if name == "" {
		writeJSONError(rw, http.StatusBadRequest, "room name is required")
		return
	}
	identity, err := w.auth.Authenticate(r, name)
	if err != nil {
		w.logger.Debug("join rejected", zap.String("room", name), zap.Error(err))
		writeJSONError(rw, http.StatusUnauthorized, "invalid or missing join token")
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		writeJSONError(rw, http.StatusServiceUnavailable, "worker is shutting down")
		return
	}
	w.conns.Add(1)
	w.mu.Unlock()
	defer w.conns.Done()

	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{OriginPatterns: w.config.OriginPatterns})
	if err != nil {
		w.logger.Warn("websocket upgrade failed", zap.String("room", name), zap.Error(err))
		return
	}
	conn := streaming.NewWebSocketFrameConnection(c, w.config.ReadLimit, w.logger)
	defer conn.Close()

	ctx := r.Context()
	logger := w.logger.With(zap.String("room", name), zap.String("participant", identity))

	j, err := w.join(name, identity, conn)
	if err != nil {
		logger.Warn("join failed", zap.Error(err))
		_ = conn.CloseWith(websocket.StatusPolicyViolation, "join failed")
		return
	}
	defer w.leave(name, j, identity)

	ctx = types.WithSessionID(types.WithRoomName(ctx, name), j.session.ID())

	if err := conn.WriteFrame(ctx, streaming.Frame{
		Type:        streaming.FrameJoined,
		Room:        name,
		Participant: identity,
		SessionID:   j.session.ID(),
		Timestamp:   time.Now(),
	}); err != nil {
		logger.Debug("failed to acknowledge join", zap.Error(err))
		return
	}

	if err := w.start(ctx, j); err != nil {
		logger.Error("agent failed to enter room", zap.Error(err))
		_ = conn.CloseWith(websocket.StatusInternalError, "agent unavailable")
		return
	}

	w.readLoop(types.WithParticipant(ctx, identity), j, identity, conn, logger)
}

func (w *Worker) readLoop(ctx context.Context, j *job, identity string, conn streaming.FrameConnection, logger *zap.Logger) {
	demux := streaming.NewDemux(identity, j.room.Dispatch, w.config.ChunkBuffer, logger)
	defer demux.CloseAll(errParticipantLeft)

	for {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, streaming.ErrInvalidFrame) {
				logger.Debug("invalid frame", zap.Error(err))
				w.writeError(ctx, conn, err.Error())
				continue
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Debug("connection closed")
			default:
				if !errors.Is(err, streaming.ErrConnectionClosed) && ctx.Err() == nil {
					logger.Info("connection lost", zap.Error(err))
				}
			}
			return
		}

		switch {
		case f.IsByteStream():
			if err := demux.Handle(ctx, f); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Debug("byte stream frame rejected", zap.Error(err))
				w.writeError(ctx, conn, err.Error())
			}
		case f.Type == streaming.FrameUserInput:
			j.session.HandleUserInput(ctx, session.UserInputEvent{
				Participant: identity,
				Text:        f.Text,
				IsFinal:     f.IsFinal,
				Timestamp:   f.Timestamp,
			})
		default:
			logger.Debug("ignoring frame", zap.String("type", string(f.Type)))
		}
	}
}

func (w *Worker) writeError(ctx context.Context, conn streaming.FrameConnection, reason string) {
	_ = conn.WriteFrame(ctx, streaming.Frame{Type: streaming.FrameError, Reason: reason, Timestamp: time.Now()})
}

var errParticipantLeft = errors.New("participant left the room")

// =============================================================================
// 🏠 房间生命周期
// =============================================================================

func (w *Worker) join(name, identity string, conn streaming.FrameConnection) (*job, error) {
	w.mu.Lock()
	j := w.jobs[name]
	if j == nil {
		rm := NewRoom(name, w.logger)
		j = &job{room: rm, session: w.newSession(rm), agent: w.newAgent(rm)}
		w.jobs[name] = j
		w.metrics.RoomOpened()
		w.logger.Info("room opened", zap.String("room", name), zap.String("session_id", j.session.ID()))
	}
	j.members++
	w.mu.Unlock()

	if err := j.room.Join(identity, conn); err != nil {
		w.release(name, j)
		return nil, err
	}
	w.metrics.ParticipantJoined()
	return j, nil
}

// start runs the agent's entry once per job. Later joiners wait for the
// first and see its result.
func (w *Worker) start(ctx context.Context, j *job) error {
	j.once.Do(func() {
		if w.config.StartTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.config.StartTimeout)
			defer cancel()
		}
		j.err = session.Start(ctx, &session.JobContext{
			Room:    j.room,
			Session: j.session,
			Logger:  w.logger,
		}, j.agent)
	})
	if j.err != nil {
		return fmt.Errorf("start agent: %w", j.err)
	}
	return nil
}

func (w *Worker) leave(name string, j *job, identity string) {
	j.room.Leave(identity)
	w.metrics.ParticipantLeft()
	w.release(name, j)
}

func (w *Worker) release(name string, j *job) {
	w.mu.Lock()
	j.members--
	last := j.members == 0
	if last && w.jobs[name] == j {
		delete(w.jobs, name)
	}
	w.mu.Unlock()

	if last {
		w.teardown(j)
	}
}

func (w *Worker) teardown(j *job) {
	if c, ok := j.agent.(interface{ Close() }); ok {
		c.Close()
	}
	j.session.Close()
	w.metrics.RoomClosed()
	w.logger.Info("room closed", zap.String("room", j.room.Name()), zap.String("session_id", j.session.ID()))
}

// =============================================================================
// 📊 状态与关闭
// =============================================================================

// Rooms returns the number of rooms with a running job.
func (w *Worker) Rooms() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.jobs)
}

// Close refuses new connections, disconnects every participant and waits
// for their rooms to be torn down or ctx to end.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	rooms := make([]*Room, 0, len(w.jobs))
	for _, j := range w.jobs {
		rooms = append(rooms, j.room)
	}
	w.mu.Unlock()

	for _, rm := range rooms {
		rm.Disconnect()
	}

	done := make(chan struct{})
	go func() {
		w.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return types.NewError(types.ErrTimeout, "room worker shutdown timed out").WithCause(ctx.Err())
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"error":{"message":%q}}`, message)
}
