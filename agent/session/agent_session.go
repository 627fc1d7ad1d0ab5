package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/agent/chatctx"
	"github.com/BaSui01/visionflow/llm"
	"github.com/BaSui01/visionflow/types"
)

// Config configures an AgentSession.
type Config struct {
	Instructions string
	// AutoReply answers every final utterance without being asked.
	AutoReply    bool
	ReplyTimeout time.Duration
}

// AgentSession is the concrete Session backed by an llm.Generator.
type AgentSession struct {
	id        string
	config    Config
	holder    *chatctx.Holder
	generator llm.Generator
	sink      ReplySink
	snapshots chatctx.SnapshotStore
	logger    *zap.Logger

	listenersMu sync.RWMutex
	listeners   []func(UserInputEvent)

	replyMu sync.Mutex

	goMu   sync.Mutex
	wg     sync.WaitGroup
	closed chan struct{}
}

// Option customizes an AgentSession.
type Option func(*AgentSession)

// WithSnapshotStore persists the context after every committed update.
func WithSnapshotStore(s chatctx.SnapshotStore) Option {
	return func(a *AgentSession) { a.snapshots = s }
}

// WithID sets the session id instead of a generated one.
func WithID(id string) Option {
	return func(a *AgentSession) { a.id = id }
}

// WithInitialContext seeds the conversation.
func WithInitialContext(c *chatctx.ChatContext) Option {
	return func(a *AgentSession) { a.holder = chatctx.NewHolder(c) }
}

// NewAgentSession creates a session.
func NewAgentSession(config Config, generator llm.Generator, sink ReplySink, logger *zap.Logger, opts ...Option) *AgentSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = 60 * time.Second
	}
	s := &AgentSession{
		id:        uuid.NewString(),
		config:    config,
		holder:    chatctx.NewHolder(nil),
		generator: generator,
		sink:      sink,
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.With(zap.String("component", "agent_session"), zap.String("session_id", s.id))
	return s
}

func (s *AgentSession) ID() string { return s.id }

func (s *AgentSession) ChatCtx() *chatctx.ChatContext { return s.holder.Snapshot() }

// Version increments on every committed context change.
func (s *AgentSession) Version() uint64 { return s.holder.Version() }

func (s *AgentSession) UpdateChatCtx(ctx context.Context, c *chatctx.ChatContext) error {
	if s.isClosed() {
		return types.NewError(types.ErrSessionClosed, "session is closed")
	}
	s.holder.Replace(c)
	s.persist(ctx, c)
	return nil
}

func (s *AgentSession) MutateChatCtx(ctx context.Context, fn func(c *chatctx.ChatContext) error) (*chatctx.ChatContext, error) {
	if s.isClosed() {
		return nil, types.NewError(types.ErrSessionClosed, "session is closed")
	}
	next, err := s.holder.Update(fn)
	if err != nil {
		return nil, types.NewError(types.ErrContextUpdate, "chat context update failed").WithCause(err)
	}
	s.persist(ctx, next)
	return next, nil
}

func (s *AgentSession) persist(ctx context.Context, c *chatctx.ChatContext) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Save(ctx, s.id, c); err != nil {
		s.logger.Warn("failed to save chat context snapshot", zap.Error(err))
	}
}

// GenerateReply sends the context to the model, commits the answer as an
// assistant message and delivers it to the sink. Replies are serialized.
func (s *AgentSession) GenerateReply(ctx context.Context, opts ReplyOptions) (*Reply, error) {
	if s.isClosed() {
		return nil, types.NewError(types.ErrSessionClosed, "session is closed")
	}
	if s.generator == nil {
		return nil, types.NewError(types.ErrProviderNotSet, "no generator configured")
	}

	s.replyMu.Lock()
	defer s.replyMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.ReplyTimeout)
	defer cancel()

	resp, err := s.generator.Generate(ctx, &llm.GenerateRequest{
		Instructions:    s.config.Instructions,
		Messages:        s.holder.Snapshot().Messages(),
		TurnInstruction: opts.Instructions,
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, types.NewError(types.ErrEmptyModelOutput, "model returned an empty reply")
	}

	if _, err := s.MutateChatCtx(ctx, func(c *chatctx.ChatContext) error {
		c.AddMessage(types.RoleAssistant, types.TextPart(text))
		return nil
	}); err != nil {
		return nil, err
	}

	reply := Reply{
		ID:           uuid.NewString(),
		SessionID:    s.id,
		Text:         text,
		Instructions: opts.Instructions,
		Kind:         opts.Kind,
		Timestamp:    time.Now(),
	}
	if s.sink != nil {
		if err := s.sink.SendReply(ctx, reply); err != nil {
			s.logger.Warn("failed to deliver reply", zap.Error(err))
		}
	}

	s.logger.Debug("reply generated",
		zap.String("reply_id", reply.ID),
		zap.Bool("instructed", opts.Instructions != ""),
		zap.Int("chars", len(text)))
	return &reply, nil
}

func (s *AgentSession) OnUserInput(fn func(UserInputEvent)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// HandleUserInput is called by the transport for every utterance. Final
// utterances are committed as user messages, then listeners run in
// registration order. With AutoReply a turn reply is generated in the
// background.
func (s *AgentSession) HandleUserInput(ctx context.Context, ev UserInputEvent) {
	if !ev.IsFinal || s.isClosed() {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	text := strings.TrimSpace(ev.Text)
	if text != "" {
		if _, err := s.MutateChatCtx(ctx, func(c *chatctx.ChatContext) error {
			c.AddMessage(types.RoleUser, types.TextPart(text))
			return nil
		}); err != nil {
			s.logger.Warn("failed to commit utterance", zap.Error(err))
		}
	}

	s.listenersMu.RLock()
	listeners := append([]func(UserInputEvent){}, s.listeners...)
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}

	if s.config.AutoReply && text != "" {
		s.Go(func() {
			if _, err := s.GenerateReply(context.WithoutCancel(ctx), ReplyOptions{Kind: ReplyTurn}); err != nil {
				s.logger.Warn("turn reply failed", zap.Error(err))
			}
		})
	}
}

// Go runs fn in the background; Close waits for it. It is a no-op once the
// session is closed.
func (s *AgentSession) Go(fn func()) {
	s.goMu.Lock()
	defer s.goMu.Unlock()
	if s.isClosed() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Done is closed when the session closes.
func (s *AgentSession) Done() <-chan struct{} { return s.closed }

func (s *AgentSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close stops accepting work and waits for background replies.
func (s *AgentSession) Close() {
	s.goMu.Lock()
	if s.isClosed() {
		s.goMu.Unlock()
		return
	}
	close(s.closed)
	s.goMu.Unlock()

	s.wg.Wait()
	s.logger.Info("session closed")
}
