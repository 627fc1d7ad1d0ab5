package vision

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/agent/artifacts"
	"github.com/BaSui01/visionflow/agent/bytestream"
	"github.com/BaSui01/visionflow/agent/chatctx"
	"github.com/BaSui01/visionflow/agent/detect"
	"github.com/BaSui01/visionflow/agent/imagefetch"
	"github.com/BaSui01/visionflow/agent/media"
	"github.com/BaSui01/visionflow/agent/session"
	"github.com/BaSui01/visionflow/agent/tasks"
	"github.com/BaSui01/visionflow/internal/metrics"
	"github.com/BaSui01/visionflow/internal/telemetry"
	"github.com/BaSui01/visionflow/types"
)

// =============================================================================
// 📝 固定指令
// =============================================================================

const (
	DefaultTopic = "test"

	GreetingInstruction = "You are a tutor.Your task is to teach the students about their studies and also help them where they are stuck."

	FetchSuccessInstruction = "I've fetched and analyzed the image from the URL."

	FetchFailureInstruction = "Sorry, I couldn't fetch the image from that URL."
)

// =============================================================================
// 🔌 依赖
// =============================================================================

// Fetcher retrieves a remote image.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*imagefetch.Result, error)
}

// ArtifactStore persists image bytes under their conversation filenames.
type ArtifactStore interface {
	SaveReceived(ctx context.Context, participant string, data []byte, opts ...artifacts.SaveOption) (*artifacts.Artifact, error)
	SaveFetched(ctx context.Context, sourceURL string, data []byte, opts ...artifacts.SaveOption) (*artifacts.Artifact, error)
}

// Config configures an Assistant.
type Config struct {
	// Topic is the byte-stream topic images arrive on.
	Topic string
	// GreetingInstruction steers the reply sent on entry. Empty skips it.
	GreetingInstruction string
	DrainTimeout        time.Duration
	MaxStreamBytes      int64
	// MaxConcurrentTasks bounds in-flight drains and fetches per session.
	MaxConcurrentTasks int
}

// DefaultConfig returns the stock assistant settings.
func DefaultConfig() Config {
	return Config{
		Topic:               DefaultTopic,
		GreetingInstruction: GreetingInstruction,
		DrainTimeout:        30 * time.Second,
		MaxStreamBytes:      15 << 20,
		MaxConcurrentTasks:  16,
	}
}

// =============================================================================
// 🤖 Assistant
// =============================================================================

// Assistant is the voice assistant with vision. It splices images that
// arrive as byte streams or as URLs in speech into the session's context.
type Assistant struct {
	config   Config
	fetcher  Fetcher
	store    ArtifactStore
	detector detect.URLDetector
	encoder  media.Encoder
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger

	mu      sync.Mutex
	session session.Session
	tasks   *tasks.Group
	running int
}

// Option customizes an Assistant.
type Option func(*Assistant)

// WithDetector replaces the URL heuristic.
func WithDetector(d detect.URLDetector) Option {
	return func(a *Assistant) { a.detector = d }
}

// WithEncoder replaces the image encoder.
func WithEncoder(e media.Encoder) Option {
	return func(a *Assistant) { a.encoder = e }
}

// WithMetrics records ingestion, fetch and reply metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Assistant) { a.metrics = c }
}

// WithTracer sets the tracer for the vision spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assistant) { a.tracer = t }
}

// New creates an Assistant. store may be nil, in which case images are
// only added to the conversation.
func New(config Config, fetcher Fetcher, store ArtifactStore, logger *zap.Logger, opts ...Option) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Topic == "" {
		config.Topic = DefaultTopic
	}
	a := &Assistant{
		config:   config,
		fetcher:  fetcher,
		store:    store,
		detector: detect.NewRegexDetector(),
		logger:   logger.With(zap.String("component", "vision_assistant")),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tracer == nil {
		a.tracer = telemetry.Tracer()
	}
	return a
}

// OnEnter registers the image stream handler and the URL detector, then
// schedules the greeting as a background task. OnEnter does not wait for the
// model; a failed greeting is only logged.
func (a *Assistant) OnEnter(ctx context.Context, job *session.JobContext) error {
	a.mu.Lock()
	if a.session != nil {
		a.mu.Unlock()
		return types.NewError(types.ErrInvalidRequest, "assistant already entered a session")
	}
	a.session = job.Session
	a.tasks = tasks.NewGroup(context.WithoutCancel(ctx), tasks.Config{
		MaxConcurrent: a.config.MaxConcurrentTasks,
		OnChange:      a.trackRunning,
	}, a.logger)
	a.logger = a.logger.With(zap.String("session_id", job.Session.ID()))
	a.mu.Unlock()

	if err := job.Room.RegisterByteStreamHandler(a.config.Topic, a.handleByteStream); err != nil {
		return err
	}
	job.Session.OnUserInput(a.handleUserInput)

	if a.config.GreetingInstruction != "" {
		if _, err := a.group().Go("greeting", func(ctx context.Context) error {
			a.reply(ctx, session.ReplyGreeting, a.config.GreetingInstruction)
			return nil
		}); err != nil {
			a.logger.Warn("greeting not scheduled", zap.Error(err))
		}
	}
	return nil
}

// Wait blocks until every in-flight drain and fetch has finished.
func (a *Assistant) Wait() {
	if g := a.group(); g != nil {
		g.Wait()
	}
}

// Close cancels in-flight work and waits for it.
func (a *Assistant) Close() {
	if g := a.group(); g != nil {
		g.Close()
	}
}

// InFlight returns the number of running background tasks.
func (a *Assistant) InFlight() int {
	if g := a.group(); g != nil {
		return g.Len()
	}
	return 0
}

func (a *Assistant) group() *tasks.Group {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tasks
}

func (a *Assistant) trackRunning(n int) {
	a.mu.Lock()
	delta := n - a.running
	a.running = n
	a.mu.Unlock()
	a.metrics.AddTasksInFlight(delta)
}

// =============================================================================
// 📥 字节流图片
// =============================================================================

func (a *Assistant) handleByteStream(reader bytestream.Reader, participant string) {
	info := reader.Info()
	a.logger.Info("received image stream",
		zap.String("participant", participant),
		zap.String("stream_id", info.ID),
		zap.String("name", info.Name))

	_, err := a.group().Go("ingest:"+info.ID, func(ctx context.Context) error {
		return a.ingest(ctx, reader, participant)
	})
	if err != nil {
		a.logger.Warn("image stream rejected", zap.String("stream_id", info.ID), zap.Error(err))
		a.metrics.RecordStreamError("rejected")
		abortReader(reader, err)
	}
}

// abortReader releases the sender of a stream nobody will finish reading.
func abortReader(reader bytestream.Reader, err error) {
	if ab, ok := reader.(interface{ Abort(error) }); ok {
		ab.Abort(err)
	}
}

func (a *Assistant) ingest(ctx context.Context, reader bytestream.Reader, participant string) (err error) {
	info := reader.Info()
	ctx, span := telemetry.StartSpan(ctx, a.tracer, "vision.ingest",
		attribute.String("participant", participant),
		attribute.String("stream.id", info.ID),
		attribute.String("stream.topic", info.Topic))
	defer func() { telemetry.EndSpan(span, err) }()

	drainCtx := ctx
	if a.config.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, a.config.DrainTimeout)
		defer cancel()
	}

	data, err := bytestream.Drain(drainCtx, reader, a.config.MaxStreamBytes)
	if err != nil {
		abortReader(reader, err)
		a.metrics.RecordStreamError(string(types.GetErrorCode(err)))
		a.logger.Error("failed to drain image stream",
			zap.String("participant", participant),
			zap.String("stream_id", info.ID),
			zap.Error(err))
		return err
	}
	span.SetAttributes(attribute.Int("image.bytes", len(data)))
	if len(data) == 0 {
		a.metrics.RecordStreamError("empty")
		a.logger.Warn("empty image stream dropped",
			zap.String("participant", participant),
			zap.String("stream_id", info.ID))
		return types.NewError(types.ErrStreamDrain, "empty image stream")
	}

	if a.store != nil {
		art, err := a.store.SaveReceived(ctx, participant, data,
			artifacts.WithSessionID(a.session.ID()),
			artifacts.WithMimeType(info.MimeType))
		if err != nil {
			a.logger.Error("failed to persist received image", zap.String("participant", participant), zap.Error(err))
			return err
		}
		a.logger.Info("image received",
			zap.String("participant", participant),
			zap.String("file", art.Name),
			zap.Int("bytes", len(data)))
	}

	a.metrics.RecordImage(metrics.SourceStream, len(data))
	return a.addImage(ctx, data)
}

// =============================================================================
// 🔗 URL 图片
// =============================================================================

func (a *Assistant) handleUserInput(ev session.UserInputEvent) {
	url, ok := a.detector.Detect(ev.Text)
	if !ok {
		return
	}
	a.logger.Info("image url detected", zap.String("participant", ev.Participant), zap.String("url", url))

	if _, err := a.group().Go("fetch", func(ctx context.Context) error {
		return a.fetchAndAnalyze(ctx, url)
	}); err != nil {
		a.logger.Warn("image fetch not scheduled", zap.String("url", url), zap.Error(err))
	}
}

// fetchAndAnalyze runs the whole URL path once. Any failure along the way
// ends in the apology reply and leaves the context untouched.
func (a *Assistant) fetchAndAnalyze(ctx context.Context, url string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, a.tracer, "vision.fetch", attribute.String("url", url))
	defer func() { telemetry.EndSpan(span, err) }()

	if err = a.fetchImage(ctx, url, span); err != nil {
		a.logger.Error("failed to fetch image from url", zap.String("url", url), zap.Error(err))
		a.reply(ctx, session.ReplyApology, FetchFailureInstruction)
		return err
	}
	a.reply(ctx, session.ReplyCommand, FetchSuccessInstruction)
	return nil
}

func (a *Assistant) fetchImage(ctx context.Context, url string, span trace.Span) error {
	if a.fetcher == nil {
		return types.NewError(types.ErrInternalError, "no image fetcher configured")
	}

	start := time.Now()
	res, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		status := "error"
		if e, ok := types.AsError(err); ok && e.HTTPStatus != 0 {
			status = metrics.FetchStatus(e.HTTPStatus)
		}
		a.metrics.RecordFetch(status, time.Since(start))
		return err
	}
	a.metrics.RecordFetch(metrics.FetchStatus(res.StatusCode), res.Duration)
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode), attribute.Int("image.bytes", len(res.Data)))

	if a.store != nil {
		art, err := a.store.SaveFetched(ctx, url, res.Data,
			artifacts.WithSessionID(a.session.ID()),
			artifacts.WithMimeType(res.ContentType))
		if err != nil {
			return err
		}
		a.logger.Info("image fetched", zap.String("url", url), zap.String("file", art.Name), zap.Int("bytes", len(res.Data)))
	}

	a.metrics.RecordImage(metrics.SourceURL, len(res.Data))
	return a.addImage(ctx, res.Data)
}

// =============================================================================
// 🧩 上下文更新
// =============================================================================

// addImage appends one user message holding one image part. The session
// commits it atomically or not at all.
func (a *Assistant) addImage(ctx context.Context, data []byte) (err error) {
	ctx, span := telemetry.StartSpan(ctx, a.tracer, "vision.update_context")
	defer func() { telemetry.EndSpan(span, err) }()

	if len(data) == 0 {
		err = types.NewError(types.ErrContextUpdate, "empty image payload")
		a.metrics.RecordContextUpdate(false)
		return err
	}

	img := a.encoder.Encode(data)
	next, err := a.session.MutateChatCtx(ctx, func(c *chatctx.ChatContext) error {
		c.AddMessage(types.RoleUser, types.ImagePart(img))
		return nil
	})
	a.metrics.RecordContextUpdate(err == nil)
	if err != nil {
		a.logger.Error("failed to update chat context", zap.Error(err))
		return err
	}

	span.SetAttributes(attribute.String("image.mime_type", img.MimeType), attribute.Int("chat.messages", next.Len()))
	if ce := a.logger.Check(zap.DebugLevel, "chat context updated"); ce != nil {
		ce.Write(zap.Any("chat_ctx", next.ToDict(false)))
	}
	return nil
}

// =============================================================================
// 💬 回复
// =============================================================================

func (a *Assistant) reply(ctx context.Context, kind session.ReplyKind, instruction string) {
	start := time.Now()
	_, err := a.session.GenerateReply(ctx, session.ReplyOptions{Instructions: instruction, Kind: kind})
	a.metrics.RecordReply(string(kind), err == nil, time.Since(start))
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("reply failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
