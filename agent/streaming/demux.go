package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/agent/bytestream"
)

// Dispatcher hands a newly opened stream to its topic handler. It reports
// false when no handler is registered.
type Dispatcher func(reader bytestream.Reader, participant string) bool

// ErrUnknownStream is returned for chunks or trailers without a header.
var ErrUnknownStream = errors.New("unknown stream")

// Demux turns one participant's byte stream frames into PendingStreams.
// It is driven from the connection's read loop and is not safe for
// concurrent use except for CloseAll and Open.
type Demux struct {
	participant string
	dispatch    Dispatcher
	buffer      int
	logger      *zap.Logger

	mu sync.Mutex
	// a nil entry marks a stream that is being dropped
	streams map[string]*bytestream.PendingStream
}

// NewDemux creates a demultiplexer for participant. buffer is the number of
// chunks queued per stream before the read loop blocks.
func NewDemux(participant string, dispatch Dispatcher, buffer int, logger *zap.Logger) *Demux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Demux{
		participant: participant,
		dispatch:    dispatch,
		buffer:      buffer,
		logger:      logger.With(zap.String("component", "byte_stream_demux"), zap.String("participant", participant)),
		streams:     make(map[string]*bytestream.PendingStream),
	}
}

// Handle applies one byte stream frame. Frames of a dropped stream are
// consumed silently.
func (d *Demux) Handle(ctx context.Context, f *Frame) error {
	switch f.Type {
	case FrameByteStreamHeader:
		return d.open(f)
	case FrameByteStreamChunk:
		return d.push(ctx, f)
	case FrameByteStreamTrailer:
		return d.finish(f)
	default:
		return fmt.Errorf("not a byte stream frame: %s", f.Type)
	}
}

func (d *Demux) open(f *Frame) error {
	d.mu.Lock()
	if _, exists := d.streams[f.StreamID]; exists {
		d.mu.Unlock()
		return fmt.Errorf("stream %s already open", f.StreamID)
	}
	stream := bytestream.NewPendingStream(f.StreamInfo(), d.participant, d.buffer)
	d.streams[f.StreamID] = stream
	d.mu.Unlock()

	if !d.dispatch(stream, d.participant) {
		d.logger.Debug("no handler for byte stream topic, dropping",
			zap.String("topic", f.Topic), zap.String("stream_id", f.StreamID))
		d.drop(f.StreamID)
	}
	return nil
}

func (d *Demux) push(ctx context.Context, f *Frame) error {
	stream, known := d.lookup(f.StreamID)
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownStream, f.StreamID)
	}
	if stream == nil {
		return nil
	}
	if err := stream.Push(ctx, f.Data); err != nil {
		if ctx.Err() != nil {
			return err
		}
		// the consumer gave up on this stream
		d.logger.Debug("byte stream abandoned by reader", zap.String("stream_id", f.StreamID), zap.Error(err))
		d.drop(f.StreamID)
	}
	return nil
}

func (d *Demux) finish(f *Frame) error {
	stream, known := d.lookup(f.StreamID)
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownStream, f.StreamID)
	}
	d.mu.Lock()
	delete(d.streams, f.StreamID)
	d.mu.Unlock()

	if stream != nil {
		var err error
		if f.Reason != "" {
			err = fmt.Errorf("sender ended stream: %s", f.Reason)
		}
		stream.Close(err)
	}
	return nil
}

func (d *Demux) lookup(id string) (*bytestream.PendingStream, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[id]
	return s, ok
}

func (d *Demux) drop(id string) {
	d.mu.Lock()
	d.streams[id] = nil
	d.mu.Unlock()
}

// Open returns the number of streams still receiving chunks.
func (d *Demux) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.streams {
		if s != nil {
			n++
		}
	}
	return n
}

// CloseAll aborts every unfinished stream, typically on disconnect.
func (d *Demux) CloseAll(err error) {
	if err == nil {
		err = bytestream.ErrStreamClosed
	}
	d.mu.Lock()
	streams := d.streams
	d.streams = make(map[string]*bytestream.PendingStream)
	d.mu.Unlock()

	for _, s := range streams {
		if s != nil {
			s.Abort(err)
		}
	}
}
