package bytestream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/BaSui01/visionflow/types"
)

// Info describes an inbound stream as announced by its header.
type Info struct {
	ID          string            `json:"id"`
	Topic       string            `json:"topic"`
	Name        string            `json:"name"`
	MimeType    string            `json:"mime_type,omitempty"`
	TotalLength int64             `json:"total_length,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Reader yields the chunks of one stream in arrival order.
// Next returns io.EOF once the stream completed normally.
type Reader interface {
	Info() Info
	Next(ctx context.Context) ([]byte, error)
}

// Handler is invoked once per opened stream with its reader and the
// identity of the sending participant. Handlers must not block the caller.
type Handler func(reader Reader, participantIdentity string)

// Drain reads r to completion and returns the concatenated bytes.
// maxBytes <= 0 disables the size limit.
func Drain(ctx context.Context, r Reader, maxBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	if hint := r.Info().TotalLength; hint > 0 && (maxBytes <= 0 || hint <= maxBytes) {
		buf.Grow(int(hint))
	}

	for {
		chunk, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, types.NewError(types.ErrTimeout, "stream drain timed out").WithCause(err)
			}
			return nil, types.NewError(types.ErrStreamDrain, fmt.Sprintf("drain stream %q", r.Info().Name)).WithCause(err)
		}
		if maxBytes > 0 && int64(buf.Len()+len(chunk)) > maxBytes {
			return nil, types.NewError(types.ErrStreamTooBig,
				fmt.Sprintf("stream %q exceeds %d bytes", r.Info().Name, maxBytes))
		}
		buf.Write(chunk)
	}
}

// =============================================================================
// PendingStream
// =============================================================================

// ErrStreamClosed is returned by Push after the stream was closed.
var ErrStreamClosed = errors.New("byte stream closed")

// PendingStream is an in-flight inbound stream fed by a transport.
// Push and Close must be called from the same goroutine (the transport's
// read loop); Abort and Next are safe from any goroutine.
type PendingStream struct {
	info        Info
	participant string

	chunks   chan []byte
	abort    chan struct{}
	abortErr error
	once     sync.Once

	mu       sync.Mutex
	closed   bool
	endErr   error
	received int64
}

// NewPendingStream creates a stream with room for buffer queued chunks.
func NewPendingStream(info Info, participantIdentity string, buffer int) *PendingStream {
	if buffer <= 0 {
		buffer = 16
	}
	if info.Timestamp.IsZero() {
		info.Timestamp = time.Now()
	}
	return &PendingStream{
		info:        info,
		participant: participantIdentity,
		chunks:      make(chan []byte, buffer),
		abort:       make(chan struct{}),
	}
}

// Info returns the stream header.
func (p *PendingStream) Info() Info { return p.info }

// Participant returns the sender identity.
func (p *PendingStream) Participant() string { return p.participant }

// Received returns the number of bytes pushed so far.
func (p *PendingStream) Received() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

// Completed reports whether the trailer was seen.
func (p *PendingStream) Completed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed && p.endErr == nil
}

// Push enqueues a copy of chunk. It blocks while the buffer is full.
func (p *PendingStream) Push(ctx context.Context, chunk []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrStreamClosed
	}
	p.received += int64(len(chunk))
	p.mu.Unlock()

	cp := make([]byte, len(chunk))
	copy(cp, chunk)

	select {
	case p.chunks <- cp:
		return nil
	case <-p.abort:
		return p.abortErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. A nil err marks normal completion; readers see
// io.EOF after the queued chunks. A non-nil err is reported instead of EOF.
func (p *PendingStream) Close(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.endErr = err
	close(p.chunks)
}

// Abort fails the stream immediately, discarding queued chunks.
func (p *PendingStream) Abort(err error) {
	if err == nil {
		err = ErrStreamClosed
	}
	p.once.Do(func() {
		p.abortErr = err
		close(p.abort)
	})
}

// Next returns the next chunk in arrival order.
func (p *PendingStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-p.abort:
		return nil, p.abortErr
	default:
	}

	select {
	case chunk, ok := <-p.chunks:
		if !ok {
			p.mu.Lock()
			err := p.endErr
			p.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return chunk, nil
	case <-p.abort:
		return nil, p.abortErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// =============================================================================
// SliceReader
// =============================================================================

// SliceReader serves a fixed list of chunks.
type SliceReader struct {
	info   Info
	chunks [][]byte
	pos    int
}

// NewSliceReader creates a reader over chunks.
func NewSliceReader(info Info, chunks ...[]byte) *SliceReader {
	return &SliceReader{info: info, chunks: chunks}
}

// Info returns the stream header.
func (s *SliceReader) Info() Info { return s.info }

// Next returns the next chunk or io.EOF.
func (s *SliceReader) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}
