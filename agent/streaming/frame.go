package streaming

import (
	"fmt"
	"time"

	"github.com/BaSui01/visionflow/agent/bytestream"
)

// FrameType identifies a room protocol frame.
type FrameType string

const (
	// client → worker
	FrameByteStreamHeader  FrameType = "byte_stream_header"
	FrameByteStreamChunk   FrameType = "byte_stream_chunk"
	FrameByteStreamTrailer FrameType = "byte_stream_trailer"
	FrameUserInput         FrameType = "user_input"

	// worker → client
	FrameJoined     FrameType = "joined"
	FrameAgentReply FrameType = "agent_reply"
	FrameError      FrameType = "error"
)

// Frame is one JSON message on a room connection. Only the fields of its
// Type are set. Data travels base64 encoded.
type Frame struct {
	Type FrameType `json:"type"`

	// byte streams
	StreamID    string            `json:"stream_id,omitempty"`
	Topic       string            `json:"topic,omitempty"`
	Name        string            `json:"name,omitempty"`
	MimeType    string            `json:"mime_type,omitempty"`
	TotalLength int64             `json:"total_length,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Data        []byte            `json:"data,omitempty"`

	// utterances and replies
	ID          string `json:"id,omitempty"`
	Text        string `json:"text,omitempty"`
	IsFinal     bool   `json:"is_final,omitempty"`
	Participant string `json:"participant,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Room        string `json:"room,omitempty"`

	// Reason carries an error frame's message, or the failure that ended
	// a stream when set on a trailer.
	Reason string `json:"reason,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Validate checks the fields required by the frame type.
func (f *Frame) Validate() error {
	switch f.Type {
	case FrameByteStreamHeader:
		if f.StreamID == "" || f.Topic == "" {
			return fmt.Errorf("%s requires stream_id and topic", f.Type)
		}
		if f.TotalLength < 0 {
			return fmt.Errorf("%s total_length must not be negative", f.Type)
		}
	case FrameByteStreamChunk, FrameByteStreamTrailer:
		if f.StreamID == "" {
			return fmt.Errorf("%s requires stream_id", f.Type)
		}
	case FrameUserInput:
	case FrameJoined, FrameAgentReply, FrameError:
	case "":
		return fmt.Errorf("frame type is required")
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

// IsByteStream reports whether f belongs to the byte stream sub-protocol.
func (f *Frame) IsByteStream() bool {
	switch f.Type {
	case FrameByteStreamHeader, FrameByteStreamChunk, FrameByteStreamTrailer:
		return true
	}
	return false
}

// StreamInfo converts a header frame into stream metadata.
func (f *Frame) StreamInfo() bytestream.Info {
	return bytestream.Info{
		ID:          f.StreamID,
		Topic:       f.Topic,
		Name:        f.Name,
		MimeType:    f.MimeType,
		TotalLength: f.TotalLength,
		Attributes:  f.Attributes,
		Timestamp:   f.Timestamp,
	}
}

// StreamFrames builds the frames that send data as one stream in chunks of
// chunkSize bytes: header, chunks, trailer.
func StreamFrames(info bytestream.Info, data []byte, chunkSize int) []Frame {
	if chunkSize <= 0 {
		chunkSize = 15_000
	}
	frames := []Frame{{
		Type:        FrameByteStreamHeader,
		StreamID:    info.ID,
		Topic:       info.Topic,
		Name:        info.Name,
		MimeType:    info.MimeType,
		TotalLength: int64(len(data)),
		Attributes:  info.Attributes,
	}}
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		frames = append(frames, Frame{Type: FrameByteStreamChunk, StreamID: info.ID, Data: data[:n]})
		data = data[n:]
	}
	return append(frames, Frame{Type: FrameByteStreamTrailer, StreamID: info.ID})
}
