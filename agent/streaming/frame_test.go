package streaming

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/visionflow/agent/bytestream"
)

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{"header ok", Frame{Type: FrameByteStreamHeader, StreamID: "s1", Topic: "test"}, false},
		{"header without topic", Frame{Type: FrameByteStreamHeader, StreamID: "s1"}, true},
		{"header negative length", Frame{Type: FrameByteStreamHeader, StreamID: "s1", Topic: "t", TotalLength: -1}, true},
		{"chunk ok", Frame{Type: FrameByteStreamChunk, StreamID: "s1", Data: []byte("x")}, false},
		{"chunk without id", Frame{Type: FrameByteStreamChunk}, true},
		{"trailer without id", Frame{Type: FrameByteStreamTrailer}, true},
		{"user input", Frame{Type: FrameUserInput, Text: "hi"}, false},
		{"reply", Frame{Type: FrameAgentReply, Text: "hello"}, false},
		{"missing type", Frame{}, true},
		{"unknown type", Frame{Type: "video_track"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFrame_DataIsBase64OnTheWire(t *testing.T) {
	raw, err := json.Marshal(Frame{Type: FrameByteStreamChunk, StreamID: "s1", Data: []byte("AB")})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"data":"QUI="`)

	var back Frame
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, []byte("AB"), back.Data)
}

func TestStreamFrames(t *testing.T) {
	info := bytestream.Info{ID: "s1", Topic: "test", Name: "photo.png", MimeType: "image/png"}
	frames := StreamFrames(info, []byte("ABCDEFG"), 3)

	require.Len(t, frames, 5)
	assert.Equal(t, FrameByteStreamHeader, frames[0].Type)
	assert.Equal(t, int64(7), frames[0].TotalLength)
	assert.Equal(t, FrameByteStreamTrailer, frames[4].Type)

	var joined bytes.Buffer
	for _, f := range frames[1:4] {
		assert.Equal(t, FrameByteStreamChunk, f.Type)
		assert.Equal(t, "s1", f.StreamID)
		joined.Write(f.Data)
	}
	assert.Equal(t, "ABCDEFG", joined.String())

	header := frames[0].StreamInfo()
	assert.Equal(t, info.Name, header.Name)
	assert.Equal(t, info.Topic, header.Topic)
	assert.True(t, frames[0].IsByteStream())
	assert.False(t, (&Frame{Type: FrameUserInput}).IsByteStream())
}
