package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var (
	// ErrConnectionClosed is returned by reads and writes after Close.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrInvalidFrame marks a message that arrived intact but is not a
	// usable frame. The connection stays readable.
	ErrInvalidFrame = errors.New("invalid frame")
)

// FrameConnection 是房间协议的帧级连接
type FrameConnection interface {
	ReadFrame(ctx context.Context) (*Frame, error)
	WriteFrame(ctx context.Context, frame Frame) error
	Close() error
	IsAlive() bool
}

// WebSocketFrameConnection 将 coder/websocket 连接适配为 FrameConnection。
// 写操作通过 mutex 保护，因为 WebSocket 不支持并发写。
type WebSocketFrameConnection struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex // 保护写操作
	closed atomic.Bool
}

// NewWebSocketFrameConnection 从已建立的 WebSocket 连接创建适配器。
// readLimit 限制单帧大小，<= 0 时使用库默认值。
func NewWebSocketFrameConnection(conn *websocket.Conn, readLimit int64, logger *zap.Logger) *WebSocketFrameConnection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &WebSocketFrameConnection{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_frame_connection")),
	}
}

// ReadFrame 读取并校验一个 JSON 帧。
func (w *WebSocketFrameConnection) ReadFrame(ctx context.Context) (*Frame, error) {
	if w.closed.Load() {
		return nil, ErrConnectionClosed
	}

	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: unexpected binary message", ErrInvalidFrame)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return &frame, nil
}

// WriteFrame 将帧序列化为 JSON 并发送。
func (w *WebSocketFrameConnection) WriteFrame(ctx context.Context, frame Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed.Load() {
		return ErrConnectionClosed
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close 以正常关闭码关闭连接。
func (w *WebSocketFrameConnection) Close() error {
	return w.CloseWith(websocket.StatusNormalClosure, "closing")
}

// CloseWith closes with an explicit status code and reason.
func (w *WebSocketFrameConnection) CloseWith(code websocket.StatusCode, reason string) error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return w.conn.Close(code, reason)
}

// IsAlive 检查连接是否存活。
func (w *WebSocketFrameConnection) IsAlive() bool {
	return !w.closed.Load()
}

// Dial opens a client connection to a room endpoint. A non-empty token is
// sent as a bearer Authorization header.
func Dial(ctx context.Context, url, token string, logger *zap.Logger) (*WebSocketFrameConnection, error) {
	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, resp, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return NewWebSocketFrameConnection(conn, 0, logger), nil
}
