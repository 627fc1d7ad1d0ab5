package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID     contextKey = "trace_id"
	keySessionID   contextKey = "session_id"
	keyRoomName    contextKey = "room_name"
	keyParticipant contextKey = "participant"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithSessionID adds the agent session ID to context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, keySessionID, sessionID)
}

// SessionID extracts the agent session ID from context.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySessionID).(string)
	return v, ok && v != ""
}

// WithRoomName adds the room name to context.
func WithRoomName(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, keyRoomName, room)
}

// RoomName extracts the room name from context.
func RoomName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRoomName).(string)
	return v, ok && v != ""
}

// WithParticipant adds a participant identity to context.
func WithParticipant(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, keyParticipant, identity)
}

// Participant extracts the participant identity from context.
func Participant(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyParticipant).(string)
	return v, ok && v != ""
}
