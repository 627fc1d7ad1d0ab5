package session

import (
	"context"

	"go.uber.org/zap"
)

// JobContext is handed to an Agent when it enters a room.
type JobContext struct {
	Room    Room
	Session Session
	Logger  *zap.Logger
}

// Agent is the behaviour plugged into a session.
type Agent interface {
	// OnEnter runs once when the session starts.
	OnEnter(ctx context.Context, job *JobContext) error
}

// Start attaches agent to the job's room and session.
func Start(ctx context.Context, job *JobContext, agent Agent) error {
	if job.Logger == nil {
		job.Logger = zap.NewNop()
	}
	job.Logger.Info("agent entering session",
		zap.String("room", job.Room.Name()),
		zap.String("session_id", job.Session.ID()))
	return agent.OnEnter(ctx, job)
}
