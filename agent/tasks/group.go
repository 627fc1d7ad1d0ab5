package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrGroupClosed is returned by Go after Close.
var ErrGroupClosed = errors.New("task group is closed")

// Func is a unit of background work.
type Func func(ctx context.Context) error

// Config configures a Group.
type Config struct {
	// MaxConcurrent bounds the number of running tasks; <= 0 means unbounded.
	// Tasks beyond the bound wait for a slot.
	MaxConcurrent int
	// OnChange is called with the tracked (queued + running) count whenever
	// it changes.
	OnChange func(running int)
}

// Group is a per-session task set. Every task is registered while it runs
// and removed on completion; Close cancels outstanding tasks and waits.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     errgroup.Group
	slots  chan struct{}
	logger *zap.Logger
	config Config

	mu      sync.Mutex
	running map[string]string
	closed  bool

	queued    atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewGroup creates a group whose tasks inherit parent's values and cancellation.
func NewGroup(parent context.Context, config Config, logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	g := &Group{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("component", "task_group")),
		config:  config,
		running: make(map[string]string),
	}
	if config.MaxConcurrent > 0 {
		g.slots = make(chan struct{}, config.MaxConcurrent)
	}
	return g
}

// Go schedules fn and returns its task id. It never blocks the caller: when
// MaxConcurrent tasks are running, fn waits in the background for a slot.
// A closed group returns ErrGroupClosed.
func (g *Group) Go(name string, fn Func) (string, error) {
	id := uuid.NewString()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return "", ErrGroupClosed
	}

	g.running[id] = name
	g.submitted.Add(1)
	g.notify(len(g.running))

	g.eg.Go(func() error {
		defer g.finish(id)
		if err := g.acquire(); err != nil {
			g.failed.Add(1)
			g.logger.Debug("task cancelled before start",
				zap.String("task", name),
				zap.String("task_id", id))
			return nil
		}
		defer g.release()

		if err := g.run(fn); err != nil {
			g.failed.Add(1)
			g.logger.Warn("task failed",
				zap.String("task", name),
				zap.String("task_id", id),
				zap.Error(err))
			return nil
		}
		g.completed.Add(1)
		return nil
	})
	return id, nil
}

func (g *Group) acquire() error {
	if g.slots == nil {
		return nil
	}
	select {
	case g.slots <- struct{}{}:
		return nil
	default:
	}

	g.queued.Add(1)
	defer g.queued.Add(-1)
	select {
	case g.slots <- struct{}{}:
		// a slot freed by a cancelled task must not start queued work
		if err := g.ctx.Err(); err != nil {
			<-g.slots
			return err
		}
		return nil
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
}

func (g *Group) release() {
	if g.slots != nil {
		<-g.slots
	}
}

func (g *Group) run(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(g.ctx)
}

func (g *Group) finish(id string) {
	g.mu.Lock()
	delete(g.running, id)
	n := len(g.running)
	g.notify(n)
	g.mu.Unlock()
}

func (g *Group) notify(n int) {
	if g.config.OnChange != nil {
		g.config.OnChange(n)
	}
}

// Len returns the number of tasks not yet finished, queued ones included.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

// Running returns the names of unfinished tasks keyed by id.
func (g *Group) Running() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]string, len(g.running))
	for id, name := range g.running {
		out[id] = name
	}
	return out
}

// Wait blocks until every started task has returned.
func (g *Group) Wait() {
	_ = g.eg.Wait()
}

// Close rejects new tasks, cancels running ones and waits for them.
func (g *Group) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	_ = g.eg.Wait()
}

// Stats returns group statistics.
func (g *Group) Stats() Stats {
	return Stats{
		Running:   g.Len(),
		Queued:    int(g.queued.Load()),
		Submitted: g.submitted.Load(),
		Completed: g.completed.Load(),
		Failed:    g.failed.Load(),
	}
}

// Stats contains group statistics.
type Stats struct {
	Running   int   `json:"running"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
