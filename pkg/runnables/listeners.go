package runnables

import (
	"context"
	"sync"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
	"github.com/google/uuid"
)

// Listeners are called for the run of the runnable they are attached to, not for its
// children. Any of them may be nil.
type Listeners struct {
	OnStart func(run *callbacks.Run)
	OnEnd   func(run *callbacks.Run)
	OnError func(run *callbacks.Run, err error)
}

// Listened invokes a runnable with a fresh root-run listener per invocation.
type Listened struct {
	bound     Runnable
	listeners Listeners
}

var _ Streamer = (*Listened)(nil)
var _ GraphProvider = (*Listened)(nil)

func WithListeners(r Runnable, listeners Listeners) *Listened {
	return &Listened{bound: r, listeners: listeners}
}

func (l *Listened) GetName() string {
	return l.bound.GetName()
}

func (l *Listened) config(cfg *config.RunnableConfig) *config.RunnableConfig {
	h := &rootListener{listeners: l.listeners}
	return config.Merge(cfg, &config.RunnableConfig{Handlers: []callbacks.Handler{h}})
}

func (l *Listened) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return l.bound.Invoke(ctx, input, l.config(cfg))
}

func (l *Listened) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamOf(ctx, l.bound, input, l.config(cfg))
}

func (l *Listened) GetGraph() (*graph.Graph, error) {
	return GetGraph(l.bound)
}

// rootListener tracks the first run it sees, which is the run of the listened runnable.
type rootListener struct {
	callbacks.NopHandler
	listeners Listeners

	mu     sync.Mutex
	rootID uuid.UUID
}

func (h *rootListener) isRoot(run *callbacks.Run) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rootID == run.ID
}

func (h *rootListener) OnStart(_ context.Context, run *callbacks.Run) error {
	h.mu.Lock()
	if h.rootID != uuid.Nil {
		h.mu.Unlock()
		return nil
	}
	h.rootID = run.ID
	h.mu.Unlock()
	if h.listeners.OnStart != nil {
		h.listeners.OnStart(run)
	}
	return nil
}

func (h *rootListener) OnEnd(_ context.Context, run *callbacks.Run) error {
	if h.isRoot(run) && h.listeners.OnEnd != nil {
		h.listeners.OnEnd(run)
	}
	return nil
}

func (h *rootListener) OnError(_ context.Context, run *callbacks.Run, err error) error {
	if h.isRoot(run) && h.listeners.OnError != nil {
		h.listeners.OnError(run, err)
	}
	return nil
}
