package callbacks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-go-golems/runnable/pkg/helpers"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager spawns runs. Its handler slice is shared by reference with every child manager of
// the subtree and is never appended to in place; WithHandlers returns a copy instead.
type Manager struct {
	handlers        []Handler
	parentRunID     uuid.UUID
	inheritableTags []string
	// tags only apply to runs started by this manager, not to their children
	tags     []string
	metadata map[string]any
}

func NewManager(handlers ...Handler) *Manager {
	return &Manager{
		handlers: append([]Handler(nil), handlers...),
	}
}

func (m *Manager) Handlers() []Handler {
	return m.handlers
}

func (m *Manager) ParentRunID() uuid.UUID {
	return m.parentRunID
}

// WithHandlers returns a copy of m that also dispatches to handlers.
func (m *Manager) WithHandlers(handlers ...Handler) *Manager {
	if len(handlers) == 0 {
		return m
	}
	c := *m
	c.handlers = make([]Handler, 0, len(m.handlers)+len(handlers))
	c.handlers = append(c.handlers, m.handlers...)
	c.handlers = append(c.handlers, handlers...)
	return &c
}

// WithTags returns a copy of m whose runs, and all their descendants, carry tags.
func (m *Manager) WithTags(tags ...string) *Manager {
	c := *m
	c.inheritableTags = helpers.MergeTags(m.inheritableTags, tags)
	return &c
}

func (m *Manager) WithMetadata(metadata map[string]any) *Manager {
	c := *m
	c.metadata = helpers.MergeMaps(m.metadata, metadata)
	return &c
}

type StartParams struct {
	Name    string
	RunType RunType
	Inputs  any
	// Tags and Metadata are inherited by child runs.
	Tags     []string
	Metadata map[string]any
	// RunID is allocated when left empty.
	RunID uuid.UUID
}

// StartRun allocates a new run whose parent is the run this manager was derived from, and
// emits OnStart.
func (m *Manager) StartRun(ctx context.Context, p StartParams) *RunManager {
	id := p.RunID
	if id == uuid.Nil {
		id = uuid.New()
	}
	runType := p.RunType
	if runType == "" {
		runType = RunTypeChain
	}
	metadata := helpers.MergeMaps(m.metadata, p.Metadata)
	run := &Run{
		ID:          id,
		ParentRunID: m.parentRunID,
		Name:        p.Name,
		RunType:     runType,
		Tags:        helpers.MergeTags(m.inheritableTags, m.tags, p.Tags),
		Metadata:    metadata,
		Inputs:      p.Inputs,
		StartTime:   time.Now(),
	}
	rm := &RunManager{
		run:             run,
		handlers:        m.handlers,
		inheritableTags: helpers.MergeTags(m.inheritableTags, p.Tags),
		metadata:        metadata,
	}

	log.Trace().
		Str("run_id", id.String()).
		Str("parent_run_id", parentString(m.parentRunID)).
		Str("name", p.Name).
		Strs("tags", run.Tags).
		Msg("run started")

	rm.mu.Lock()
	defer rm.mu.Unlock()
	s := run.snapshot()
	rm.dispatch("OnStart", func(h Handler) error { return h.OnStart(ctx, s) })

	return rm
}

// RunManager emits the events of a single run. It is safe for concurrent use, and emits
// events in the order its methods are called.
type RunManager struct {
	run             *Run
	handlers        []Handler
	inheritableTags []string
	metadata        map[string]any

	mu       sync.Mutex
	finished bool
}

func (rm *RunManager) RunID() uuid.UUID {
	if rm == nil {
		return uuid.Nil
	}
	return rm.run.ID
}

// Run returns a snapshot of the run.
func (rm *RunManager) Run() *Run {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.run.snapshot()
}

// GetChild returns a manager for nested steps: runs it starts have this run as parent and
// carry tag in addition to the inherited tags.
func (rm *RunManager) GetChild(tag string) *Manager {
	m := &Manager{
		handlers:        rm.handlers,
		parentRunID:     rm.run.ID,
		inheritableTags: rm.inheritableTags,
		metadata:        rm.metadata,
	}
	if tag != "" {
		m.tags = []string{tag}
	}
	return m
}

func (rm *RunManager) HandleChunk(ctx context.Context, chunk any) {
	if rm == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.finished {
		log.Debug().Str("run_id", rm.run.ID.String()).Msg("dropping chunk for finished run")
		return
	}
	s := rm.run.snapshot()
	rm.dispatch("OnChunk", func(h Handler) error { return h.OnChunk(ctx, s, chunk) })
}

func (rm *RunManager) HandleCustomEvent(ctx context.Context, name string, data any) {
	if rm == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.finished {
		log.Debug().Str("run_id", rm.run.ID.String()).Str("event", name).Msg("dropping custom event for finished run")
		return
	}
	s := rm.run.snapshot()
	rm.dispatch("OnCustomEvent", func(h Handler) error { return h.OnCustomEvent(ctx, s, name, data) })
}

// HandleEnd records outputs and emits OnEnd. Only the first terminal event of a run is emitted.
func (rm *RunManager) HandleEnd(ctx context.Context, outputs any) {
	if rm == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.finished {
		return
	}
	rm.finished = true
	rm.run.Outputs = outputs
	rm.run.EndTime = time.Now()
	s := rm.run.snapshot()

	log.Trace().Str("run_id", s.ID.String()).Str("name", s.Name).Dur("duration", s.Duration()).Msg("run ended")
	rm.dispatch("OnEnd", func(h Handler) error { return h.OnEnd(ctx, s) })
}

// HandleError records err and emits OnError. Only the first terminal event of a run is emitted.
func (rm *RunManager) HandleError(ctx context.Context, err error) {
	if rm == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.finished {
		return
	}
	rm.finished = true
	rm.run.Error = err
	rm.run.EndTime = time.Now()
	s := rm.run.snapshot()

	log.Trace().Str("run_id", s.ID.String()).Str("name", s.Name).Err(err).Msg("run failed")
	rm.dispatch("OnError", func(h Handler) error { return h.OnError(ctx, s, err) })
}

func (rm *RunManager) dispatch(event string, f func(h Handler) error) {
	for _, h := range rm.handlers {
		callHandler(event, rm.run, h, f)
	}
}

func callHandler(event string, run *Run, h Handler, f func(h Handler) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("event", event).
				Str("run_id", run.ID.String()).
				Str("handler", fmt.Sprintf("%T", h)).
				Interface("panic", r).
				Msg("callback handler panicked")
		}
	}()
	if err := f(h); err != nil {
		log.Warn().
			Err(err).
			Str("event", event).
			Str("run_id", run.ID.String()).
			Str("handler", fmt.Sprintf("%T", h)).
			Msg("callback handler failed")
	}
}

func parentString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
