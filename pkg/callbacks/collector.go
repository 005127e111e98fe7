package callbacks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventStart       EventKind = "start"
	EventChunk       EventKind = "chunk"
	EventEnd         EventKind = "end"
	EventError       EventKind = "error"
	EventCustomEvent EventKind = "custom"
)

// Event is one recorded handler call.
type Event struct {
	Kind        EventKind
	RunID       uuid.UUID
	ParentRunID uuid.UUID
	Name        string
	Chunk       any
	CustomName  string
	Data        any
	Err         error
	Time        time.Time
}

// RunNode is a run together with its children, in start order.
type RunNode struct {
	Run      *Run
	Children []*RunNode
}

// Collector records every event in memory and rebuilds the run tree from them.
// It is mostly useful in tests and for debugging.
type Collector struct {
	mu     sync.RWMutex
	events []Event
	runs   map[uuid.UUID]*Run
	order  []uuid.UUID
}

var _ Handler = (*Collector)(nil)

func NewCollector() *Collector {
	return &Collector{
		runs: map[uuid.UUID]*Run{},
	}
}

func (c *Collector) record(run *Run, e Event) {
	e.RunID = run.ID
	e.ParentRunID = run.ParentRunID
	e.Name = run.Name
	e.Time = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	if _, ok := c.runs[run.ID]; !ok {
		c.order = append(c.order, run.ID)
	}
	c.runs[run.ID] = run.snapshot()
}

func (c *Collector) OnStart(_ context.Context, run *Run) error {
	c.record(run, Event{Kind: EventStart})
	return nil
}

func (c *Collector) OnChunk(_ context.Context, run *Run, chunk any) error {
	c.record(run, Event{Kind: EventChunk, Chunk: chunk})
	return nil
}

func (c *Collector) OnEnd(_ context.Context, run *Run) error {
	c.record(run, Event{Kind: EventEnd})
	return nil
}

func (c *Collector) OnError(_ context.Context, run *Run, err error) error {
	c.record(run, Event{Kind: EventError, Err: err})
	return nil
}

func (c *Collector) OnCustomEvent(_ context.Context, run *Run, name string, data any) error {
	c.record(run, Event{Kind: EventCustomEvent, CustomName: name, Data: data})
	return nil
}

// Events returns all recorded events in arrival order.
func (c *Collector) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Event(nil), c.events...)
}

// EventsFor returns the events of a single run in arrival order.
func (c *Collector) EventsFor(id uuid.UUID) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ret []Event
	for _, e := range c.events {
		if e.RunID == id {
			ret = append(ret, e)
		}
	}
	return ret
}

// Runs returns the latest state of every run, in start order.
func (c *Collector) Runs() []*Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ret := make([]*Run, 0, len(c.order))
	for _, id := range c.order {
		ret = append(ret, c.runs[id].snapshot())
	}
	return ret
}

func (c *Collector) Run(id uuid.UUID) (*Run, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.runs[id]
	if !ok {
		return nil, false
	}
	return r.snapshot(), true
}

// Roots returns the runs without parent, in start order.
func (c *Collector) Roots() []*Run {
	var ret []*Run
	for _, r := range c.Runs() {
		if r.IsRoot() {
			ret = append(ret, r)
		}
	}
	return ret
}

// Children returns the direct children of a run, in start order.
func (c *Collector) Children(id uuid.UUID) []*Run {
	var ret []*Run
	for _, r := range c.Runs() {
		if r.ParentRunID == id && !r.IsRoot() {
			ret = append(ret, r)
		}
	}
	return ret
}

// FindByName returns all runs with the given name, in start order.
func (c *Collector) FindByName(name string) []*Run {
	var ret []*Run
	for _, r := range c.Runs() {
		if r.Name == name {
			ret = append(ret, r)
		}
	}
	return ret
}

// FindByTag returns all runs carrying tag, in start order.
func (c *Collector) FindByTag(tag string) []*Run {
	var ret []*Run
	for _, r := range c.Runs() {
		if r.HasTag(tag) {
			ret = append(ret, r)
		}
	}
	return ret
}

// Tree rebuilds the recorded run forest.
func (c *Collector) Tree() []*RunNode {
	runs := c.Runs()
	nodes := make(map[uuid.UUID]*RunNode, len(runs))
	for _, r := range runs {
		nodes[r.ID] = &RunNode{Run: r}
	}
	var roots []*RunNode
	for _, r := range runs {
		n := nodes[r.ID]
		parent, ok := nodes[r.ParentRunID]
		if r.IsRoot() || !ok {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
	c.runs = map[uuid.UUID]*Run{}
	c.order = nil
}
