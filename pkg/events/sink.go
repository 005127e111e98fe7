package events

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/helpers"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sink is a callbacks.Handler that publishes every callback as a RunEvent. Messages carry
// the root run id, which also becomes their correlation id, and a sequence number.
type Sink struct {
	manager *PublisherManager

	mu    sync.Mutex
	roots map[uuid.UUID]uuid.UUID
}

var _ callbacks.Handler = (*Sink)(nil)

// NewSink publishes to a single topic of publisher.
func NewSink(publisher message.Publisher, topic string) *Sink {
	m := NewPublisherManager()
	m.SubscribePublisher(topic, publisher)
	return NewSinkWithManager(m)
}

func NewSinkWithManager(m *PublisherManager) *Sink {
	return &Sink{manager: m, roots: map[uuid.UUID]uuid.UUID{}}
}

func (s *Sink) rootOf(run *callbacks.Run, start bool) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if root, ok := s.roots[run.ID]; ok {
		return root
	}
	root := run.ID
	if run.ParentRunID != uuid.Nil {
		root = run.ParentRunID
		if r, ok := s.roots[run.ParentRunID]; ok {
			root = r
		}
	}
	if start {
		s.roots[run.ID] = root
	}
	return root
}

func (s *Sink) forget(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roots, id)
}

func (s *Sink) publish(e *RunEvent) error {
	log.Trace().Object("event", e).Msg("publishing run event")
	return s.manager.Publish(e, map[string]string{
		helpers.RootRunIDMetadataKey: e.RootRunID.String(),
		"run_id":                     e.RunID.String(),
		"event_type":                 string(e.Type),
	})
}

func (s *Sink) OnStart(_ context.Context, run *callbacks.Run) error {
	e := newRunEvent(EventTypeStart, run, s.rootOf(run, true))
	e.Inputs = jsonSafe(run.Inputs)
	return s.publish(e)
}

func (s *Sink) OnChunk(_ context.Context, run *callbacks.Run, chunk any) error {
	e := newRunEvent(EventTypeChunk, run, s.rootOf(run, false))
	e.Chunk = jsonSafe(chunk)
	return s.publish(e)
}

func (s *Sink) OnEnd(_ context.Context, run *callbacks.Run) error {
	e := newRunEvent(EventTypeEnd, run, s.rootOf(run, false))
	e.Outputs = jsonSafe(run.Outputs)
	s.forget(run.ID)
	return s.publish(e)
}

func (s *Sink) OnError(_ context.Context, run *callbacks.Run, err error) error {
	e := newRunEvent(EventTypeError, run, s.rootOf(run, false))
	if err != nil {
		e.Error = err.Error()
	}
	s.forget(run.ID)
	return s.publish(e)
}

func (s *Sink) OnCustomEvent(_ context.Context, run *callbacks.Run, name string, data any) error {
	e := newRunEvent(EventTypeCustom, run, s.rootOf(run, false))
	e.CustomName = name
	e.Data = jsonSafe(data)
	return s.publish(e)
}
