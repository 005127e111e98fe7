package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart  EventType = "start"
	EventTypeChunk  EventType = "chunk"
	EventTypeEnd    EventType = "end"
	EventTypeError  EventType = "error"
	EventTypeCustom EventType = "custom"
)

func (t EventType) valid() bool {
	switch t {
	case EventTypeStart, EventTypeChunk, EventTypeEnd, EventTypeError, EventTypeCustom:
		return true
	}
	return false
}

// RunEvent is the wire form of a single handler callback of a run.
type RunEvent struct {
	Type        EventType         `json:"type"`
	RunID       uuid.UUID         `json:"run_id"`
	ParentRunID uuid.UUID         `json:"parent_run_id"`
	RootRunID   uuid.UUID         `json:"root_run_id"`
	Name        string            `json:"name"`
	RunType     callbacks.RunType `json:"run_type"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`

	Inputs     any    `json:"inputs,omitempty"`
	Outputs    any    `json:"outputs,omitempty"`
	Chunk      any    `json:"chunk,omitempty"`
	CustomName string `json:"custom_name,omitempty"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`

	Time time.Time `json:"time"`
}

func newRunEvent(t EventType, run *callbacks.Run, root uuid.UUID) *RunEvent {
	return &RunEvent{
		Type:        t,
		RunID:       run.ID,
		ParentRunID: run.ParentRunID,
		RootRunID:   root,
		Name:        run.Name,
		RunType:     run.RunType,
		Tags:        run.Tags,
		Metadata:    jsonSafeMap(run.Metadata),
		Time:        time.Now(),
	}
}

func (e *RunEvent) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type)).
		Str("run_id", e.RunID.String()).
		Str("root_run_id", e.RootRunID.String()).
		Str("name", e.Name)
	if e.ParentRunID != uuid.Nil {
		ev.Str("parent_run_id", e.ParentRunID.String())
	}
	if len(e.Tags) > 0 {
		ev.Strs("tags", e.Tags)
	}
	if e.CustomName != "" {
		ev.Str("custom_name", e.CustomName)
	}
	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

// NewEventFromJSON parses a published run event.
func NewEventFromJSON(b []byte) (*RunEvent, error) {
	e := &RunEvent{}
	if err := json.Unmarshal(b, e); err != nil {
		return nil, errors.Wrap(err, "could not parse run event")
	}
	if !e.Type.valid() {
		return nil, errors.Errorf("unknown run event type %q", e.Type)
	}
	return e, nil
}

// jsonSafe returns v if it can be serialized to JSON, its printed form otherwise.
// Run inputs and outputs are arbitrary values, runnables and funcs included.
func jsonSafe(v any) any {
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}

func jsonSafeMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	ret := make(map[string]any, len(m))
	for k, v := range m {
		ret[k] = jsonSafe(v)
	}
	return ret
}
