package callbacks

import (
	"time"

	"github.com/google/uuid"
)

type RunType string

const (
	RunTypeChain     RunType = "chain"
	RunTypeLambda    RunType = "lambda"
	RunTypeParser    RunType = "parser"
	RunTypeRetriever RunType = "retriever"
	RunTypeTool      RunType = "tool"
	RunTypeLLM       RunType = "llm"
)

// Run is one observed execution span. ParentRunID is uuid.Nil for the root of a tree.
type Run struct {
	ID          uuid.UUID      `json:"id"`
	ParentRunID uuid.UUID      `json:"parent_run_id,omitempty"`
	Name        string         `json:"name"`
	RunType     RunType        `json:"run_type"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Inputs      any            `json:"inputs,omitempty"`
	Outputs     any            `json:"outputs,omitempty"`
	Error       error          `json:"-"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time,omitempty"`
}

func (r *Run) IsRoot() bool {
	return r.ParentRunID == uuid.Nil
}

func (r *Run) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (r *Run) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// snapshot returns a shallow copy, so handlers never observe later mutations of the live run.
func (r *Run) snapshot() *Run {
	c := *r
	return &c
}
