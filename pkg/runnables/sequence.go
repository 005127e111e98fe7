package runnables

import (
	"context"
	"fmt"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
	"github.com/pkg/errors"
)

const sequenceName = "RunnableSequence"

// Sequence feeds the output of each step into the next one.
type Sequence struct {
	name  string
	steps []Runnable
}

var _ Streamer = (*Sequence)(nil)
var _ GraphProvider = (*Sequence)(nil)

// NewSequence builds a sequence of at least two steps. Steps that are themselves sequences
// are spliced in rather than nested.
func NewSequence(steps ...RunnableLike) (*Sequence, error) {
	rs, err := coerceAll(steps)
	if err != nil {
		return nil, err
	}
	var flat []Runnable
	for _, r := range rs {
		if s, ok := r.(*Sequence); ok {
			flat = append(flat, s.steps...)
			continue
		}
		flat = append(flat, r)
	}
	if len(flat) < 2 {
		return nil, &ValidationError{Runnable: sequenceName, Reason: "a sequence needs at least two steps"}
	}
	return &Sequence{steps: flat}, nil
}

// Pipe chains first with rest into a sequence.
func Pipe(first RunnableLike, rest ...RunnableLike) (*Sequence, error) {
	return NewSequence(append([]RunnableLike{first}, rest...)...)
}

// MustPipe is Pipe for graphs built at init time. It panics on error.
func MustPipe(first RunnableLike, rest ...RunnableLike) *Sequence {
	s, err := Pipe(first, rest...)
	if err != nil {
		panic(err)
	}
	return s
}

// WithName returns a copy of s reporting its runs under name.
func (s *Sequence) WithName(name string) *Sequence {
	return &Sequence{name: name, steps: s.steps}
}

func (s *Sequence) GetName() string {
	if s.name != "" {
		return s.name
	}
	return sequenceName
}

func (s *Sequence) Steps() []Runnable {
	return append([]Runnable(nil), s.steps...)
}

func stepLabel(i int) string {
	return fmt.Sprintf("seq:step:%d", i)
}

func (s *Sequence) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, s, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			return s.invokeSteps(ctx, s.steps, 0, input, cfg, rm)
		})
}

func (s *Sequence) invokeSteps(
	ctx context.Context,
	steps []Runnable,
	offset int,
	input any,
	cfg *config.RunnableConfig,
	rm *callbacks.RunManager,
) (any, error) {
	v := input
	for i, step := range steps {
		label := stepLabel(offset + i)
		out, err := step.Invoke(ctx, v, ChildConfig(cfg, rm, label))
		if err != nil {
			return nil, stepError(s.GetName(), label, rm, err)
		}
		v = out
	}
	return v, nil
}

// Stream invokes all steps but the last one, then streams the last step on the
// materialized output. A last step without native streaming yields a single chunk.
func (s *Sequence) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamWithConfig(ctx, s, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error {
			last := len(s.steps) - 1
			v, err := s.invokeSteps(ctx, s.steps[:last], 0, input, cfg, rm)
			if err != nil {
				return err
			}
			label := stepLabel(last)
			st, err := StreamOf(ctx, s.steps[last], v, ChildConfig(cfg, rm, label))
			if err != nil {
				return stepError(s.GetName(), label, rm, err)
			}
			if err := forward(ctx, st, emit); err != nil {
				if ctx.Err() != nil {
					return err
				}
				return stepError(s.GetName(), label, rm, err)
			}
			return nil
		}), nil
}

func (s *Sequence) GetGraph() (*graph.Graph, error) {
	g := graph.New()
	var lastNode *graph.Node
	for i, step := range s.steps {
		sg, err := GetGraph(step)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			sg.TrimFirstNode()
		}
		if i < len(s.steps)-1 {
			sg.TrimLastNode()
		}
		first, last := g.Extend(sg, "")
		if first == nil {
			return nil, errors.Errorf("step %d (%s) has no first node", i, step.GetName())
		}
		if lastNode != nil {
			if _, err := g.AddEdge(lastNode.ID, first.ID, "", false); err != nil {
				return nil, err
			}
		}
		lastNode = last
	}
	return g, nil
}
