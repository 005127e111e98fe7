package runnables

import (
	"context"
	"fmt"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
	clone "github.com/huandu/go-clone"
)

// Passthrough returns its input unchanged.
type Passthrough struct{}

var _ Streamer = (*Passthrough)(nil)

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) GetName() string {
	return "RunnablePassthrough"
}

func (p *Passthrough) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, p, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			return input, nil
		})
}

func (p *Passthrough) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamWithConfig(ctx, p, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error {
			if !emit(input) {
				return closedErr(ctx)
			}
			return nil
		}), nil
}

// Assign computes new fields from a map input and returns a copy of the input with the
// fields added. The input is deep-cloned before merging, so outputs never alias inputs.
type Assign struct {
	mapper *Parallel
}

var _ Streamer = (*Assign)(nil)
var _ GraphProvider = (*Assign)(nil)

func NewAssign(fields map[string]RunnableLike) (*Assign, error) {
	p, err := NewParallel(fields)
	if err != nil {
		return nil, err
	}
	return &Assign{mapper: p}, nil
}

func (a *Assign) GetName() string {
	return "RunnableAssign"
}

func inputMap(name string, input any) (map[string]any, error) {
	m, ok := input.(map[string]any)
	if !ok {
		return nil, &ValidationError{Runnable: name, Reason: fmt.Sprintf("expected a map[string]any input, got %T", input)}
	}
	return m, nil
}

func (a *Assign) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, a, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			in, err := inputMap(a.GetName(), input)
			if err != nil {
				return nil, err
			}
			fields, err := a.mapper.Invoke(ctx, input, ChildConfig(cfg, rm, ""))
			if err != nil {
				return nil, err
			}
			ret := clone.Clone(in).(map[string]any)
			if ret == nil {
				ret = map[string]any{}
			}
			for k, v := range fields.(map[string]any) {
				ret[k] = v
			}
			return ret, nil
		})
}

// Stream first yields a clone of the input, then the computed fields as they arrive.
func (a *Assign) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamWithConfig(ctx, a, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error {
			in, err := inputMap(a.GetName(), input)
			if err != nil {
				return err
			}
			if !emit(clone.Clone(in)) {
				return closedErr(ctx)
			}
			st, err := a.mapper.Stream(ctx, input, ChildConfig(cfg, rm, ""))
			if err != nil {
				return err
			}
			return forward(ctx, st, emit)
		}), nil
}

func (a *Assign) GetGraph() (*graph.Graph, error) {
	g, err := a.mapper.GetGraph()
	if err != nil {
		return nil, err
	}
	// the input also flows directly into the output
	first, last := g.FirstNode(), g.LastNode()
	if first != nil && last != nil {
		if _, err := g.AddEdge(first.ID, last.ID, "", false); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Pick selects keys from a map input. With a single key, it returns that key's value;
// otherwise a map holding the keys present in the input.
type Pick struct {
	keys []string
}

func NewPick(keys ...string) (*Pick, error) {
	if len(keys) == 0 {
		return nil, &ValidationError{Runnable: "RunnablePick", Reason: "no keys to pick"}
	}
	return &Pick{keys: append([]string(nil), keys...)}, nil
}

func (p *Pick) GetName() string {
	return "RunnablePick"
}

func (p *Pick) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, p, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			in, err := inputMap(p.GetName(), input)
			if err != nil {
				return nil, err
			}
			if len(p.keys) == 1 {
				return in[p.keys[0]], nil
			}
			ret := map[string]any{}
			for _, k := range p.keys {
				if v, ok := in[k]; ok {
					ret[k] = v
				}
			}
			return ret, nil
		})
}
