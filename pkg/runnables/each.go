package runnables

import (
	"context"
	"fmt"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
)

// Each applies a runnable to every element of a []any input, concurrently, bounded by the
// config's MaxConcurrency. Element i runs as child each:i.
type Each struct {
	bound Runnable
}

var _ GraphProvider = (*Each)(nil)

func NewEach(r RunnableLike) (*Each, error) {
	bound, err := Coerce(r)
	if err != nil {
		return nil, err
	}
	return &Each{bound: bound}, nil
}

func (e *Each) GetName() string {
	return "RunnableEach<" + e.bound.GetName() + ">"
}

func (e *Each) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, e, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			items, ok := input.([]any)
			if !ok {
				return nil, &ValidationError{Runnable: e.GetName(), Reason: fmt.Sprintf("expected a []any input, got %T", input)}
			}
			cfgs := make([]*config.RunnableConfig, len(items))
			for i := range items {
				cfgs[i] = ChildConfig(cfg, rm, fmt.Sprintf("each:%d", i))
			}
			return BatchConfigs(ctx, e.bound, items, cfgs, WithMaxConcurrency(cfg.MaxConcurrency))
		})
}

func (e *Each) GetGraph() (*graph.Graph, error) {
	return GetGraph(e.bound)
}
