package runnables

import (
	"context"
	"sort"
	"sync"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
	"github.com/go-go-golems/runnable/pkg/helpers"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const parallelName = "RunnableParallel"

// Parallel runs named steps concurrently on the same input and collects their outputs
// under the same keys.
type Parallel struct {
	keys  []string
	steps map[string]Runnable
}

var _ Streamer = (*Parallel)(nil)
var _ GraphProvider = (*Parallel)(nil)

func NewParallel(steps map[string]RunnableLike) (*Parallel, error) {
	if len(steps) == 0 {
		return nil, &ValidationError{Runnable: parallelName, Reason: "no steps"}
	}
	ret := &Parallel{steps: make(map[string]Runnable, len(steps))}
	for k, v := range steps {
		r, err := Coerce(v)
		if err != nil {
			return nil, errors.Wrapf(err, "key %q", k)
		}
		ret.keys = append(ret.keys, k)
		ret.steps[k] = r
	}
	sort.Strings(ret.keys)
	return ret, nil
}

func (p *Parallel) GetName() string {
	return parallelName
}

// Keys returns the step names in sorted order.
func (p *Parallel) Keys() []string {
	return append([]string(nil), p.keys...)
}

func (p *Parallel) Step(key string) (Runnable, bool) {
	r, ok := p.steps[key]
	return r, ok
}

func mapLabel(key string) string {
	return "map:key:" + key
}

func (p *Parallel) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, p, input, cfg, callbacks.RunTypeChain, p.invoke)
}

func (p *Parallel) invoke(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
	g, gctx := errgroup.WithContext(ctx)
	if cfg.MaxConcurrency > 0 {
		g.SetLimit(cfg.MaxConcurrency)
	}

	var mu sync.Mutex
	ret := make(map[string]any, len(p.keys))
	for _, key := range p.keys {
		if gctx.Err() != nil {
			break
		}
		key := key
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			label := mapLabel(key)
			out, err := p.steps[key].Invoke(gctx, input, ChildConfig(cfg, rm, label))
			if err != nil {
				return stepError(parallelName, label, rm, err)
			}
			mu.Lock()
			defer mu.Unlock()
			ret[key] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	return ret, nil
}

// Stream runs all steps concurrently and yields their chunks as they arrive, each wrapped
// in a single-key map.
func (p *Parallel) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamWithConfig(ctx, p, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error {
			ctx, cancel := context.WithCancelCause(ctx)
			defer cancel(nil)

			channels := make([]<-chan helpers.Result[any], 0, len(p.keys))
			for _, key := range p.keys {
				c := make(chan helpers.Result[any])
				channels = append(channels, c)
				go p.streamKey(ctx, key, input, cfg, rm, c)
			}

			var firstErr error
			for r := range helpers.MergeChannels(ctx, channels...) {
				if firstErr != nil {
					continue
				}
				v, err := r.Value()
				if err != nil {
					firstErr = err
					cancel(err)
					continue
				}
				if !emit(v) {
					firstErr = closedErr(ctx)
					cancel(firstErr)
				}
			}
			return firstErr
		}), nil
}

func (p *Parallel) streamKey(
	ctx context.Context,
	key string,
	input any,
	cfg *config.RunnableConfig,
	rm *callbacks.RunManager,
	c chan<- helpers.Result[any],
) {
	defer close(c)
	label := mapLabel(key)
	send := func(r helpers.Result[any]) bool {
		select {
		case c <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	st, err := StreamOf(ctx, p.steps[key], input, ChildConfig(cfg, rm, label))
	if err != nil {
		send(helpers.NewErrorResult[any](stepError(parallelName, label, rm, err)))
		return
	}
	defer st.Close()
	for st.Next() {
		if !send(helpers.NewValueResult[any](map[string]any{key: st.Value()})) {
			return
		}
	}
	if err := st.Err(); err != nil {
		send(helpers.NewErrorResult[any](stepError(parallelName, label, rm, err)))
	}
}

func (p *Parallel) GetGraph() (*graph.Graph, error) {
	g := graph.New()
	in, err := g.AddNode(&graph.Schema{Name: parallelName + "Input"}, "")
	if err != nil {
		return nil, err
	}
	out, err := g.AddNode(&graph.Schema{Name: parallelName + "Output"}, "")
	if err != nil {
		return nil, err
	}
	for _, key := range p.keys {
		sg, err := GetGraph(p.steps[key])
		if err != nil {
			return nil, err
		}
		sg.TrimFirstNode()
		sg.TrimLastNode()
		first, last := g.Extend(sg, "")
		if first == nil || last == nil {
			return nil, errors.Errorf("step %q has no unique first or last node", key)
		}
		if _, err := g.AddEdge(in.ID, first.ID, "", false); err != nil {
			return nil, err
		}
		if _, err := g.AddEdge(last.ID, out.ID, "", false); err != nil {
			return nil, err
		}
	}
	return g, nil
}
