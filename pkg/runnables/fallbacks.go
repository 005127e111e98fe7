package runnables

import (
	"context"
	"fmt"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
)

type FallbackOptions struct {
	// ShouldFallback restricts the errors that trigger a fallback. nil means all errors.
	// Nothing falls back once the fallbacks' own invocation is cancelled.
	ShouldFallback func(err error) bool
}

// Fallbacks tries a runnable, then each fallback in order, with the same input and config.
// The first success wins. Runs are labelled fallback:i, the primary being fallback:0.
type Fallbacks struct {
	runnables []Runnable
	options   FallbackOptions
}

var _ Streamer = (*Fallbacks)(nil)
var _ GraphProvider = (*Fallbacks)(nil)

func WithFallbacks(r Runnable, fallbacks ...Runnable) *Fallbacks {
	return WithFallbacksOptions(r, FallbackOptions{}, fallbacks...)
}

func WithFallbacksOptions(r Runnable, options FallbackOptions, fallbacks ...Runnable) *Fallbacks {
	return &Fallbacks{
		runnables: append([]Runnable{r}, fallbacks...),
		options:   options,
	}
}

func (f *Fallbacks) GetName() string {
	return "RunnableWithFallbacks"
}

func fallbackLabel(i int) string {
	return fmt.Sprintf("fallback:%d", i)
}

// shouldFallback only looks at ctx to decide about cancellation: a child that ran out of its
// own timeout is an ordinary failure.
func (f *Fallbacks) shouldFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if f.options.ShouldFallback != nil {
		return f.options.ShouldFallback(err)
	}
	return true
}

func (f *Fallbacks) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, f, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			var failures []error
			for i, r := range f.runnables {
				out, err := r.Invoke(ctx, input, ChildConfig(cfg, rm, fallbackLabel(i)))
				if err == nil {
					return out, nil
				}
				if !f.shouldFallback(ctx, err) {
					return nil, err
				}
				failures = append(failures, err)
			}
			return nil, fallbackError(failures)
		})
}

func fallbackError(failures []error) error {
	last := len(failures) - 1
	return &FallbackError{Err: failures[last], Suppressed: failures[:last]}
}

// Stream falls back only while no chunk has been yielded; a failure after the first chunk
// ends the stream.
func (f *Fallbacks) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamWithConfig(ctx, f, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error {
			var failures []error
			for i, r := range f.runnables {
				st, err := StreamOf(ctx, r, input, ChildConfig(cfg, rm, fallbackLabel(i)))
				if err == nil {
					if st.Next() {
						if !emit(st.Value()) {
							st.Close()
							return closedErr(ctx)
						}
						return forward(ctx, st, emit)
					}
					err = st.Err()
					st.Close()
					if err == nil {
						return nil
					}
				}
				if !f.shouldFallback(ctx, err) {
					return err
				}
				failures = append(failures, err)
			}
			return fallbackError(failures)
		}), nil
}

func (f *Fallbacks) GetGraph() (*graph.Graph, error) {
	return GetGraph(f.runnables[0])
}
