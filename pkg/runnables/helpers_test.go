package runnables

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
)

func addOne() *Lambda {
	return NewSimpleLambda("add_one", func(x int) int { return x + 1 })
}

func double() *Lambda {
	return NewSimpleLambda("double", func(x int) int { return x * 2 })
}

func failing(name string, err error) *Lambda {
	return NewFunc(name, func(ctx context.Context, input any) (any, error) {
		return nil, err
	})
}

// counter counts invocations of the wrapped function.
type counter struct {
	calls int32
}

func (c *counter) wrap(name string, f func(any) any) *Lambda {
	return NewFunc(name, func(ctx context.Context, input any) (any, error) {
		atomic.AddInt32(&c.calls, 1)
		return f(input), nil
	})
}

func (c *counter) count() int {
	return int(atomic.LoadInt32(&c.calls))
}

// sleeper waits d, honoring cancellation, then echoes its input.
func sleeper(d time.Duration) *Lambda {
	return NewFunc("sleeper", func(ctx context.Context, input any) (any, error) {
		select {
		case <-time.After(d):
			return input, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// words streams the words of its string input, one chunk per word.
type words struct{}

func (w *words) GetName() string { return "words" }

func (w *words) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	s, err := w.Stream(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	chunks, err := s.Collect()
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.(string))
	}
	return sb.String(), nil
}

func (w *words) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamWithConfig(ctx, w, input, cfg, callbacks.RunTypeLLM,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error {
			s, ok := input.(string)
			if !ok {
				return &ValidationError{Runnable: "words", Reason: "expected a string"}
			}
			for i, word := range strings.Fields(s) {
				if i > 0 {
					word = " " + word
				}
				if !emit(word) {
					return ctx.Err()
				}
			}
			return nil
		}), nil
}

func withCollector() (*config.RunnableConfig, *callbacks.Collector) {
	c := callbacks.NewCollector()
	return &config.RunnableConfig{Handlers: []callbacks.Handler{c}}, c
}
