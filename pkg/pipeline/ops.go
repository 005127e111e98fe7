package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/runnable/pkg/caller"
	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/pkg/errors"
)

// DefaultRegistry returns a registry holding the built-in ops.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

func RegisterBuiltins(r *Registry) {
	r.MustRegister("identity", func(Args) (runnables.Runnable, error) { return runnables.NewPassthrough(), nil })
	r.MustRegister("constant", constantOp)
	r.MustRegister("add", arithmeticOp("add", func(a, b float64) float64 { return a + b }))
	r.MustRegister("multiply", arithmeticOp("multiply", func(a, b float64) float64 { return a * b }))
	r.MustRegister("gt", compareOp("gt", func(a, b float64) bool { return a > b }))
	r.MustRegister("lt", compareOp("lt", func(a, b float64) bool { return a < b }))
	r.MustRegister("eq", eqOp)
	r.MustRegister("not", func(Args) (runnables.Runnable, error) {
		return runnables.NewSimpleLambda("not", func(v any) bool { return !runnables.Truthy(v) }), nil
	})
	r.MustRegister("upper", func(Args) (runnables.Runnable, error) {
		return runnables.NewSimpleLambda("upper", strings.ToUpper), nil
	})
	r.MustRegister("lower", func(Args) (runnables.Runnable, error) {
		return runnables.NewSimpleLambda("lower", strings.ToLower), nil
	})
	r.MustRegister("concat", concatOp)
	r.MustRegister("template", templateOp)
	r.MustRegister("sleep", sleepOp)
	r.MustRegister("fail", failOp)
	r.MustRegister("flaky", flakyOp)
	r.MustRegister("parse_json", func(Args) (runnables.Runnable, error) {
		return runnables.NewLambda("parse_json", func(_ context.Context, s string) (any, error) {
			var ret any
			if err := json.Unmarshal([]byte(s), &ret); err != nil {
				return nil, caller.Permanent(errors.Wrap(err, "invalid JSON"))
			}
			return ret, nil
		}), nil
	})
	r.MustRegister("to_json", func(Args) (runnables.Runnable, error) {
		return runnables.NewLambda("to_json", func(_ context.Context, v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", caller.Permanent(err)
			}
			return string(b), nil
		}), nil
	})
	r.MustRegister("to_string", func(Args) (runnables.Runnable, error) {
		return runnables.NewSimpleLambda("to_string", func(v any) string { return fmt.Sprint(v) }), nil
	})
	r.MustRegister("length", lengthOp)
	r.MustRegister("get", getOp)
	r.MustRegister("split_words", func(Args) (runnables.Runnable, error) { return &splitWords{}, nil })
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// fromNumber returns integral results as int.
func fromNumber(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

func numberInput(name string, input any) (float64, error) {
	f, ok := toNumber(input)
	if !ok {
		return 0, &runnables.ValidationError{Runnable: name, Reason: fmt.Sprintf("expected a number, got %T", input)}
	}
	return f, nil
}

func constantOp(args Args) (runnables.Runnable, error) {
	v, ok := args.Any("value")
	if !ok {
		return nil, errors.New("missing argument value")
	}
	return runnables.NewFunc("constant", func(context.Context, any) (any, error) { return v, nil }), nil
}

func arithmeticOp(name string, f func(a, b float64) float64) Factory {
	return func(args Args) (runnables.Runnable, error) {
		operand, err := args.Number("value")
		if err != nil {
			return nil, err
		}
		return runnables.NewFunc(name, func(_ context.Context, input any) (any, error) {
			x, err := numberInput(name, input)
			if err != nil {
				return nil, err
			}
			return fromNumber(f(x, operand)), nil
		}), nil
	}
}

func compareOp(name string, f func(a, b float64) bool) Factory {
	return func(args Args) (runnables.Runnable, error) {
		operand, err := args.Number("value")
		if err != nil {
			return nil, err
		}
		return runnables.NewFunc(name, func(_ context.Context, input any) (any, error) {
			x, err := numberInput(name, input)
			if err != nil {
				return nil, err
			}
			return f(x, operand), nil
		}), nil
	}
}

func eqOp(args Args) (runnables.Runnable, error) {
	want, ok := args.Any("value")
	if !ok {
		return nil, errors.New("missing argument value")
	}
	return runnables.NewFunc("eq", func(_ context.Context, input any) (any, error) {
		a, aok := toNumber(input)
		b, bok := toNumber(want)
		if aok && bok {
			return a == b, nil
		}
		return reflect.DeepEqual(input, want), nil
	}), nil
}

func concatOp(args Args) (runnables.Runnable, error) {
	prefix, err := args.String("prefix", "")
	if err != nil {
		return nil, err
	}
	suffix, err := args.String("suffix", "")
	if err != nil {
		return nil, err
	}
	return runnables.NewSimpleLambda("concat", func(s string) string { return prefix + s + suffix }), nil
}

// templateOp renders a text/template with the sprig functions, the input being the dot.
func templateOp(args Args) (runnables.Runnable, error) {
	text, err := args.RequiredString("template")
	if err != nil {
		return nil, err
	}
	t, err := template.New("template").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "invalid template")
	}
	return runnables.NewFunc("template", func(_ context.Context, input any) (any, error) {
		var buf bytes.Buffer
		if err := t.Execute(&buf, input); err != nil {
			return nil, caller.Permanent(errors.Wrap(err, "could not render template"))
		}
		return buf.String(), nil
	}), nil
}

func sleepOp(args Args) (runnables.Runnable, error) {
	d, err := args.Duration("duration", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return runnables.NewFunc("sleep", func(ctx context.Context, input any) (any, error) {
		if err := caller.Sleep(ctx, d); err != nil {
			return nil, err
		}
		return input, nil
	}), nil
}

func failOp(args Args) (runnables.Runnable, error) {
	msg, err := args.String("message", "failed")
	if err != nil {
		return nil, err
	}
	return runnables.NewFunc("fail", func(context.Context, any) (any, error) {
		return nil, errors.New(msg)
	}), nil
}

// flakyOp fails its first `failures` invocations with a retryable error, then echoes its
// input. The count is shared by all invocations of the built runnable.
func flakyOp(args Args) (runnables.Runnable, error) {
	failures, err := args.Int("failures", 1)
	if err != nil {
		return nil, err
	}
	msg, err := args.String("message", "transient failure")
	if err != nil {
		return nil, err
	}
	var calls int64
	return runnables.NewFunc("flaky", func(_ context.Context, input any) (any, error) {
		if n := atomic.AddInt64(&calls, 1); n <= int64(failures) {
			return nil, caller.Retryable(errors.Errorf("%s (%d/%d)", msg, n, failures))
		}
		return input, nil
	}), nil
}

func lengthOp(Args) (runnables.Runnable, error) {
	return runnables.NewFunc("length", func(_ context.Context, input any) (any, error) {
		if input == nil {
			return 0, nil
		}
		v := reflect.ValueOf(input)
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
			return v.Len(), nil
		}
		return nil, &runnables.ValidationError{Runnable: "length", Reason: fmt.Sprintf("%T has no length", input)}
	}), nil
}

func getOp(args Args) (runnables.Runnable, error) {
	key, err := args.RequiredString("key")
	if err != nil {
		return nil, err
	}
	return runnables.NewFunc("get", func(_ context.Context, input any) (any, error) {
		m, ok := input.(map[string]any)
		if !ok {
			return nil, &runnables.ValidationError{Runnable: "get", Reason: fmt.Sprintf("expected a map, got %T", input)}
		}
		return m[key], nil
	}), nil
}

// splitWords streams the words of a string, keeping the separating space on every word
// but the first so that the chunks concatenate back to the normalized input.
type splitWords struct{}

var _ runnables.Streamer = (*splitWords)(nil)

func (s *splitWords) GetName() string {
	return "split_words"
}

func (s *splitWords) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	st, err := s.Stream(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	chunks, err := st.Collect()
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.(string))
	}
	return sb.String(), nil
}

func (s *splitWords) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*runnables.Stream[any], error) {
	return runnables.StreamWithConfig(ctx, s, input, cfg, callbacks.RunTypeParser,
		func(ctx context.Context, input any, _ *config.RunnableConfig, _ *callbacks.RunManager, emit func(any) bool) error {
			text, ok := input.(string)
			if !ok {
				return &runnables.ValidationError{Runnable: s.GetName(), Reason: fmt.Sprintf("expected a string, got %T", input)}
			}
			for i, w := range strings.Fields(text) {
				if i > 0 {
					w = " " + w
				}
				if !emit(w) {
					return ctx.Err()
				}
			}
			return nil
		}), nil
}
