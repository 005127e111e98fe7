package runnables

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-go-golems/runnable/pkg/caller"
	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/invopop/jsonschema"
)

// Lambda is a leaf runnable wrapping a Go function. If the function returns a Runnable,
// that runnable is invoked with the same input as a child run, which lets a lambda pick its
// implementation at runtime (and bounds self-referential graphs by the recursion limit).
type Lambda struct {
	name         string
	runType      callbacks.RunType
	fn           func(ctx context.Context, input any) (any, error)
	caller       *caller.AsyncCaller
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
}

var _ Runnable = (*Lambda)(nil)
var _ SchemaProvider = (*Lambda)(nil)

type LambdaOption func(*Lambda)

// WithCaller runs the function through c, bounding its concurrency and retrying transient
// failures.
func WithCaller(c *caller.AsyncCaller) LambdaOption {
	return func(l *Lambda) {
		l.caller = c
	}
}

func WithRunType(runType callbacks.RunType) LambdaOption {
	return func(l *Lambda) {
		l.runType = runType
	}
}

// WithSchemas overrides the reflected input and output schemas.
func WithSchemas(input, output *jsonschema.Schema) LambdaOption {
	return func(l *Lambda) {
		l.inputSchema = input
		l.outputSchema = output
	}
}

var reflector = &jsonschema.Reflector{DoNotReference: true}

// schemaFor reflects the JSON schema of T. Interface types have no useful schema.
func schemaFor[T any]() *jsonschema.Schema {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Interface {
		return nil
	}
	return reflector.ReflectFromType(t)
}

// NewLambda wraps a typed function. Inputs that are not an I fail with a ValidationError.
func NewLambda[I, O any](name string, f func(ctx context.Context, input I) (O, error), options ...LambdaOption) *Lambda {
	ret := &Lambda{
		name:         name,
		runType:      callbacks.RunTypeLambda,
		inputSchema:  schemaFor[I](),
		outputSchema: schemaFor[O](),
	}
	ret.fn = func(ctx context.Context, input any) (any, error) {
		in, err := convertInput[I](name, input)
		if err != nil {
			return nil, err
		}
		return f(ctx, in)
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// NewSimpleLambda wraps a typed function that cannot fail.
func NewSimpleLambda[I, O any](name string, f func(input I) O, options ...LambdaOption) *Lambda {
	return NewLambda(name, func(_ context.Context, input I) (O, error) {
		return f(input), nil
	}, options...)
}

// NewFunc wraps a dynamically typed function.
func NewFunc(name string, f func(ctx context.Context, input any) (any, error), options ...LambdaOption) *Lambda {
	ret := &Lambda{
		name:    name,
		runType: callbacks.RunTypeLambda,
		fn:      f,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func convertInput[I any](name string, input any) (I, error) {
	var zero I
	if in, ok := input.(I); ok {
		return in, nil
	}
	if input == nil {
		switch reflect.TypeOf((*I)(nil)).Elem().Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return zero, nil
		}
	}
	return zero, &ValidationError{
		Runnable: name,
		Reason:   fmt.Sprintf("expected input of type %T, got %T", zero, input),
	}
}

func (l *Lambda) GetName() string {
	return l.name
}

func (l *Lambda) InputSchema() *jsonschema.Schema {
	return l.inputSchema
}

func (l *Lambda) OutputSchema() *jsonschema.Schema {
	return l.outputSchema
}

func (l *Lambda) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, l, input, cfg, l.runType,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			out, err := caller.Call(ctx, l.caller, func(ctx context.Context) (any, error) {
				return l.fn(ctx, input)
			})
			if err != nil {
				return nil, upstream(l.name, err)
			}
			if r, ok := out.(Runnable); ok {
				return r.Invoke(ctx, input, ChildConfig(cfg, rm, ""))
			}
			return out, nil
		})
}
