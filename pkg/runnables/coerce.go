package runnables

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// RunnableLike is anything Coerce accepts: a Runnable, a function of one of the shapes
//
//	func(context.Context, any) (any, error)
//	func(any) (any, error)
//	func(any) any
//
// or a map[string]any / map[string]Runnable of runnable-likes, which becomes a Parallel.
type RunnableLike = any

// Coerce turns a RunnableLike into a Runnable. Composite constructors call it once, when
// the graph is built.
func Coerce(v RunnableLike) (Runnable, error) {
	switch t := v.(type) {
	case Runnable:
		return t, nil
	case func(context.Context, any) (any, error):
		return NewFunc("RunnableLambda", t), nil
	case func(any) (any, error):
		return NewFunc("RunnableLambda", func(_ context.Context, input any) (any, error) {
			return t(input)
		}), nil
	case func(any) any:
		return NewFunc("RunnableLambda", func(_ context.Context, input any) (any, error) {
			return t(input), nil
		}), nil
	case map[string]any:
		return NewParallel(t)
	case map[string]Runnable:
		steps := make(map[string]any, len(t))
		for k, r := range t {
			steps[k] = r
		}
		return NewParallel(steps)
	case nil:
		return nil, &ValidationError{Reason: "cannot use nil as a runnable"}
	}
	return nil, &ValidationError{Reason: fmt.Sprintf("cannot use %T as a runnable", v)}
}

// MustCoerce is Coerce for graphs built at init time. It panics on error.
func MustCoerce(v RunnableLike) Runnable {
	r, err := Coerce(v)
	if err != nil {
		panic(err)
	}
	return r
}

func coerceAll(vs []RunnableLike) ([]Runnable, error) {
	ret := make([]Runnable, 0, len(vs))
	for i, v := range vs {
		r, err := Coerce(v)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		ret = append(ret, r)
	}
	return ret, nil
}
