package runnables

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
	"github.com/pkg/errors"
)

const branchName = "RunnableBranch"

// Case is a RunnableLike condition together with the RunnableLike run when it holds.
type Case struct {
	Condition RunnableLike
	Then      RunnableLike
}

type branchCase struct {
	condition Runnable
	then      Runnable
}

// Branch runs the consequence of the first condition that holds, or the default.
// Conditions are evaluated in order, and none is evaluated after the first truthy one.
type Branch struct {
	cases []branchCase
	def   Runnable
}

var _ Streamer = (*Branch)(nil)
var _ GraphProvider = (*Branch)(nil)

func NewBranch(def RunnableLike, cases ...Case) (*Branch, error) {
	if len(cases) == 0 {
		return nil, &ValidationError{Runnable: branchName, Reason: "a branch needs at least one case"}
	}
	d, err := Coerce(def)
	if err != nil {
		return nil, errors.Wrap(err, "default")
	}
	ret := &Branch{def: d}
	for i, c := range cases {
		cond, err := Coerce(c.Condition)
		if err != nil {
			return nil, errors.Wrapf(err, "condition %d", i)
		}
		then, err := Coerce(c.Then)
		if err != nil {
			return nil, errors.Wrapf(err, "branch %d", i)
		}
		ret.cases = append(ret.cases, branchCase{condition: cond, then: then})
	}
	return ret, nil
}

func (b *Branch) GetName() string {
	return branchName
}

// choose evaluates the conditions and returns the runnable to run with its label.
func (b *Branch) choose(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (Runnable, string, error) {
	for i, c := range b.cases {
		label := fmt.Sprintf("condition:%d", i)
		v, err := c.condition.Invoke(ctx, input, ChildConfig(cfg, rm, label))
		if err != nil {
			return nil, label, stepError(branchName, label, rm, err)
		}
		if Truthy(v) {
			return c.then, fmt.Sprintf("branch:%d", i), nil
		}
	}
	return b.def, "default", nil
}

func (b *Branch) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, b, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			r, label, err := b.choose(ctx, input, cfg, rm)
			if err != nil {
				return nil, err
			}
			out, err := r.Invoke(ctx, input, ChildConfig(cfg, rm, label))
			if err != nil {
				return nil, stepError(branchName, label, rm, err)
			}
			return out, nil
		})
}

func (b *Branch) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamWithConfig(ctx, b, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error {
			r, label, err := b.choose(ctx, input, cfg, rm)
			if err != nil {
				return err
			}
			st, err := StreamOf(ctx, r, input, ChildConfig(cfg, rm, label))
			if err != nil {
				return stepError(branchName, label, rm, err)
			}
			if err := forward(ctx, st, emit); err != nil {
				if ctx.Err() != nil {
					return err
				}
				return stepError(branchName, label, rm, err)
			}
			return nil
		}), nil
}

// GetGraph draws every consequence and the default behind conditional edges from the
// branch node, labelled with the condition that selects them.
func (b *Branch) GetGraph() (*graph.Graph, error) {
	g := graph.New()
	in, err := g.AddNode(&graph.Schema{Name: branchName + "Input"}, "")
	if err != nil {
		return nil, err
	}
	node, err := g.AddNode(b, "")
	if err != nil {
		return nil, err
	}
	out, err := g.AddNode(&graph.Schema{Name: branchName + "Output"}, "")
	if err != nil {
		return nil, err
	}
	if _, err := g.AddEdge(in.ID, node.ID, "", false); err != nil {
		return nil, err
	}

	add := func(r Runnable, label string) error {
		sg, err := GetGraph(r)
		if err != nil {
			return err
		}
		sg.TrimFirstNode()
		sg.TrimLastNode()
		first, last := g.Extend(sg, "")
		if first == nil || last == nil {
			return errors.Errorf("%s has no unique first or last node", r.GetName())
		}
		if _, err := g.AddEdge(node.ID, first.ID, label, true); err != nil {
			return err
		}
		_, err = g.AddEdge(last.ID, out.ID, "", false)
		return err
	}
	for i, c := range b.cases {
		if err := add(c.then, fmt.Sprintf("condition:%d", i)); err != nil {
			return nil, err
		}
	}
	if err := add(b.def, "default"); err != nil {
		return nil, err
	}
	return g, nil
}

// Truthy reports whether a condition output selects its branch: false, nil, zero numbers
// and empty strings, slices and maps do not.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
