package pipeline

import (
	"sort"
	"sync"

	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
)

// Factory builds a leaf runnable from the args of an op step.
type Factory func(args Args) (runnables.Runnable, error)

// Registry maps op names to factories. Names are normalized to snake_case, so "toString",
// "to-string" and "to_string" are the same op.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func normalizeOp(name string) string {
	return strcase.ToSnake(name)
}

func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeOp(name)
	if key == "" {
		return errors.New("op name is empty")
	}
	if _, ok := r.factories[key]; ok {
		return errors.Errorf("op %s is already registered", key)
	}
	r.factories[key] = f
	return nil
}

func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[normalizeOp(name)]
	return f, ok
}

// Ops returns the registered op names, sorted.
func (r *Registry) Ops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.factories))
	for k := range r.factories {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// Build builds the leaf runnable of op with args. The runnable is named after the
// normalized op name.
func (r *Registry) Build(op string, args Args) (runnables.Runnable, error) {
	f, ok := r.Lookup(op)
	if !ok {
		return nil, errors.Errorf("unknown op %q", op)
	}
	ret, err := f(args)
	if err != nil {
		return nil, errors.Wrapf(err, "could not build op %s", normalizeOp(op))
	}
	return ret, nil
}
