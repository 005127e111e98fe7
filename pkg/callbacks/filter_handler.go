package callbacks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

// FilterHandler forwards the events of runs whose name matches a glob pattern to next.
// Matching is decided once, at OnStart.
type FilterHandler struct {
	pattern string
	next    Handler
	matched sync.Map
}

var _ Handler = (*FilterHandler)(nil)

func NewFilterHandler(pattern string, next Handler) (*FilterHandler, error) {
	if _, err := glob.Match(pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "invalid run filter %q", pattern)
	}
	return &FilterHandler{pattern: pattern, next: next}, nil
}

func (f *FilterHandler) isMatched(id uuid.UUID) bool {
	_, ok := f.matched.Load(id)
	return ok
}

func (f *FilterHandler) OnStart(ctx context.Context, run *Run) error {
	ok, err := glob.Match(f.pattern, run.Name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	f.matched.Store(run.ID, struct{}{})
	return f.next.OnStart(ctx, run)
}

func (f *FilterHandler) OnChunk(ctx context.Context, run *Run, chunk any) error {
	if !f.isMatched(run.ID) {
		return nil
	}
	return f.next.OnChunk(ctx, run, chunk)
}

func (f *FilterHandler) OnEnd(ctx context.Context, run *Run) error {
	if _, ok := f.matched.LoadAndDelete(run.ID); !ok {
		return nil
	}
	return f.next.OnEnd(ctx, run)
}

func (f *FilterHandler) OnError(ctx context.Context, run *Run, err error) error {
	if _, ok := f.matched.LoadAndDelete(run.ID); !ok {
		return nil
	}
	return f.next.OnError(ctx, run, err)
}

func (f *FilterHandler) OnCustomEvent(ctx context.Context, run *Run, name string, data any) error {
	if !f.isMatched(run.ID) {
		return nil
	}
	return f.next.OnCustomEvent(ctx, run, name, data)
}
