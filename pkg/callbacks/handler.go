package callbacks

import "context"

// Handler observes run lifecycle events. For a single run, OnStart is called exactly once,
// followed by any number of OnChunk and OnCustomEvent calls, followed by exactly one of
// OnEnd or OnError. Sibling runs may call a handler concurrently.
//
// Returned errors and panics are logged and swallowed.
type Handler interface {
	OnStart(ctx context.Context, run *Run) error
	OnChunk(ctx context.Context, run *Run, chunk any) error
	OnEnd(ctx context.Context, run *Run) error
	OnError(ctx context.Context, run *Run, err error) error
	OnCustomEvent(ctx context.Context, run *Run, name string, data any) error
}

// NopHandler can be embedded to implement only a subset of Handler.
type NopHandler struct{}

var _ Handler = NopHandler{}

func (NopHandler) OnStart(context.Context, *Run) error                    { return nil }
func (NopHandler) OnChunk(context.Context, *Run, any) error               { return nil }
func (NopHandler) OnEnd(context.Context, *Run) error                      { return nil }
func (NopHandler) OnError(context.Context, *Run, error) error             { return nil }
func (NopHandler) OnCustomEvent(context.Context, *Run, string, any) error { return nil }

// Funcs adapts plain functions to a Handler. Nil functions are skipped.
type Funcs struct {
	Start       func(ctx context.Context, run *Run) error
	Chunk       func(ctx context.Context, run *Run, chunk any) error
	End         func(ctx context.Context, run *Run) error
	Error       func(ctx context.Context, run *Run, err error) error
	CustomEvent func(ctx context.Context, run *Run, name string, data any) error
}

var _ Handler = (*Funcs)(nil)

func (f *Funcs) OnStart(ctx context.Context, run *Run) error {
	if f.Start == nil {
		return nil
	}
	return f.Start(ctx, run)
}

func (f *Funcs) OnChunk(ctx context.Context, run *Run, chunk any) error {
	if f.Chunk == nil {
		return nil
	}
	return f.Chunk(ctx, run, chunk)
}

func (f *Funcs) OnEnd(ctx context.Context, run *Run) error {
	if f.End == nil {
		return nil
	}
	return f.End(ctx, run)
}

func (f *Funcs) OnError(ctx context.Context, run *Run, err error) error {
	if f.Error == nil {
		return nil
	}
	return f.Error(ctx, run, err)
}

func (f *Funcs) OnCustomEvent(ctx context.Context, run *Run, name string, data any) error {
	if f.CustomEvent == nil {
		return nil
	}
	return f.CustomEvent(ctx, run, name, data)
}
