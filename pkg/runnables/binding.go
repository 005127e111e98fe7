package runnables

import (
	"context"

	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
)

// Binding invokes a runnable with a default config merged under the call's config.
// It does not start a run of its own.
type Binding struct {
	bound Runnable
	cfg   *config.RunnableConfig
}

var _ Streamer = (*Binding)(nil)
var _ Batcher = (*Binding)(nil)
var _ GraphProvider = (*Binding)(nil)

// WithConfig returns r bound to partial. Binding a Binding merges both configs instead of
// nesting. r itself is left untouched.
func WithConfig(r Runnable, partial *config.RunnableConfig) *Binding {
	if b, ok := r.(*Binding); ok {
		return &Binding{bound: b.bound, cfg: config.Merge(b.cfg, partial)}
	}
	return &Binding{bound: r, cfg: config.Merge(nil, partial)}
}

func (b *Binding) GetName() string {
	if b.cfg.RunName != "" {
		return b.cfg.RunName
	}
	return b.bound.GetName()
}

func (b *Binding) Bound() Runnable {
	return b.bound
}

// Config returns the bound config. It must not be modified.
func (b *Binding) Config() *config.RunnableConfig {
	return b.cfg
}

func (b *Binding) merged(cfg *config.RunnableConfig) *config.RunnableConfig {
	return config.Merge(b.cfg, cfg)
}

func (b *Binding) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return b.bound.Invoke(ctx, input, b.merged(cfg))
}

func (b *Binding) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	return StreamOf(ctx, b.bound, input, b.merged(cfg))
}

func (b *Binding) Batch(ctx context.Context, inputs []any, cfgs []*config.RunnableConfig, options BatchOptions) ([]any, error) {
	merged := make([]*config.RunnableConfig, len(cfgs))
	for i, cfg := range cfgs {
		merged[i] = b.merged(cfg)
	}
	if options.MaxConcurrency == 0 {
		options.MaxConcurrency = b.cfg.MaxConcurrency
	}
	if bb, ok := b.bound.(Batcher); ok {
		return bb.Batch(ctx, inputs, merged, options)
	}
	return batchInvoke(ctx, b.bound.Invoke, inputs, merged, options)
}

func (b *Binding) GetGraph() (*graph.Graph, error) {
	return GetGraph(b.bound)
}
