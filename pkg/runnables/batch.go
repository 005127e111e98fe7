package runnables

import (
	"context"
	"sort"
	"sync"

	"github.com/go-go-golems/runnable/pkg/config"
	"golang.org/x/sync/errgroup"
)

type BatchOptions struct {
	// MaxConcurrency bounds the number of items in flight, 0 means the config's
	// MaxConcurrency, or unbounded.
	MaxConcurrency int
	// ReturnExceptions stores per-item errors at their index instead of failing the batch.
	ReturnExceptions bool
}

type BatchOption func(*BatchOptions)

func WithMaxConcurrency(n int) BatchOption {
	return func(o *BatchOptions) {
		o.MaxConcurrency = n
	}
}

func WithReturnExceptions() BatchOption {
	return func(o *BatchOptions) {
		o.ReturnExceptions = true
	}
}

// Batch invokes r on every input with the same config. Outputs are in input order.
//
// Without WithReturnExceptions, the first failure stops the dispatch of items that have not
// started yet and fails the batch; when several items failed concurrently, the error is an
// *AggregateBatchError. With it, a failed item's error is stored at its index and the batch
// itself succeeds.
func Batch(ctx context.Context, r Runnable, inputs []any, cfg *config.RunnableConfig, options ...BatchOption) ([]any, error) {
	cfgs := make([]*config.RunnableConfig, len(inputs))
	for i := range cfgs {
		cfgs[i] = cfg
	}
	return BatchConfigs(ctx, r, inputs, cfgs, options...)
}

// BatchConfigs is Batch with one config per input.
func BatchConfigs(ctx context.Context, r Runnable, inputs []any, cfgs []*config.RunnableConfig, options ...BatchOption) ([]any, error) {
	if len(cfgs) != len(inputs) {
		return nil, &ValidationError{
			Runnable: r.GetName(),
			Reason:   "batch needs exactly one config per input",
		}
	}
	o := BatchOptions{}
	for _, opt := range options {
		opt(&o)
	}
	if o.MaxConcurrency == 0 && len(cfgs) > 0 && cfgs[0] != nil {
		o.MaxConcurrency = cfgs[0].MaxConcurrency
	}
	if b, ok := r.(Batcher); ok {
		return b.Batch(ctx, inputs, cfgs, o)
	}
	return batchInvoke(ctx, r.Invoke, inputs, cfgs, o)
}

type invokeFn func(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error)

// batchInvoke is the default batch strategy: one invoke per input on an errgroup.
func batchInvoke(ctx context.Context, invoke invokeFn, inputs []any, cfgs []*config.RunnableConfig, o BatchOptions) ([]any, error) {
	outputs := make([]any, len(inputs))
	if len(inputs) == 0 {
		return outputs, nil
	}

	if o.ReturnExceptions {
		var g errgroup.Group
		if o.MaxConcurrency > 0 {
			g.SetLimit(o.MaxConcurrency)
		}
		for i := range inputs {
			i := i
			g.Go(func() error {
				out, err := invoke(ctx, inputs[i], cfgs[i])
				if err != nil {
					outputs[i] = err
				} else {
					outputs[i] = out
				}
				return nil
			})
		}
		_ = g.Wait()
		return outputs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if o.MaxConcurrency > 0 {
		g.SetLimit(o.MaxConcurrency)
	}
	var mu sync.Mutex
	var failures []BatchFailure
	for i := range inputs {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out, err := invoke(gctx, inputs[i], cfgs[i])
			if err != nil {
				mu.Lock()
				failures = append(failures, BatchFailure{Index: i, Err: err})
				mu.Unlock()
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		if ctx.Err() != nil {
			return nil, &CancellationError{Cause: context.Cause(ctx)}
		}
		return outputs, nil
	}

	// items cancelled because a sibling failed are not failures of their own
	var own []BatchFailure
	for _, f := range failures {
		if ctx.Err() == nil && isCancellation(f.Err) {
			continue
		}
		own = append(own, f)
	}
	if len(own) > 1 {
		sort.Slice(own, func(i, j int) bool { return own[i].Index < own[j].Index })
		return nil, &AggregateBatchError{Failures: own}
	}
	return nil, err
}
