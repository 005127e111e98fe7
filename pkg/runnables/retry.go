package runnables

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/runnable/pkg/caller"
	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
)

type RetryOptions struct {
	// MaxAttempts counts the first attempt, 0 means 3.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Jitter is the randomization factor of backoff intervals, in [0, 1].
	Jitter float64
	// ShouldRetry classifies failures, nil means caller.IsRetryable.
	ShouldRetry     caller.Classifier
	OnFailedAttempt func(err error, attempt int)
}

// Retry re-invokes a runnable on retryable failures with exponential backoff. Attempts
// after the first run as children labelled retry:attempt:n.
type Retry struct {
	bound  Runnable
	caller *caller.AsyncCaller
}

var _ Batcher = (*Retry)(nil)
var _ GraphProvider = (*Retry)(nil)

func WithRetry(r Runnable, o RetryOptions) *Retry {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = caller.DefaultInitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = caller.DefaultMaxInterval
	}
	options := []caller.Option{
		caller.WithMaxAttempts(o.MaxAttempts),
		caller.WithBackoff(o.InitialInterval, o.MaxInterval, 2),
		caller.WithJitter(o.Jitter),
	}
	if o.ShouldRetry != nil {
		options = append(options, caller.WithClassifier(o.ShouldRetry))
	}
	if o.OnFailedAttempt != nil {
		options = append(options, caller.WithOnFailedAttempt(o.OnFailedAttempt))
	}
	return &Retry{bound: r, caller: caller.New(options...)}
}

func (r *Retry) GetName() string {
	return "RunnableRetry"
}

func retryLabel(attempt int) string {
	if attempt <= 1 {
		return ""
	}
	return fmt.Sprintf("retry:attempt:%d", attempt)
}

func (r *Retry) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	return CallWithConfig(ctx, r, input, cfg, callbacks.RunTypeChain,
		func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error) {
			attempt := 0
			return r.caller.Call(ctx, func(ctx context.Context) (any, error) {
				attempt++
				return r.bound.Invoke(ctx, input, ChildConfig(cfg, rm, retryLabel(attempt)))
			})
		})
}

// Batch starts one RunnableRetry run per item and retries only the items that failed with
// a retryable error. Each round is one batch of the bound runnable over the pending items.
func (r *Retry) Batch(ctx context.Context, inputs []any, cfgs []*config.RunnableConfig, options BatchOptions) ([]any, error) {
	results := make([]any, len(inputs))
	rms := make([]*callbacks.RunManager, len(inputs))
	runCfgs := make([]*config.RunnableConfig, len(inputs))
	var pending []int
	for i := range inputs {
		_, cfg, rm, release, err := beginRun(ctx, r, inputs[i], cfgs[i], callbacks.RunTypeChain)
		if err != nil {
			results[i] = err
			continue
		}
		defer release()
		rms[i], runCfgs[i] = rm, cfg
		pending = append(pending, i)
	}

	// ends every started run with its item's outcome
	finish := func() {
		for i, rm := range rms {
			if rm == nil {
				continue
			}
			if err, ok := results[i].(error); ok {
				rm.HandleError(ctx, err)
			} else {
				rm.HandleEnd(ctx, results[i])
			}
		}
	}
	cancelled := func() error {
		err := &CancellationError{Runnable: r.GetName(), Cause: context.Cause(ctx)}
		for _, idx := range pending {
			results[idx] = err
		}
		finish()
		return err
	}

	b := r.caller.NewBackOff()
	for attempt := 1; len(pending) > 0; attempt++ {
		subInputs := make([]any, len(pending))
		subCfgs := make([]*config.RunnableConfig, len(pending))
		for j, idx := range pending {
			subInputs[j] = inputs[idx]
			subCfgs[j] = ChildConfig(runCfgs[idx], rms[idx], retryLabel(attempt))
		}
		outs, err := BatchConfigs(ctx, r.bound, subInputs, subCfgs,
			WithMaxConcurrency(options.MaxConcurrency), WithReturnExceptions())
		if err != nil {
			for _, idx := range pending {
				results[idx] = err
			}
			finish()
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, cancelled()
		}

		var retry []int
		for j, idx := range pending {
			results[idx] = outs[j]
			if err, ok := outs[j].(error); ok && r.caller.ShouldRetry(err) {
				retry = append(retry, idx)
			}
		}
		if len(retry) == 0 || attempt >= r.caller.MaxAttempts() {
			break
		}
		for _, idx := range retry {
			r.caller.FailedAttempt(results[idx].(error), attempt)
		}
		pending = retry
		if err := caller.Sleep(ctx, b.NextBackOff()); err != nil {
			return nil, cancelled()
		}
	}
	finish()

	if !options.ReturnExceptions {
		for _, out := range results {
			if err, ok := out.(error); ok {
				return nil, err
			}
		}
	}
	return results, nil
}

func (r *Retry) GetGraph() (*graph.Graph, error) {
	return GetGraph(r.bound)
}
