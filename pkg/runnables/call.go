package runnables

import (
	"context"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/rs/zerolog/log"
)

// InvokeFunc is the body of an invocation run by CallWithConfig. cfg is the ensured config of
// the run, rm its run manager.
type InvokeFunc func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager) (any, error)

// StreamFunc is the body of a streaming invocation run by StreamWithConfig.
type StreamFunc func(ctx context.Context, input any, cfg *config.RunnableConfig, rm *callbacks.RunManager, emit func(any) bool) error

type runManagerKey struct{}

// RunManagerFromContext returns the manager of the innermost run executing with ctx.
func RunManagerFromContext(ctx context.Context) *callbacks.RunManager {
	rm, _ := ctx.Value(runManagerKey{}).(*callbacks.RunManager)
	return rm
}

// DispatchCustomEvent emits a custom event on the innermost run executing with ctx.
// It is a no-op outside of a run.
func DispatchCustomEvent(ctx context.Context, name string, data any) {
	RunManagerFromContext(ctx).HandleCustomEvent(ctx, name, data)
}

// ChildConfig derives the config a composite passes to the child it runs under label.
func ChildConfig(cfg *config.RunnableConfig, rm *callbacks.RunManager, label string) *config.RunnableConfig {
	return config.Patch(cfg, config.WithCallbacks(rm.GetChild(label)))
}

func runName(r Runnable, cfg *config.RunnableConfig) string {
	if cfg.RunName != "" {
		return cfg.RunName
	}
	return r.GetName()
}

// beginRun starts the run of r and checks the recursion guard. The returned context is
// cancelled when the config's signal fires; release must be called once the run is done.
func beginRun(
	ctx context.Context,
	r Runnable,
	input any,
	cfg *config.RunnableConfig,
	runType callbacks.RunType,
) (context.Context, *config.RunnableConfig, *callbacks.RunManager, func(), error) {
	cfg = config.Ensure(cfg)
	name := runName(r, cfg)
	rm := config.ManagerFor(cfg).StartRun(ctx, callbacks.StartParams{
		Name:     name,
		RunType:  runType,
		Inputs:   input,
		Tags:     cfg.Tags,
		Metadata: cfg.Metadata,
	})

	if cfg.Depth() > cfg.RecursionLimit {
		err := &RecursionLimitError{Runnable: name, Limit: cfg.RecursionLimit, Depth: cfg.Depth()}
		rm.HandleError(ctx, err)
		return ctx, cfg, rm, func() {}, err
	}

	ctx, cancel := config.BindContext(ctx, cfg.Signal)
	ctx = context.WithValue(ctx, runManagerKey{}, rm)
	if ctx.Err() != nil {
		err := &CancellationError{Runnable: name, Cause: context.Cause(ctx)}
		rm.HandleError(ctx, err)
		cancel()
		return ctx, cfg, rm, func() {}, err
	}
	return ctx, cfg, rm, cancel, nil
}

// CallWithConfig runs f as the body of r's run: it starts the run from the config's
// callbacks, enforces the recursion limit, binds ctx to the config's signal, and reports
// the outcome to the run's handlers before returning it.
func CallWithConfig(
	ctx context.Context,
	r Runnable,
	input any,
	cfg *config.RunnableConfig,
	runType callbacks.RunType,
	f InvokeFunc,
) (any, error) {
	ctx, cfg, rm, release, err := beginRun(ctx, r, input, cfg, runType)
	if err != nil {
		return nil, err
	}
	defer release()

	out, err := f(ctx, input, cfg, rm)
	if err != nil {
		err = cancellationOrErr(ctx, runName(r, cfg), err)
		log.Debug().Err(err).Str("run_id", rm.RunID().String()).Str("name", runName(r, cfg)).Msg("invocation failed")
		rm.HandleError(ctx, err)
		return nil, err
	}
	rm.HandleEnd(ctx, out)
	return out, nil
}

// StreamWithConfig is the streaming counterpart of CallWithConfig. Nothing runs until the
// returned stream is pulled. Every emitted chunk is reported to the run's handlers, and the
// aggregate of all chunks is the run's output.
func StreamWithConfig(
	ctx context.Context,
	r Runnable,
	input any,
	cfg *config.RunnableConfig,
	runType callbacks.RunType,
	f StreamFunc,
) *Stream[any] {
	return NewStream(ctx, func(ctx context.Context, emit func(any) bool) error {
		ctx, cfg, rm, release, err := beginRun(ctx, r, input, cfg, runType)
		if err != nil {
			return err
		}
		defer release()

		agg := &aggregator{}
		err = f(ctx, input, cfg, rm, func(chunk any) bool {
			rm.HandleChunk(ctx, chunk)
			agg.add(chunk)
			return emit(chunk)
		})
		if err != nil {
			err = cancellationOrErr(ctx, runName(r, cfg), err)
			rm.HandleError(ctx, err)
			return err
		}
		rm.HandleEnd(ctx, agg.value)
		return nil
	})
}

// stepError attributes a child failure to the composite's child label.
func stepError(operator, label string, rm *callbacks.RunManager, err error) error {
	return &StepError{Operator: operator, Label: label, RunID: rm.RunID(), Err: err}
}

// forward emits every chunk of s until s is exhausted or the consumer stops pulling.
func forward(ctx context.Context, s *Stream[any], emit func(any) bool) error {
	defer s.Close()
	for s.Next() {
		if !emit(s.Value()) {
			return closedErr(ctx)
		}
	}
	return s.Err()
}

func closedErr(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ErrStreamClosed
}
