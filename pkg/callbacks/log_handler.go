package callbacks

import (
	"context"

	"github.com/rs/zerolog"
)

// LogHandler writes run lifecycle events to a zerolog logger.
type LogHandler struct {
	logger zerolog.Logger
	level  zerolog.Level
	chunks bool
}

var _ Handler = (*LogHandler)(nil)

type LogHandlerOption func(*LogHandler)

func WithLogLevel(level zerolog.Level) LogHandlerOption {
	return func(h *LogHandler) {
		h.level = level
	}
}

// WithLogChunks also logs every streamed chunk.
func WithLogChunks(chunks bool) LogHandlerOption {
	return func(h *LogHandler) {
		h.chunks = chunks
	}
}

func NewLogHandler(logger zerolog.Logger, options ...LogHandlerOption) *LogHandler {
	ret := &LogHandler{
		logger: logger,
		level:  zerolog.DebugLevel,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (h *LogHandler) event(run *Run) *zerolog.Event {
	e := h.logger.WithLevel(h.level).
		Str("run_id", run.ID.String()).
		Str("name", run.Name).
		Str("run_type", string(run.RunType))
	if !run.IsRoot() {
		e = e.Str("parent_run_id", run.ParentRunID.String())
	}
	if len(run.Tags) > 0 {
		e = e.Strs("tags", run.Tags)
	}
	return e
}

func (h *LogHandler) OnStart(_ context.Context, run *Run) error {
	h.event(run).Interface("inputs", run.Inputs).Msg("run start")
	return nil
}

func (h *LogHandler) OnChunk(_ context.Context, run *Run, chunk any) error {
	if !h.chunks {
		return nil
	}
	h.event(run).Interface("chunk", chunk).Msg("run chunk")
	return nil
}

func (h *LogHandler) OnEnd(_ context.Context, run *Run) error {
	h.event(run).
		Interface("outputs", run.Outputs).
		Dur("duration", run.Duration()).
		Msg("run end")
	return nil
}

func (h *LogHandler) OnError(_ context.Context, run *Run, err error) error {
	h.logger.Error().
		Str("run_id", run.ID.String()).
		Str("name", run.Name).
		Strs("tags", run.Tags).
		Err(err).
		Dur("duration", run.Duration()).
		Msg("run error")
	return nil
}

func (h *LogHandler) OnCustomEvent(_ context.Context, run *Run, name string, data any) error {
	h.event(run).Str("event", name).Interface("data", data).Msg("run custom event")
	return nil
}
