package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/events"
	"github.com/go-go-golems/runnable/pkg/pipeline"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddRunFlags adds the flags shared by all commands that execute a pipeline.
func AddRunFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.Int("max-concurrency", 0, "Maximum number of concurrently running steps (0 = unbounded)")
	fs.Duration("timeout", 0, "Abort the invocation after this duration")
	fs.Int("recursion-limit", 0, "Maximum nesting depth of runs (default 25)")
	fs.StringSlice("tags", nil, "Tags added to the root run")
	fs.Bool("trace", false, "Log every run of the run tree")
	fs.String("trace-filter", "", "Only trace runs whose name matches this glob")
	fs.Bool("events", false, "Print the run events published on the event bus to stderr")
}

// session holds what one pipeline invocation from the command line needs.
type session struct {
	ctx      context.Context
	cfg      *config.RunnableConfig
	pipeline *pipeline.Pipeline
	closers  []func()
}

// newSession loads the pipeline at path and builds the run config from the persistent
// flags. Run events go to stderr when --events is set.
func newSession(ctx context.Context, stderr io.Writer, path string) (*session, error) {
	p, err := pipeline.LoadFile(path, nil)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	s := &session{
		ctx:      ctx,
		pipeline: p,
		closers:  []func(){stop},
		cfg: &config.RunnableConfig{
			MaxConcurrency: viper.GetInt("max-concurrency"),
			Timeout:        viper.GetDuration("timeout"),
			RecursionLimit: viper.GetInt("recursion-limit"),
			Tags:           viper.GetStringSlice("tags"),
		},
	}

	if viper.GetBool("trace") {
		var h callbacks.Handler = callbacks.NewLogHandler(log.Logger,
			callbacks.WithLogLevel(zerolog.InfoLevel),
			callbacks.WithLogChunks(true))
		if pattern := viper.GetString("trace-filter"); pattern != "" {
			h, err = callbacks.NewFilterHandler(pattern, h)
			if err != nil {
				s.close()
				return nil, errors.Wrap(err, "invalid --trace-filter")
			}
		}
		s.cfg.Handlers = append(s.cfg.Handlers, h)
	}

	if viper.GetBool("events") {
		sink, closeRouter, err := startEventRouter(ctx, stderr)
		if err != nil {
			s.close()
			return nil, err
		}
		s.cfg.Handlers = append(s.cfg.Handlers, sink)
		s.closers = append(s.closers, closeRouter)
	}

	return s, nil
}

func startEventRouter(ctx context.Context, w io.Writer) (*events.Sink, func(), error) {
	router, err := events.NewEventRouter(
		events.WithOutput(w),
		events.WithVerbose(viper.GetBool("verbose")),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not create event router")
	}
	router.AddHandler("dump", events.DefaultTopic, router.DumpRawEvents)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := router.Run(ctx); err != nil {
			log.Error().Err(err).Msg("event router failed")
		}
	}()
	<-router.Running()

	return router.NewSink(events.DefaultTopic), func() {
		_ = router.Close()
		<-done
	}, nil
}

// close runs the cleanups in reverse order.
func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// parseInput reads JSON values, falling back to the raw string. "-" reads stdin.
func parseInput(raw string, stdin io.Reader) (any, error) {
	if raw == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "could not read stdin")
		}
		raw = strings.TrimSpace(string(b))
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw, nil
	}
	return v, nil
}

// printable replaces errors, which do not serialize, with their message.
func printable(v any) any {
	switch t := v.(type) {
	case error:
		return map[string]any{"error": t.Error()}
	case []any:
		ret := make([]any, len(t))
		for i, e := range t {
			ret[i] = printable(e)
		}
		return ret
	}
	return v
}

// writeJSON prints v as indented JSON, so that single results can be piped on.
func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(printable(v), "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize output")
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
