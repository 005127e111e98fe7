package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/runnable/pkg/helpers"
)

// DefaultTopic is the topic run events are published on unless configured otherwise.
const DefaultTopic = "runs"

// EventRouter connects run event sinks to handlers over watermill.
type EventRouter struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	logger  watermill.LoggerAdapter
	router  *message.Router
	verbose bool
	output  io.Writer
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithPublisher(publisher message.Publisher) EventRouterOption {
	return func(r *EventRouter) {
		r.Publisher = publisher
	}
}

func WithSubscriber(subscriber message.Subscriber) EventRouterOption {
	return func(r *EventRouter) {
		r.Subscriber = subscriber
	}
}

// WithVerbose makes DumpRawEvents print the full event and its message metadata,
// and routes watermill's own logging to zerolog.
func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
		if verbose {
			r.logger = helpers.NewWatermill(log.Logger)
		}
	}
}

// WithOutput sets where DumpRawEvents writes, os.Stdout by default.
func WithOutput(w io.Writer) EventRouterOption {
	return func(r *EventRouter) {
		r.output = w
	}
}

// NewEventRouter creates a router over an in-process gochannel pubsub, unless both a
// publisher and a subscriber are given. Publishing blocks until subscribers acknowledge,
// so events of a run are handled in order.
func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
		output: os.Stdout,
	}
	for _, o := range options {
		o(ret)
	}

	if ret.Publisher == nil || ret.Subscriber == nil {
		pubSub := gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, ret.logger)
		ret.Publisher = pubSub
		ret.Subscriber = pubSub
	}

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create watermill router")
	}
	ret.router = router

	return ret, nil
}

// NewSink returns a sink publishing to the router's publisher on topic.
func (e *EventRouter) NewSink(topic string) *Sink {
	return NewSink(e.Publisher, topic)
}

// Close shuts down the publisher first so pending publishes fail fast, then the router.
// Both are closed even if the first fails; the first error is returned.
func (e *EventRouter) Close() error {
	var first error
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close publisher")
		first = err
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
		if first == nil {
			first = err
		}
	}
	log.Debug().Msg("Event router closed")
	return first
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// AddRunEventHandler registers f for the parsed run events of topic. Messages that are not
// run events are logged and dropped.
func (e *EventRouter) AddRunEventHandler(name string, topic string, f func(ctx context.Context, ev *RunEvent) error) {
	e.AddHandler(name, topic, func(msg *message.Message) error {
		ev, err := NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).
				Msg("Dropping message that is not a run event")
			return nil
		}
		return f(msg.Context(), ev)
	})
}

// DumpRawEvents prints each event as indented JSON. Unless verbose, the parent and root
// ids, the metadata and the timestamp are left out.
func (e *EventRouter) DumpRawEvents(msg *message.Message) error {
	defer msg.Ack()

	var fields map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &fields); err != nil {
		return errors.Wrap(err, "could not decode event payload")
	}
	if e.verbose {
		fields["meta"] = map[string]string(msg.Metadata)
	} else {
		for _, k := range []string{"parent_run_id", "root_run_id", "metadata", "time"} {
			delete(fields, k)
		}
	}

	b, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.output, string(b))
	return err
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

// Run blocks until ctx is cancelled or the router is closed.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}
