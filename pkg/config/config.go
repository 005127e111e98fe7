package config

import (
	"time"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/helpers"
)

const DefaultRecursionLimit = 25

// RunnableConfig is threaded through every invocation. It is copy-on-write: Merge, Ensure
// and Patch return new values and never modify their arguments, so fields may be shared
// between configs.
type RunnableConfig struct {
	Tags     []string
	Metadata map[string]any

	// Handlers are attached to the run started with this config. When Callbacks is set,
	// runs are started from that manager, with Handlers added.
	Handlers  []callbacks.Handler
	Callbacks *callbacks.Manager

	// RunName overrides the name of the run started with this config. It is not inherited
	// by child runs.
	RunName string

	// MaxConcurrency bounds batch and parallel fan-out, 0 means unbounded.
	MaxConcurrency int
	// RecursionLimit bounds the nesting depth of runs, 0 means DefaultRecursionLimit.
	RecursionLimit int

	Signal  Signal
	Timeout time.Duration

	// Configurable is passed through untouched to leaves.
	Configurable map[string]any

	depth int
}

// Depth is the nesting depth of the run this config is used for, 0 for the root.
func (c *RunnableConfig) Depth() int {
	if c == nil {
		return 0
	}
	return c.depth
}

// GetConfigurable returns a configurable value.
func (c *RunnableConfig) GetConfigurable(key string) (any, bool) {
	if c == nil || c.Configurable == nil {
		return nil, false
	}
	v, ok := c.Configurable[key]
	return v, ok
}

func (c *RunnableConfig) clone() *RunnableConfig {
	if c == nil {
		return &RunnableConfig{}
	}
	ret := *c
	return &ret
}

// Merge combines parent with override:
//   - tags are concatenated with duplicates removed, keeping the first occurrence;
//   - metadata and configurable are shallow-merged, override wins;
//   - a Callbacks manager in override replaces the parent's manager and receives the
//     parent's handlers, otherwise override handlers are added to the parent's;
//   - RunName, RecursionLimit, MaxConcurrency and Timeout are taken from override when set;
//   - signals are combined, so an inherited signal can never be unset.
//
// Neither argument is modified.
func Merge(parent, override *RunnableConfig) *RunnableConfig {
	if override == nil {
		return parent.clone()
	}
	if parent == nil {
		return override.clone()
	}

	ret := parent.clone()

	if len(override.Tags) > 0 {
		ret.Tags = helpers.MergeTags(parent.Tags, override.Tags)
	}
	if len(override.Metadata) > 0 {
		ret.Metadata = helpers.MergeMaps(parent.Metadata, override.Metadata)
	}
	if len(override.Configurable) > 0 {
		ret.Configurable = helpers.MergeMaps(parent.Configurable, override.Configurable)
	}

	switch {
	case override.Callbacks != nil && parent.Callbacks == nil:
		// handlers bound to the parent stay attached to the runs of the override manager
		ret.Callbacks = override.Callbacks.WithHandlers(parent.Handlers...)
		ret.Handlers = override.Handlers
	case override.Callbacks != nil:
		ret.Callbacks = override.Callbacks
		ret.Handlers = override.Handlers
	case len(override.Handlers) > 0 && parent.Callbacks != nil:
		ret.Callbacks = parent.Callbacks.WithHandlers(override.Handlers...)
	case len(override.Handlers) > 0:
		handlers := make([]callbacks.Handler, 0, len(parent.Handlers)+len(override.Handlers))
		handlers = append(handlers, parent.Handlers...)
		ret.Handlers = append(handlers, override.Handlers...)
	}

	if override.RunName != "" {
		ret.RunName = override.RunName
	}
	if override.RecursionLimit != 0 {
		ret.RecursionLimit = override.RecursionLimit
	}
	if override.MaxConcurrency != 0 {
		ret.MaxConcurrency = override.MaxConcurrency
	}
	if override.Timeout != 0 {
		ret.Timeout = override.Timeout
	}
	ret.Signal = AnySignal(parent.Signal, override.Signal)
	if override.depth > ret.depth {
		ret.depth = override.depth
	}

	return ret
}

// Ensure returns a copy of cfg with defaults filled in. A Timeout is turned into a signal
// that fires after that duration, combined with any existing signal.
func Ensure(cfg *RunnableConfig) *RunnableConfig {
	ret := cfg.clone()
	if ret.RecursionLimit <= 0 {
		ret.RecursionLimit = DefaultRecursionLimit
	}
	if ret.Timeout > 0 {
		ret.Signal = AnySignal(ret.Signal, newDeadlineSignal(ret.Timeout))
		ret.Timeout = 0
	}
	return ret
}

type PatchOption func(c *RunnableConfig)

// WithCallbacks makes child runs start from m. Handlers of the parent config are already
// part of m and are dropped from the child config.
func WithCallbacks(m *callbacks.Manager) PatchOption {
	return func(c *RunnableConfig) {
		c.Callbacks = m
		c.Handlers = nil
	}
}

func WithRunName(name string) PatchOption {
	return func(c *RunnableConfig) {
		c.RunName = name
	}
}

func WithMaxConcurrency(n int) PatchOption {
	return func(c *RunnableConfig) {
		c.MaxConcurrency = n
	}
}

func WithRecursionLimit(n int) PatchOption {
	return func(c *RunnableConfig) {
		c.RecursionLimit = n
	}
}

func WithConfigurable(values map[string]any) PatchOption {
	return func(c *RunnableConfig) {
		c.Configurable = helpers.MergeMaps(c.Configurable, values)
	}
}

// Patch derives the config of a nested step: its depth is one more than cfg's and the run
// name is reset.
func Patch(cfg *RunnableConfig, options ...PatchOption) *RunnableConfig {
	ret := cfg.clone()
	ret.RunName = ""
	ret.depth++
	for _, o := range options {
		o(ret)
	}
	return ret
}

// ManagerFor returns the manager runs started with cfg are created from.
func ManagerFor(cfg *RunnableConfig) *callbacks.Manager {
	if cfg == nil {
		return callbacks.NewManager()
	}
	if cfg.Callbacks != nil {
		return cfg.Callbacks.WithHandlers(cfg.Handlers...)
	}
	return callbacks.NewManager(cfg.Handlers...)
}
