package runnables

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Validated checks inputs against a declared JSON schema before invoking the wrapped
// runnable. Invalid inputs fail with a ValidationError and never reach it.
type Validated struct {
	bound       Runnable
	schema      *gojsonschema.Schema
	inputSchema *jsonschema.Schema
}

var _ Streamer = (*Validated)(nil)
var _ SchemaProvider = (*Validated)(nil)
var _ GraphProvider = (*Validated)(nil)

// WithInputSchema wraps r with validation against schema, a JSON schema document given as
// JSON text, []byte, map or *jsonschema.Schema.
func WithInputSchema(r Runnable, schema any) (*Validated, error) {
	var raw []byte
	switch s := schema.(type) {
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return nil, errors.Wrap(err, "could not marshal input schema")
		}
		raw = b
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "invalid input schema")
	}
	// schemas using constructs jsonschema.Schema cannot represent are still enforced,
	// they are just not exposed for introspection
	declared := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, declared); err != nil {
		declared = nil
	}
	return &Validated{bound: r, schema: compiled, inputSchema: declared}, nil
}

func (v *Validated) GetName() string {
	return v.bound.GetName()
}

func (v *Validated) InputSchema() *jsonschema.Schema {
	return v.inputSchema
}

func (v *Validated) OutputSchema() *jsonschema.Schema {
	if sp, ok := v.bound.(SchemaProvider); ok {
		return sp.OutputSchema()
	}
	return nil
}

func (v *Validated) validate(input any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return &ValidationError{Runnable: v.GetName(), Reason: "input cannot be validated", Err: err}
	}
	if result.Valid() {
		return nil
	}
	descriptions := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		descriptions = append(descriptions, desc.String())
	}
	return &ValidationError{Runnable: v.GetName(), Reason: strings.Join(descriptions, "; ")}
}

func (v *Validated) Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error) {
	if err := v.validate(input); err != nil {
		return CallWithConfig(ctx, v, input, cfg, callbacks.RunTypeParser,
			func(context.Context, any, *config.RunnableConfig, *callbacks.RunManager) (any, error) {
				return nil, err
			})
	}
	return v.bound.Invoke(ctx, input, cfg)
}

func (v *Validated) Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	if err := v.validate(input); err != nil {
		return StreamWithConfig(ctx, v, input, cfg, callbacks.RunTypeParser,
			func(context.Context, any, *config.RunnableConfig, *callbacks.RunManager, func(any) bool) error {
				return err
			}), nil
	}
	return StreamOf(ctx, v.bound, input, cfg)
}

// GetGraph draws the wrapped runnable with the declared input schema.
func (v *Validated) GetGraph() (*graph.Graph, error) {
	if _, ok := v.bound.(GraphProvider); ok {
		return GetGraph(v.bound)
	}
	return leafGraph(v)
}
