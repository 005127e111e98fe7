package runnables

import (
	"context"

	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/go-go-golems/runnable/pkg/graph"
	"github.com/invopop/jsonschema"
)

// Runnable is the unit of composition. Implementations are immutable once built and may be
// invoked concurrently. Values flowing between runnables are dynamic; a nil cfg is valid.
//
// Implementations report their work through the run tree by running their body with
// CallWithConfig.
type Runnable interface {
	GetName() string
	Invoke(ctx context.Context, input any, cfg *config.RunnableConfig) (any, error)
}

// Streamer is implemented by runnables with native streaming support.
type Streamer interface {
	Runnable
	Stream(ctx context.Context, input any, cfg *config.RunnableConfig) (*Stream[any], error)
}

// Batcher is implemented by runnables with their own batch strategy. cfgs has one entry
// per input.
type Batcher interface {
	Runnable
	Batch(ctx context.Context, inputs []any, cfgs []*config.RunnableConfig, options BatchOptions) ([]any, error)
}

// GraphProvider is implemented by runnables whose structure is more than a single node.
type GraphProvider interface {
	GetGraph() (*graph.Graph, error)
}

// SchemaProvider is implemented by runnables declaring the shape of their input and output.
// Either schema may be nil.
type SchemaProvider interface {
	InputSchema() *jsonschema.Schema
	OutputSchema() *jsonschema.Schema
}

// StreamOf streams r. Runnables without native streaming yield their invoke result as a
// single chunk.
func StreamOf(ctx context.Context, r Runnable, input any, cfg *config.RunnableConfig) (*Stream[any], error) {
	if s, ok := r.(Streamer); ok {
		return s.Stream(ctx, input, cfg)
	}
	return NewStream(ctx, func(ctx context.Context, emit func(any) bool) error {
		out, err := r.Invoke(ctx, input, cfg)
		if err != nil {
			return err
		}
		emit(out)
		return nil
	}), nil
}

// Invoke invokes r with a nil config.
func Invoke(ctx context.Context, r Runnable, input any) (any, error) {
	return r.Invoke(ctx, input, nil)
}

// GetGraph returns the structure of r. Runnables that are not GraphProviders are drawn as
// input schema -> runnable -> output schema.
func GetGraph(r Runnable) (*graph.Graph, error) {
	if gp, ok := r.(GraphProvider); ok {
		return gp.GetGraph()
	}
	return leafGraph(r)
}

func leafGraph(r Runnable) (*graph.Graph, error) {
	g := graph.New()
	var in, out *jsonschema.Schema
	if sp, ok := r.(SchemaProvider); ok {
		in, out = sp.InputSchema(), sp.OutputSchema()
	}
	inputNode, err := g.AddNode(&graph.Schema{Name: r.GetName() + "Input", Schema: in}, "")
	if err != nil {
		return nil, err
	}
	node, err := g.AddNode(r, "")
	if err != nil {
		return nil, err
	}
	outputNode, err := g.AddNode(&graph.Schema{Name: r.GetName() + "Output", Schema: out}, "")
	if err != nil {
		return nil, err
	}
	if _, err := g.AddEdge(inputNode.ID, node.ID, "", false); err != nil {
		return nil, err
	}
	if _, err := g.AddEdge(node.ID, outputNode.ID, "", false); err != nil {
		return nil, err
	}
	return g, nil
}
