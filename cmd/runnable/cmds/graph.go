package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/runnable/pkg/graph"
	"github.com/go-go-golems/runnable/pkg/pipeline"
	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewGraphCommand draws a pipeline as a mermaid flowchart. The nodes and edges commands
// list the same graph as rows.
func NewGraphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <pipeline.yaml>",
		Short: "Print the graph of a pipeline as mermaid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), g.DrawMermaid())
			return err
		},
	}
}

func loadGraph(path string) (*graph.Graph, error) {
	p, err := pipeline.LoadFile(path, nil)
	if err != nil {
		return nil, err
	}
	g, err := runnables.GetGraph(p.Runnable)
	if err != nil {
		return nil, errors.Wrap(err, "could not build graph")
	}
	return g, nil
}

type GraphSettings struct {
	Pipeline string `glazed.parameter:"pipeline"`
}

func newGraphDescription(name string, short string) (*cmds.CommandDescription, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return cmds.NewCommandDescription(
		name,
		cmds.WithShort(short),
		cmds.WithArguments(
			parameters.NewParameterDefinition(
				"pipeline",
				parameters.ParameterTypeString,
				parameters.WithHelp("Pipeline YAML file"),
				parameters.WithRequired(true),
			),
		),
		cmds.WithLayersList(glazedParameterLayer),
	), nil
}

// NodesCommand emits one row per node of a pipeline graph. Generated node ids are
// replaced by their position, as in the JSON export.
type NodesCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*NodesCommand)(nil)

func NewNodesCommand() (*NodesCommand, error) {
	desc, err := newGraphDescription("nodes", "List the nodes of a pipeline graph")
	if err != nil {
		return nil, err
	}
	return &NodesCommand{CommandDescription: desc}, nil
}

func (c *NodesCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &GraphSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize graph settings")
	}
	g, err := loadGraph(s.Pipeline)
	if err != nil {
		return err
	}
	return addNodeRows(ctx, g, gp)
}

func addNodeRows(ctx context.Context, g *graph.Graph, gp middlewares.Processor) error {
	for _, n := range g.ToJSON().Nodes {
		row := types.NewRow(
			types.MRP("id", n.ID),
			types.MRP("type", n.Type),
			types.MRP("data", n.Data),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// EdgesCommand emits one row per edge of a pipeline graph.
type EdgesCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*EdgesCommand)(nil)

func NewEdgesCommand() (*EdgesCommand, error) {
	desc, err := newGraphDescription("edges", "List the edges of a pipeline graph")
	if err != nil {
		return nil, err
	}
	return &EdgesCommand{CommandDescription: desc}, nil
}

func (c *EdgesCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &GraphSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize graph settings")
	}
	g, err := loadGraph(s.Pipeline)
	if err != nil {
		return err
	}
	return addEdgeRows(ctx, g, gp)
}

func addEdgeRows(ctx context.Context, g *graph.Graph, gp middlewares.Processor) error {
	for _, e := range g.ToJSON().Edges {
		row := types.NewRow(
			types.MRP("source", e.Source),
			types.MRP("target", e.Target),
			types.MRP("data", e.Data),
			types.MRP("conditional", e.Conditional),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// OpsCommand lists the ops of the default registry, one row each.
type OpsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*OpsCommand)(nil)

func NewOpsCommand() (*OpsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return &OpsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"ops",
			cmds.WithShort("List the built-in ops pipelines can use"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *OpsCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	return addOpRows(ctx, pipeline.DefaultRegistry(), gp)
}

func addOpRows(ctx context.Context, r *pipeline.Registry, gp middlewares.Processor) error {
	for _, op := range r.Ops() {
		if err := gp.AddRow(ctx, types.NewRow(types.MRP("op", op))); err != nil {
			return err
		}
	}
	return nil
}
