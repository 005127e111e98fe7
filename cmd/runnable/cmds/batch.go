package cmds

import (
	"context"
	"io"
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/pkg/errors"
)

type BatchSettings struct {
	Pipeline         string `glazed.parameter:"pipeline"`
	Inputs           string `glazed.parameter:"inputs"`
	ReturnExceptions bool   `glazed.parameter:"return-exceptions"`
}

// BatchCommand invokes a pipeline on every element of a JSON array and emits one row
// per element.
type BatchCommand struct {
	*cmds.CommandDescription
	stdin  io.Reader
	stderr io.Writer
}

var _ cmds.GlazeCommand = (*BatchCommand)(nil)

func NewBatchCommand() (*BatchCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}

	return &BatchCommand{
		stdin:  os.Stdin,
		stderr: os.Stderr,
		CommandDescription: cmds.NewCommandDescription(
			"batch",
			cmds.WithShort("Invoke a pipeline on every element of a JSON array"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"inputs",
					parameters.ParameterTypeString,
					parameters.WithHelp("Inputs as a JSON array, - for stdin"),
					parameters.WithDefault("-"),
				),
				parameters.NewParameterDefinition(
					"return-exceptions",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Report failed items in place instead of failing the batch"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"pipeline",
					parameters.ParameterTypeString,
					parameters.WithHelp("Pipeline YAML file"),
					parameters.WithRequired(true),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *BatchCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &BatchSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize batch settings")
	}
	return c.runBatch(ctx, s, gp)
}

func (c *BatchCommand) runBatch(ctx context.Context, s *BatchSettings, gp middlewares.Processor) error {
	input, err := parseInput(s.Inputs, c.stdin)
	if err != nil {
		return err
	}
	inputs, ok := input.([]any)
	if !ok {
		return &runnables.ValidationError{Reason: "--inputs must be a JSON array"}
	}

	sess, err := newSession(ctx, c.stderr, s.Pipeline)
	if err != nil {
		return err
	}
	defer sess.close()

	var options []runnables.BatchOption
	if s.ReturnExceptions {
		options = append(options, runnables.WithReturnExceptions())
	}
	outs, err := runnables.Batch(sess.ctx, sess.pipeline.Runnable, inputs, sess.cfg, options...)
	if err != nil {
		return err
	}

	for i, out := range outs {
		row := types.NewRow(
			types.MRP("index", i),
			types.MRP("input", inputs[i]),
		)
		if e, ok := out.(error); ok {
			row.Set("error", e.Error())
		} else {
			row.Set("output", out)
		}
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
