package cmds

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/runnable/pkg/pipeline"
	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseInput(t *testing.T) {
	v, err := parseInput(`{"a": 1}`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)

	v, err = parseInput("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", v)

	v, err = parseInput("-", strings.NewReader(" [1, 2]\n"))
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, v)
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, NewRunCommand(), "", "testdata/double.yaml", "--input", "3")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)
}

// rowCollector keeps the rows a glazed command emits.
type rowCollector struct {
	rows []types.Row
}

func (c *rowCollector) AddRow(_ context.Context, row types.Row) error {
	c.rows = append(c.rows, row)
	return nil
}

func (c *rowCollector) Close(_ context.Context) error {
	return nil
}

func field(t *testing.T, row types.Row, name string) any {
	v, ok := row.Get(name)
	require.True(t, ok, "row has no %s field", name)
	return v
}

func newTestBatchCommand(t *testing.T, stdin string) *BatchCommand {
	c, err := NewBatchCommand()
	require.NoError(t, err)
	c.stdin = strings.NewReader(stdin)
	c.stderr = &bytes.Buffer{}
	return c
}

func TestBatchCommand(t *testing.T) {
	ctx := context.Background()

	gp := &rowCollector{}
	c := newTestBatchCommand(t, "[1, 2, 3]")
	require.NoError(t, c.runBatch(ctx, &BatchSettings{Pipeline: "testdata/double.yaml", Inputs: "-"}, gp))
	require.Len(t, gp.rows, 3)
	for i, want := range []float64{4, 6, 8} {
		assert.Equal(t, i, field(t, gp.rows[i], "index"))
		assert.Equal(t, want, field(t, gp.rows[i], "output"))
	}

	t.Run("failed items become error rows", func(t *testing.T) {
		gp := &rowCollector{}
		c := newTestBatchCommand(t, "")
		err := c.runBatch(ctx, &BatchSettings{
			Pipeline:         "testdata/double.yaml",
			Inputs:           `[1, "x"]`,
			ReturnExceptions: true,
		}, gp)
		require.NoError(t, err)
		require.Len(t, gp.rows, 2)
		assert.Equal(t, 4.0, field(t, gp.rows[0], "output"))
		assert.Equal(t, "x", field(t, gp.rows[1], "input"))
		assert.Contains(t, field(t, gp.rows[1], "error"), "expected a number")
		_, ok := gp.rows[1].Get("output")
		assert.False(t, ok)
	})

	t.Run("a failed item fails the batch", func(t *testing.T) {
		gp := &rowCollector{}
		c := newTestBatchCommand(t, "")
		err := c.runBatch(ctx, &BatchSettings{Pipeline: "testdata/double.yaml", Inputs: `[1, "x"]`}, gp)
		assert.Error(t, err)
		assert.Empty(t, gp.rows)
	})

	t.Run("inputs must be an array", func(t *testing.T) {
		c := newTestBatchCommand(t, "")
		err := c.runBatch(ctx, &BatchSettings{Pipeline: "testdata/double.yaml", Inputs: `{}`}, &rowCollector{})
		var verr *runnables.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestStreamCommand(t *testing.T) {
	out, err := execute(t, NewStreamCommand(), "", "testdata/words.yaml", "--input", "hello streaming world")
	require.NoError(t, err)
	assert.Equal(t, "HELLO STREAMING WORLD\n", out)

	out, err = execute(t, NewStreamCommand(), "", "testdata/words.yaml", "--input", "a b", "--lines")
	require.NoError(t, err)
	assert.Equal(t, "\"A\"\n\" B\"\n", out)
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, NewGraphCommand(), "", "testdata/double.yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD;"))
	assert.Contains(t, out, "-->")

	_, err = execute(t, NewGraphCommand(), "", "testdata/missing.yaml")
	assert.Error(t, err)
}

func TestNodesAndEdgesRows(t *testing.T) {
	ctx := context.Background()
	g, err := loadGraph("testdata/double.yaml")
	require.NoError(t, err)

	nodes := &rowCollector{}
	require.NoError(t, addNodeRows(ctx, g, nodes))
	require.Len(t, nodes.rows, 4)
	assert.Equal(t, 0, field(t, nodes.rows[0], "id"))
	assert.Equal(t, "schema", field(t, nodes.rows[0], "type"))

	edges := &rowCollector{}
	require.NoError(t, addEdgeRows(ctx, g, edges))
	require.Len(t, edges.rows, 3)
	assert.Equal(t, 0, field(t, edges.rows[0], "source"))
	assert.Equal(t, 1, field(t, edges.rows[0], "target"))
	assert.Equal(t, false, field(t, edges.rows[0], "conditional"))
}

func TestOpsRows(t *testing.T) {
	gp := &rowCollector{}
	require.NoError(t, addOpRows(context.Background(), pipeline.DefaultRegistry(), gp))

	var ops []any
	for _, row := range gp.rows {
		ops = append(ops, field(t, row, "op"))
	}
	assert.Contains(t, ops, "template")
}

func TestGlazedCommandDescriptions(t *testing.T) {
	batch, err := NewBatchCommand()
	require.NoError(t, err)
	assert.Equal(t, "batch", batch.Name)

	nodes, err := NewNodesCommand()
	require.NoError(t, err)
	assert.Equal(t, "nodes", nodes.Name)

	edges, err := NewEdgesCommand()
	require.NoError(t, err)
	assert.Equal(t, "edges", edges.Name)

	ops, err := NewOpsCommand()
	require.NoError(t, err)
	assert.Equal(t, "ops", ops.Name)
}
