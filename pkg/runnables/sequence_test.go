package runnables

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceInvokeFoldsSteps(t *testing.T) {
	ctx := context.Background()
	steps := []RunnableLike{addOne(), double(), addOne(), double()}
	seq, err := NewSequence(steps...)
	require.NoError(t, err)

	for _, input := range []int{-3, 0, 1, 7} {
		t.Run(fmt.Sprintf("input %d", input), func(t *testing.T) {
			cfg, c := withCollector()
			out, err := seq.Invoke(ctx, input, cfg)
			require.NoError(t, err)

			var want any = input
			for _, s := range steps {
				want, err = s.(Runnable).Invoke(ctx, want, nil)
				require.NoError(t, err)
			}
			assert.Equal(t, want, out)

			roots := c.Roots()
			require.Len(t, roots, 1)
			children := c.Children(roots[0].ID)
			require.Len(t, children, len(steps))
			for i, child := range children {
				assert.True(t, child.HasTag(fmt.Sprintf("seq:step:%d", i)), "child %d tags %v", i, child.Tags)
			}
		})
	}
}

func TestSequenceEndToEnd(t *testing.T) {
	ctx := context.Background()

	seq := MustPipe(addOne(), double())
	out, err := seq.Invoke(ctx, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, out)

	branch, err := NewBranch(
		NewSimpleLambda("identity", func(x int) int { return x }),
		Case{
			Condition: NewSimpleLambda("gt5", func(x int) bool { return x > 5 }),
			Then:      NewSimpleLambda("minus_one", func(x int) int { return x - 1 }),
		},
	)
	require.NoError(t, err)
	seq = MustPipe(addOne(), branch)

	out, err = seq.Invoke(ctx, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, out)

	out, err = seq.Invoke(ctx, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, out)
}

func TestSequenceSplicesSequences(t *testing.T) {
	inner := MustPipe(addOne(), double())
	outer, err := Pipe(inner, addOne(), MustPipe(double(), addOne()))
	require.NoError(t, err)
	assert.Len(t, outer.Steps(), 5)
	for _, s := range outer.Steps() {
		_, nested := s.(*Sequence)
		assert.False(t, nested)
	}

	out, err := outer.Invoke(context.Background(), 1, nil)
	require.NoError(t, err)
	// ((1+1)*2+1)*2+1
	assert.Equal(t, 11, out)
}

func TestSequenceNeedsTwoSteps(t *testing.T) {
	_, err := NewSequence(addOne())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSequenceFailureStopsRemainingSteps(t *testing.T) {
	boom := errors.New("boom")
	after := &counter{}
	seq := MustPipe(addOne(), failing("broken", boom), after.wrap("after", func(v any) any { return v }))

	cfg, c := withCollector()
	_, err := seq.Invoke(context.Background(), 1, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 0, after.count())

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "seq:step:1", se.Label)
	assert.Equal(t, sequenceName, se.Operator)

	root := c.Roots()[0]
	assert.Error(t, root.Error)
	children := c.Children(root.ID)
	require.Len(t, children, 2)
	assert.NoError(t, children[0].Error)
	assert.ErrorIs(t, children[1].Error, boom)

	// every failing run reported its error before its parent did
	var order []string
	for _, e := range c.Events() {
		if e.Kind == callbacks.EventError {
			order = append(order, e.Name)
		}
	}
	assert.Equal(t, []string{"broken", sequenceName}, order)
}

func TestSequenceTypeMismatchIsValidationError(t *testing.T) {
	seq := MustPipe(NewSimpleLambda("to_string", func(x int) string { return fmt.Sprint(x) }), addOne())
	_, err := seq.Invoke(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSequenceStream(t *testing.T) {
	ctx := context.Background()
	greet := NewSimpleLambda("greet", func(name string) string { return "hello dear " + name })

	t.Run("streams the last step", func(t *testing.T) {
		seq := MustPipe(greet, &words{})
		cfg, c := withCollector()
		s, err := seq.Stream(ctx, "world", cfg)
		require.NoError(t, err)
		chunks, err := s.Collect()
		require.NoError(t, err)
		assert.Equal(t, []any{"hello", " dear", " world"}, chunks)

		seqRuns := c.FindByName(sequenceName)
		require.Len(t, seqRuns, 1)
		assert.Equal(t, "hello dear world", seqRuns[0].Outputs)
		assert.Len(t, c.Children(seqRuns[0].ID), 2)
	})

	t.Run("non streaming last step yields one chunk", func(t *testing.T) {
		seq := MustPipe(&words{}, greet)
		s, err := seq.Stream(ctx, "a b", nil)
		require.NoError(t, err)
		chunks, err := s.Collect()
		require.NoError(t, err)
		assert.Equal(t, []any{"hello dear a b"}, chunks)
	})

	t.Run("upstream failure", func(t *testing.T) {
		boom := errors.New("boom")
		seq := MustPipe(failing("broken", boom), &words{})
		s, err := seq.Stream(ctx, "x", nil)
		require.NoError(t, err)
		chunks, err := s.Collect()
		assert.Empty(t, chunks)
		assert.ErrorIs(t, err, boom)
	})
}
