package callbacks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingHandler struct {
	NopHandler
}

func (panickingHandler) OnStart(context.Context, *Run) error {
	panic("broken observer")
}

type failingHandler struct {
	NopHandler
}

func (failingHandler) OnEnd(context.Context, *Run) error {
	return errors.New("cannot record")
}

func TestManagerRunTree(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	m := NewManager(c)

	root := m.StartRun(ctx, StartParams{Name: "root", Tags: []string{"user"}})
	child := root.GetChild("seq:step:0").StartRun(ctx, StartParams{Name: "child"})
	grandchild := child.GetChild("branch:1").StartRun(ctx, StartParams{Name: "grandchild"})
	grandchild.HandleEnd(ctx, 1)
	child.HandleEnd(ctx, 2)
	root.HandleEnd(ctx, 3)

	runs := c.Runs()
	require.Len(t, runs, 3)

	assert.True(t, runs[0].IsRoot())
	assert.Equal(t, root.RunID(), runs[1].ParentRunID)
	assert.Equal(t, child.RunID(), runs[2].ParentRunID)

	// local tags only apply to the run started by the child manager
	assert.Equal(t, []string{"user", "seq:step:0"}, runs[1].Tags)
	assert.Equal(t, []string{"user", "branch:1"}, runs[2].Tags)

	tree := c.Tree()
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	require.Len(t, tree[0].Children[0].Children, 1)
	assert.Equal(t, "grandchild", tree[0].Children[0].Children[0].Run.Name)
	assert.Equal(t, 1, tree[0].Children[0].Children[0].Run.Outputs)
}

func TestManagerSharesHandlers(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	m := NewManager(c)
	root := m.StartRun(ctx, StartParams{Name: "root"})
	childManager := root.GetChild("x")

	require.Len(t, childManager.Handlers(), 1)
	assert.Same(t, &m.Handlers()[0], &childManager.Handlers()[0])

	extended := childManager.WithHandlers(NopHandler{})
	assert.Len(t, extended.Handlers(), 2)
	assert.Len(t, childManager.Handlers(), 1)
}

func TestRunManagerExactlyOneTerminalEvent(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	rm := NewManager(c).StartRun(ctx, StartParams{Name: "once"})

	rm.HandleChunk(ctx, "a")
	rm.HandleChunk(ctx, "b")
	rm.HandleError(ctx, errors.New("boom"))
	rm.HandleEnd(ctx, "ignored")
	rm.HandleChunk(ctx, "late")

	events := c.EventsFor(rm.RunID())
	kinds := make([]EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventStart, EventChunk, EventChunk, EventError}, kinds)
	assert.Equal(t, "a", events[1].Chunk)
	assert.Equal(t, "b", events[2].Chunk)

	run, ok := c.Run(rm.RunID())
	require.True(t, ok)
	assert.EqualError(t, run.Error, "boom")
	assert.Nil(t, run.Outputs)
}

func TestBrokenHandlersAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	m := NewManager(panickingHandler{}, failingHandler{}, c)

	require.NotPanics(t, func() {
		rm := m.StartRun(ctx, StartParams{Name: "isolated"})
		rm.HandleEnd(ctx, "done")
	})

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventStart, events[0].Kind)
	assert.Equal(t, EventEnd, events[1].Kind)
}

func TestSiblingRunsKeepPerRunOrder(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	root := NewManager(c).StartRun(ctx, StartParams{Name: "root"})

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rm := root.GetChild("").StartRun(ctx, StartParams{Name: "sibling"})
			ids[i] = rm.RunID()
			for j := 0; j < 20; j++ {
				rm.HandleChunk(ctx, j)
			}
			rm.HandleEnd(ctx, nil)
		}(i)
	}
	wg.Wait()
	root.HandleEnd(ctx, nil)

	for _, id := range ids {
		events := c.EventsFor(id)
		require.Len(t, events, 22)
		assert.Equal(t, EventStart, events[0].Kind)
		for j := 0; j < 20; j++ {
			assert.Equal(t, j, events[j+1].Chunk)
		}
		assert.Equal(t, EventEnd, events[21].Kind)
	}
	assert.Len(t, c.Children(root.RunID()), 8)
}

func TestManagerMetadataIsInherited(t *testing.T) {
	ctx := context.Background()
	c := NewCollector()
	m := NewManager(c).WithMetadata(map[string]any{"a": 1}).WithTags("inherited")

	root := m.StartRun(ctx, StartParams{Name: "root", Metadata: map[string]any{"b": 2}})
	child := root.GetChild("").StartRun(ctx, StartParams{Name: "child"})
	child.HandleEnd(ctx, nil)
	root.HandleEnd(ctx, nil)

	run, ok := c.Run(child.RunID())
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, run.Metadata)
	assert.Equal(t, []string{"inherited"}, run.Tags)
}
