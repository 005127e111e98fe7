package runnables

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassthrough(t *testing.T) {
	in := map[string]any{"a": 1}
	out, err := NewPassthrough().Invoke(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	s, err := NewPassthrough().Stream(context.Background(), "x", nil)
	require.NoError(t, err)
	chunks, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, chunks)
}

func TestAssign(t *testing.T) {
	a, err := NewAssign(map[string]RunnableLike{
		"upper": func(v any) any { return strings.ToUpper(v.(map[string]any)["name"].(string)) },
		"size":  func(v any) any { return len(v.(map[string]any)["name"].(string)) },
	})
	require.NoError(t, err)

	in := map[string]any{"name": "ada", "nested": map[string]any{"k": "v"}}
	out, err := a.Invoke(context.Background(), in, nil)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "ada", m["name"])
	assert.Equal(t, "ADA", m["upper"])
	assert.Equal(t, 3, m["size"])

	// the input is left untouched and not aliased
	assert.Len(t, in, 2)
	m["nested"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", in["nested"].(map[string]any)["k"])
}

func TestAssignConcurrentBatch(t *testing.T) {
	a, err := NewAssign(map[string]RunnableLike{
		"n": func(v any) any { return v.(map[string]any)["i"] },
	})
	require.NoError(t, err)

	shared := map[string]any{"i": 0}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := a.Invoke(context.Background(), shared, nil)
			assert.NoError(t, err)
			out.(map[string]any)["i"] = 42
		}()
	}
	wg.Wait()
	assert.Equal(t, map[string]any{"i": 0}, shared)
}

func TestAssignRejectsNonMaps(t *testing.T) {
	a, err := NewAssign(map[string]RunnableLike{"x": addOne()})
	require.NoError(t, err)
	_, err = a.Invoke(context.Background(), 3, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAssignStream(t *testing.T) {
	a, err := NewAssign(map[string]RunnableLike{
		"greeting": func(v any) any { return "hi " + v.(map[string]any)["name"].(string) },
	})
	require.NoError(t, err)

	s, err := a.Stream(context.Background(), map[string]any{"name": "bob"}, nil)
	require.NoError(t, err)
	chunks, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"name": "bob"},
		map[string]any{"greeting": "hi bob"},
	}, chunks)
}

func TestPick(t *testing.T) {
	in := map[string]any{"a": 1, "b": 2, "c": 3}

	single, err := NewPick("b")
	require.NoError(t, err)
	out, err := single.Invoke(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out)

	several, err := NewPick("a", "c", "missing")
	require.NoError(t, err)
	out, err = several.Invoke(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, out)

	_, err = NewPick()
	assert.ErrorIs(t, err, ErrValidation)
}
