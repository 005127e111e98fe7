package runnables

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-go-golems/runnable/pkg/callbacks"
	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbacksUseBackup(t *testing.T) {
	primaryErr := errors.New("primary down")
	primary := failing("primary", primaryErr)
	backup := NewSimpleLambda("backup", func(x int) int { return x * 100 })

	cfg, c := withCollector()
	out, err := WithFallbacks(primary, backup).Invoke(context.Background(), 2, cfg)
	require.NoError(t, err)
	assert.Equal(t, 200, out)

	// primary ends in OnError before backup starts
	var sequence []string
	for _, e := range c.Events() {
		if e.Name == "primary" || e.Name == "backup" {
			sequence = append(sequence, e.Name+":"+string(e.Kind))
		}
	}
	assert.Equal(t, []string{
		"primary:" + string(callbacks.EventStart),
		"primary:" + string(callbacks.EventError),
		"backup:" + string(callbacks.EventStart),
		"backup:" + string(callbacks.EventEnd),
	}, sequence)

	assert.True(t, c.FindByName("primary")[0].HasTag("fallback:0"))
	assert.True(t, c.FindByName("backup")[0].HasTag("fallback:1"))
}

func TestFallbacksAllFail(t *testing.T) {
	err1 := errors.New("first")
	err2 := errors.New("second")
	err3 := errors.New("third")

	_, err := WithFallbacks(failing("a", err1), failing("b", err2), failing("c", err3)).
		Invoke(context.Background(), nil, nil)
	require.Error(t, err)

	var fe *FallbackError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, fe.Err, err3)
	require.Len(t, fe.Suppressed, 2)
	assert.ErrorIs(t, fe.Suppressed[0], err1)
	assert.ErrorIs(t, fe.Suppressed[1], err2)
	assert.ErrorIs(t, err, ErrFallbacksExhausted)
	assert.Contains(t, err.Error(), "third")
}

func TestFallbacksShouldFallback(t *testing.T) {
	fatal := errors.New("fatal")
	backup := &counter{}
	f := WithFallbacksOptions(
		failing("primary", fatal),
		FallbackOptions{ShouldFallback: func(err error) bool { return !errors.Is(err, fatal) }},
		backup.wrap("backup", func(v any) any { return v }),
	)
	_, err := f.Invoke(context.Background(), 1, nil)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 0, backup.count())
}

func TestFallbacksIgnoreCancellation(t *testing.T) {
	backup := &counter{}
	f := WithFallbacks(sleeper(500*time.Millisecond), backup.wrap("backup", func(v any) any { return v }))
	_, err := f.Invoke(context.Background(), 1, &config.RunnableConfig{Timeout: 20 * time.Millisecond})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, backup.count())
}

func TestFallbacksAfterPrimaryTimeout(t *testing.T) {
	primary := WithConfig(sleeper(500*time.Millisecond), &config.RunnableConfig{Timeout: 20 * time.Millisecond})
	backup := NewFunc("backup", func(ctx context.Context, input any) (any, error) {
		return "backup", nil
	})
	f := WithFallbacks(primary, backup)

	t.Run("invoke", func(t *testing.T) {
		cfg, c := withCollector()
		start := time.Now()
		out, err := f.Invoke(context.Background(), 1, cfg)
		require.NoError(t, err)
		assert.Equal(t, "backup", out)
		assert.Less(t, time.Since(start), 300*time.Millisecond)

		sleeperRuns := c.FindByName("sleeper")
		require.Len(t, sleeperRuns, 1)
		assert.ErrorIs(t, sleeperRuns[0].Error, ErrCancelled)
		require.Len(t, c.FindByName("backup"), 1)
	})

	t.Run("stream", func(t *testing.T) {
		s, err := f.Stream(context.Background(), 1, nil)
		require.NoError(t, err)
		chunks, err := s.Collect()
		require.NoError(t, err)
		assert.Equal(t, []any{"backup"}, chunks)
	})
}

func TestFallbacksStream(t *testing.T) {
	f := WithFallbacks(failing("primary", errors.New("down")), &words{})
	s, err := f.Stream(context.Background(), "one two", nil)
	require.NoError(t, err)
	chunks, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []any{"one", " two"}, chunks)
}
