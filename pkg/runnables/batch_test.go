package runnables

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/runnable/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inFlight records the maximum number of concurrent calls.
type inFlight struct {
	current, max int32
}

func (f *inFlight) enter() {
	n := atomic.AddInt32(&f.current, 1)
	for {
		m := atomic.LoadInt32(&f.max)
		if n <= m || atomic.CompareAndSwapInt32(&f.max, m, n) {
			return
		}
	}
}

func (f *inFlight) leave() {
	atomic.AddInt32(&f.current, -1)
}

func TestBatchKeepsInputOrder(t *testing.T) {
	r := NewLambda("jittered", func(ctx context.Context, x int) (int, error) {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		return x * 10, nil
	})

	inputs := make([]any, 30)
	for i := range inputs {
		inputs[i] = i
	}
	outputs, err := Batch(context.Background(), r, inputs, nil)
	require.NoError(t, err)
	require.Len(t, outputs, len(inputs))
	for i, out := range outputs {
		assert.Equal(t, i*10, out)
	}
}

func TestBatchMaxConcurrency(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		f := &inFlight{}
		r := NewLambda("tracked", func(ctx context.Context, x int) (int, error) {
			f.enter()
			defer f.leave()
			time.Sleep(time.Duration(1+rand.Intn(5)) * time.Millisecond)
			return x, nil
		})

		inputs := make([]any, 12)
		for i := range inputs {
			inputs[i] = i
		}
		outputs, err := Batch(context.Background(), r, inputs, nil, WithMaxConcurrency(k))
		require.NoError(t, err)
		assert.Len(t, outputs, len(inputs))
		assert.LessOrEqual(t, int(atomic.LoadInt32(&f.max)), k)
	}

	t.Run("from config", func(t *testing.T) {
		f := &inFlight{}
		r := NewLambda("tracked", func(ctx context.Context, x int) (int, error) {
			f.enter()
			defer f.leave()
			time.Sleep(2 * time.Millisecond)
			return x, nil
		})
		inputs := []any{1, 2, 3, 4, 5, 6}
		_, err := Batch(context.Background(), r, inputs, &config.RunnableConfig{MaxConcurrency: 2})
		require.NoError(t, err)
		assert.LessOrEqual(t, int(atomic.LoadInt32(&f.max)), 2)
	})
}

func TestBatchReturnExceptions(t *testing.T) {
	boom := errors.New("odd input")
	r := NewLambda("even_only", func(ctx context.Context, x int) (int, error) {
		if x%2 == 1 {
			return 0, boom
		}
		return x, nil
	})

	outputs, err := Batch(context.Background(), r, []any{0, 1, 2, 3}, nil, WithReturnExceptions())
	require.NoError(t, err)
	require.Len(t, outputs, 4)
	assert.Equal(t, 0, outputs[0])
	assert.ErrorIs(t, outputs[1].(error), boom)
	assert.Equal(t, 2, outputs[2])
	assert.ErrorIs(t, outputs[3].(error), boom)
}

func TestBatchFailureStopsDispatch(t *testing.T) {
	boom := errors.New("boom")
	var started int32
	r := NewLambda("first_fails", func(ctx context.Context, x int) (int, error) {
		atomic.AddInt32(&started, 1)
		if x == 0 {
			return 0, boom
		}
		return x, nil
	})

	inputs := make([]any, 20)
	for i := range inputs {
		inputs[i] = i
	}
	_, err := Batch(context.Background(), r, inputs, nil, WithMaxConcurrency(1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), atomic.LoadInt32(&started))
}

func TestBatchAggregatesConcurrentFailures(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	release := make(chan struct{})
	var waiting int32

	r := NewFunc("both_fail", func(ctx context.Context, input any) (any, error) {
		// make both items fail at the same time
		if atomic.AddInt32(&waiting, 1) == 2 {
			close(release)
		}
		<-release
		if input == "a" {
			return nil, errA
		}
		return nil, errB
	})

	_, err := Batch(context.Background(), r, []any{"a", "b"}, nil)
	require.Error(t, err)
	if errors.Is(err, ErrBatch) {
		var agg *AggregateBatchError
		require.ErrorAs(t, err, &agg)
		require.Len(t, agg.Failures, 2)
		assert.Equal(t, 0, agg.Failures[0].Index)
		assert.ErrorIs(t, agg.Failures[0].Err, errA)
		assert.ErrorIs(t, agg.Failures[1].Err, errB)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
	} else {
		// the second failure may observe the cancelled context first
		assert.True(t, errors.Is(err, errA) || errors.Is(err, errB))
	}
}

func TestBatchConfigsLengthMismatch(t *testing.T) {
	_, err := BatchConfigs(context.Background(), addOne(), []any{1, 2}, []*config.RunnableConfig{nil})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBatchEmpty(t *testing.T) {
	outputs, err := Batch(context.Background(), addOne(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, outputs)
}
