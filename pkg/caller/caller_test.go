package caller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastCaller(options ...Option) *AsyncCaller {
	return New(append([]Option{WithBackoff(time.Millisecond, 2*time.Millisecond, 2), WithJitter(0)}, options...)...)
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var calls int32
	var failed []int

	c := fastCaller(WithMaxAttempts(5), WithOnFailedAttempt(func(err error, attempt int) {
		failed = append(failed, attempt)
	}))
	v, err := c.Call(context.Background(), func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, &StatusError{Code: http.StatusTooManyRequests}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, []int{1, 2}, failed)
}

func TestCallReturnsOriginalErrorAfterMaxAttempts(t *testing.T) {
	c := fastCaller(WithMaxAttempts(3))
	original := &StatusError{Code: http.StatusServiceUnavailable, Err: errors.New("unavailable")}
	calls := 0

	_, err := Call(context.Background(), c, func(ctx context.Context) (int, error) {
		calls++
		return 0, original
	})
	assert.Same(t, original, err)
	assert.Equal(t, 3, calls)
}

func TestCallDoesNotRetryTerminalFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "bad request", err: &StatusError{Code: http.StatusBadRequest}},
		{name: "unauthorized", err: &StatusError{Code: http.StatusUnauthorized}},
		{name: "permanent", err: Permanent(errors.New("invalid input"))},
		{name: "canceled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fastCaller(WithMaxAttempts(5))
			calls := 0
			_, err := c.Call(context.Background(), func(ctx context.Context) (any, error) {
				calls++
				return nil, tt.err
			})
			require.Error(t, err)
			assert.Equal(t, 1, calls)
		})
	}

	t.Run("permanent marker is removed", func(t *testing.T) {
		inner := errors.New("invalid input")
		c := fastCaller()
		_, err := c.Call(context.Background(), func(ctx context.Context) (any, error) {
			return nil, Permanent(inner)
		})
		assert.Same(t, inner, err)
	})
}

func TestCallAbandonsRetriesOnCancellation(t *testing.T) {
	c := New(WithMaxAttempts(10), WithBackoff(time.Second, time.Second, 1), WithJitter(0))
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Call(ctx, func(ctx context.Context) (any, error) {
		calls++
		return nil, Retryable(errors.New("flaky"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCallConcurrencyCeiling(t *testing.T) {
	c := fastCaller(WithMaxConcurrency(2))
	var inFlight, maxInFlight int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Call(context.Background(), func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, maxInFlight, int32(2))
	assert.Greater(t, maxInFlight, int32(0))
}

func TestNilCallerRunsOnce(t *testing.T) {
	calls := 0
	_, err := Call(context.Background(), (*AsyncCaller)(nil), func(ctx context.Context) (string, error) {
		calls++
		return "", Retryable(errors.New("flaky"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
		{"408", &StatusError{Code: 408}, true},
		{"429", &StatusError{Code: 429}, true},
		{"500", &StatusError{Code: 500}, true},
		{"503 wrapped", fmt.Errorf("provider: %w", &StatusError{Code: 503}), true},
		{"400", &StatusError{Code: 400}, false},
		{"403", &StatusError{Code: 403}, false},
		{"404", &StatusError{Code: 404}, false},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"retryable marker", Retryable(errors.New("x")), true},
		{"permanent marker", Permanent(&StatusError{Code: 503}), false},
		{"unknown", errors.New("something"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
