package caller

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxAttempts     = 7
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
)

// AsyncCaller runs calls to external resources with a concurrency ceiling shared by all
// callers of the instance, and retries transient failures with exponential backoff.
type AsyncCaller struct {
	sem *semaphore.Weighted

	maxAttempts         int
	initialInterval     time.Duration
	maxInterval         time.Duration
	multiplier          float64
	randomizationFactor float64
	classify            Classifier
	onFailedAttempt     func(err error, attempt int)
}

type Option func(*AsyncCaller)

// WithMaxConcurrency bounds the number of calls in flight. 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(c *AsyncCaller) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		} else {
			c.sem = nil
		}
	}
}

// WithMaxAttempts sets the total number of attempts, including the first one.
func WithMaxAttempts(n int) Option {
	return func(c *AsyncCaller) {
		if n < 1 {
			n = 1
		}
		c.maxAttempts = n
	}
}

func WithBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(c *AsyncCaller) {
		c.initialInterval = initial
		c.maxInterval = max
		if multiplier > 0 {
			c.multiplier = multiplier
		}
	}
}

// WithJitter sets the randomization factor applied to every backoff interval, in [0, 1].
func WithJitter(factor float64) Option {
	return func(c *AsyncCaller) {
		c.randomizationFactor = factor
	}
}

func WithClassifier(classify Classifier) Option {
	return func(c *AsyncCaller) {
		c.classify = classify
	}
}

// WithOnFailedAttempt registers a hook called after every failed attempt that will be retried.
func WithOnFailedAttempt(f func(err error, attempt int)) Option {
	return func(c *AsyncCaller) {
		c.onFailedAttempt = f
	}
}

func New(options ...Option) *AsyncCaller {
	ret := &AsyncCaller{
		maxAttempts:         DefaultMaxAttempts,
		initialInterval:     DefaultInitialInterval,
		maxInterval:         DefaultMaxInterval,
		multiplier:          backoff.DefaultMultiplier,
		randomizationFactor: backoff.DefaultRandomizationFactor,
		classify:            IsRetryable,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (c *AsyncCaller) MaxAttempts() int {
	return c.maxAttempts
}

// ShouldRetry applies the caller's classifier.
func (c *AsyncCaller) ShouldRetry(err error) bool {
	return c.classify(err)
}

// FailedAttempt reports attempt n, which failed with err and will be retried, to the
// OnFailedAttempt hook.
func (c *AsyncCaller) FailedAttempt(err error, n int) {
	if c.onFailedAttempt != nil {
		c.onFailedAttempt(err, n)
	}
}

// NewBackOff returns a fresh backoff schedule with the caller's settings, for callers that
// drive their own retry loop.
func (c *AsyncCaller) NewBackOff() backoff.BackOff {
	return c.newBackOff()
}

func (c *AsyncCaller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval
	b.Multiplier = c.multiplier
	b.RandomizationFactor = c.randomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Call runs f until it succeeds, fails with a terminal error, or the attempts are
// exhausted. The last error is returned unchanged. Each attempt holds one slot of the
// concurrency ceiling; backoff waits do not. Cancelling ctx abandons any further attempt.
func (c *AsyncCaller) Call(ctx context.Context, f func(ctx context.Context) (any, error)) (any, error) {
	return Call(ctx, c, f)
}

// Call is the typed form of AsyncCaller.Call. A nil caller runs f once.
func Call[T any](ctx context.Context, c *AsyncCaller, f func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return f(ctx)
	}

	var b *backoff.ExponentialBackOff
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return zero, context.Cause(ctx)
		}

		v, err := attempt(ctx, c.sem, f)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, unmark(err)
		}
		if !c.classify(err) {
			return zero, unmark(err)
		}
		if n >= c.maxAttempts {
			log.Debug().Err(err).Int("attempts", n).Msg("giving up after max attempts")
			return zero, unmark(err)
		}

		c.FailedAttempt(err, n)

		if b == nil {
			b = c.newBackOff()
		}
		wait := b.NextBackOff()
		log.Debug().Err(err).Int("attempt", n).Dur("backoff", wait).Msg("retrying failed call")

		if err := Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// Sleep waits for d, returning the cause of ctx early if it is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

func attempt[T any](ctx context.Context, sem *semaphore.Weighted, f func(ctx context.Context) (T, error)) (T, error) {
	if sem == nil {
		return f(ctx)
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	defer sem.Release(1)
	return f(ctx)
}
