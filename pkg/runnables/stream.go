package runnables

import (
	"context"
	"sync"

	"github.com/go-go-golems/runnable/pkg/helpers"
)

// Producer generates the chunks of a stream. emit blocks until the consumer pulls the chunk
// and returns false once the stream was closed, in which case the producer should return.
type Producer[T any] func(ctx context.Context, emit func(T) bool) error

// Stream is a lazy, pull-based, single-consumer iterator. The producer starts on the first
// call to Next and runs in its own goroutine. A Stream is not restartable and must not be
// used from several goroutines.
//
//	s, err := runnables.StreamOf(ctx, r, input, nil)
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//		fmt.Println(s.Value())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream[T any] struct {
	producer Producer[T]
	ctx      context.Context
	cancel   context.CancelCauseFunc

	ch   chan T
	errc chan error

	startOnce sync.Once
	started   bool
	done      bool
	closed    bool
	value     T
	err       error
}

func NewStream[T any](ctx context.Context, producer Producer[T]) *Stream[T] {
	ctx, cancel := context.WithCancelCause(ctx)
	return &Stream[T]{
		producer: producer,
		ctx:      ctx,
		cancel:   cancel,
		ch:       make(chan T),
		errc:     make(chan error, 1),
	}
}

// Resolve returns a stream yielding the single value v.
func Resolve[T any](ctx context.Context, v T) *Stream[T] {
	return NewStream(ctx, func(ctx context.Context, emit func(T) bool) error {
		emit(v)
		return nil
	})
}

// Reject returns a stream failing with err without yielding anything.
func Reject[T any](ctx context.Context, err error) *Stream[T] {
	return NewStream(ctx, func(ctx context.Context, emit func(T) bool) error {
		return err
	})
}

// Empty returns a stream that yields nothing.
func Empty[T any](ctx context.Context) *Stream[T] {
	return NewStream(ctx, func(ctx context.Context, emit func(T) bool) error {
		return nil
	})
}

func (s *Stream[T]) start() {
	s.startOnce.Do(func() {
		s.started = true
		go func() {
			defer close(s.ch)
			err := s.producer(s.ctx, func(v T) bool {
				select {
				case s.ch <- v:
					return true
				case <-s.ctx.Done():
					return false
				}
			})
			s.errc <- err
		}()
	})
}

// Next advances to the next chunk. It returns false once the stream is exhausted, failed
// or was closed.
func (s *Stream[T]) Next() bool {
	if s.done {
		return false
	}
	s.start()
	v, ok := <-s.ch
	if !ok {
		s.done = true
		err := <-s.errc
		if !s.closed {
			s.err = err
		}
		s.cancel(nil)
		var zero T
		s.value = zero
		return false
	}
	s.value = v
	return true
}

// Value returns the current chunk.
func (s *Stream[T]) Value() T {
	return s.value
}

// Err returns the error that ended the stream, after Next returned false.
func (s *Stream[T]) Err() error {
	return s.err
}

// Close stops the producer and waits for it to return. Closing an exhausted stream is a
// no-op.
func (s *Stream[T]) Close() {
	if s.done {
		return
	}
	s.closed = true
	s.done = true
	s.cancel(ErrStreamClosed)
	if !s.started {
		return
	}
	for range s.ch {
	}
	<-s.errc
}

// Collect drains the stream.
func (s *Stream[T]) Collect() ([]T, error) {
	defer s.Close()
	var ret []T
	for s.Next() {
		ret = append(ret, s.Value())
	}
	return ret, s.Err()
}

// Results pumps the stream into a channel, ending with an error result if the stream
// failed. The stream must not be used directly afterwards. A consumer that stops reading
// must cancel the stream's context to end the pump.
func (s *Stream[T]) Results() <-chan helpers.Result[T] {
	c := make(chan helpers.Result[T])
	go func() {
		defer close(c)
		defer s.Close()
		for s.Next() {
			select {
			case c <- helpers.NewValueResult(s.Value()):
			case <-s.ctx.Done():
				return
			}
		}
		if err := s.Err(); err != nil {
			select {
			case c <- helpers.NewErrorResult[T](err):
			case <-s.ctx.Done():
			}
		}
	}()
	return c
}
