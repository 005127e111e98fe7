package runnables

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrRecursionLimit     = errors.New("recursion limit reached")
	ErrCancelled          = errors.New("run cancelled")
	ErrUpstream           = errors.New("upstream error")
	ErrBatch              = errors.New("batch failed")
	ErrFallbacksExhausted = errors.New("all fallbacks failed")
	ErrStreamClosed       = errors.New("stream closed")
)

// ValidationError reports malformed input, detected before any work is dispatched.
type ValidationError struct {
	Runnable string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	msg := fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	if e.Runnable != "" {
		msg = fmt.Sprintf("%s in %s: %s", ErrValidation, e.Runnable, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) Unwrap() error        { return e.Err }
func (e *ValidationError) Retryable() bool      { return false }

// RecursionLimitError is returned when runs nest deeper than the configured limit.
type RecursionLimitError struct {
	Runnable string
	Limit    int
	Depth    int
}

func (e *RecursionLimitError) Error() string {
	if e == nil {
		return ErrRecursionLimit.Error()
	}
	return fmt.Sprintf("%s: %s is nested %d levels deep, limit is %d", ErrRecursionLimit, e.Runnable, e.Depth, e.Limit)
}

func (e *RecursionLimitError) Is(target error) bool { return target == ErrRecursionLimit }
func (e *RecursionLimitError) Retryable() bool      { return false }

// CancellationError is returned when the invocation's signal fired. Cause is the signal's
// error, usually context.Canceled or context.DeadlineExceeded.
type CancellationError struct {
	Runnable string
	Cause    error
}

func (e *CancellationError) Error() string {
	if e == nil {
		return ErrCancelled.Error()
	}
	cause := e.Cause
	if cause == nil {
		cause = context.Canceled
	}
	if e.Runnable == "" {
		return fmt.Sprintf("%s: %v", ErrCancelled, cause)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCancelled, e.Runnable, cause)
}

func (e *CancellationError) Is(target error) bool {
	return target == ErrCancelled || target == context.Canceled
}
func (e *CancellationError) Unwrap() error   { return e.Cause }
func (e *CancellationError) Retryable() bool { return false }

// UpstreamError wraps the error of a leaf's underlying work.
type UpstreamError struct {
	Runnable string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ErrUpstream.Error()
	}
	return fmt.Sprintf("%s: %v", e.Runnable, e.Err)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
func (e *UpstreamError) Unwrap() error        { return e.Err }

// BatchFailure is the failure of a single batch item.
type BatchFailure struct {
	Index int
	Err   error
}

// AggregateBatchError collects the failures of concurrently running batch items, in
// input order.
type AggregateBatchError struct {
	Failures []BatchFailure
}

func (e *AggregateBatchError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return ErrBatch.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("[%d] %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%s: %d items failed: %s", ErrBatch, len(e.Failures), strings.Join(parts, "; "))
}

func (e *AggregateBatchError) Is(target error) bool { return target == ErrBatch }

func (e *AggregateBatchError) Unwrap() []error {
	ret := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		ret = append(ret, f.Err)
	}
	return ret
}

// StepError tells which child of a composite failed.
type StepError struct {
	Operator string
	Label    string
	RunID    uuid.UUID
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operator, e.Label, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FallbackError is returned when a runnable and all its fallbacks failed. Err is the last
// failure, Suppressed holds the earlier ones in attempt order.
type FallbackError struct {
	Err        error
	Suppressed []error
}

func (e *FallbackError) Error() string {
	if len(e.Suppressed) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (%d earlier failures suppressed)", e.Err, len(e.Suppressed))
}

func (e *FallbackError) Is(target error) bool { return target == ErrFallbacksExhausted }

// Unwrap returns the last failure first.
func (e *FallbackError) Unwrap() []error {
	return append([]error{e.Err}, e.Suppressed...)
}

func isCancellation(err error) bool {
	var c *CancellationError
	return errors.As(err, &c)
}

// cancellationOrErr turns an error observed after ctx was done into a CancellationError.
func cancellationOrErr(ctx context.Context, name string, err error) error {
	if err == nil || isCancellation(err) {
		return err
	}
	if ctx.Err() != nil {
		return &CancellationError{Runnable: name, Cause: context.Cause(ctx)}
	}
	return err
}

// upstream wraps errors of user code that are not already part of the error taxonomy.
func upstream(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrRecursionLimit) ||
		errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrBatch) ||
		isCancellation(err) {
		return err
	}
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &UpstreamError{Runnable: name, Err: err}
}
