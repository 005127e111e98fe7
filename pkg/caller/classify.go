package caller

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Classifier decides whether a failed attempt may be retried.
type Classifier func(err error) bool

type retryableError struct {
	err error
}

func (e *retryableError) Error() string   { return e.err.Error() }
func (e *retryableError) Unwrap() error   { return e.err }
func (e *retryableError) Retryable() bool { return true }

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Retryable() bool { return false }

// Retryable marks err as transient. The marker is removed again before the error is
// returned by Call.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// Permanent marks err as terminal: Call returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// StatusError is an error carrying an HTTP-like status code, as returned by provider clients.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Code)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) StatusCode() int { return e.Code }

// IsRetryable is the default Classifier.
//
// Cancellation is never retried. Errors implementing Retryable() bool decide for themselves.
// Errors carrying a status code are retried for 408, 429 and 5xx only. Network timeouts,
// reset or refused connections and truncated responses are retried. Anything else is
// considered transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var marked interface{ Retryable() bool }
	if errors.As(err, &marked) {
		return marked.Retryable()
	}

	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		return isRetryableStatus(status.StatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return true
}

func isRetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	case code >= 400:
		return false
	}
	return true
}

// unmark strips the Retryable/Permanent markers added by this package.
func unmark(err error) error {
	for {
		switch e := err.(type) {
		case *retryableError:
			err = e.err
		case *permanentError:
			err = e.err
		default:
			return err
		}
	}
}
