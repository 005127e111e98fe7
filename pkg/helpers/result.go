package helpers

// Result is a value or an error, sent as one item over a channel.
// Stream fan-in and Parallel chunk merging use it to keep failures in band.
type Result[T any] struct {
	value T
	err   error
}

func NewValueResult[T any](value T) Result[T] {
	return Result[T]{value: value}
}

func NewErrorResult[T any](err error) Result[T] {
	return Result[T]{err: err}
}

func (r Result[T]) Value() (T, error) {
	return r.value, r.err
}

func (r Result[T]) Error() error {
	return r.err
}

// Unwrap panics on an error result. Only use it where the error was already checked.
func (r Result[T]) Unwrap() T {
	if r.err != nil {
		panic(r.err)
	}
	return r.value
}

// CollectResults returns the values gathered so far together with the first error.
func CollectResults[T any](results []Result[T]) ([]T, error) {
	values := make([]T, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			return values, r.err
		}
		values = append(values, r.value)
	}
	return values, nil
}
