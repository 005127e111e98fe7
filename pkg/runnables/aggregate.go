package runnables

// concatChunks folds a streamed chunk into the aggregate reported as the run's output:
// strings are concatenated, slices appended, maps merged key by key, anything else is
// replaced by the latest chunk.
func concatChunks(acc any, chunk any) any {
	switch c := chunk.(type) {
	case string:
		if a, ok := acc.(string); ok {
			return a + c
		}
	case []any:
		if a, ok := acc.([]any); ok {
			ret := make([]any, 0, len(a)+len(c))
			ret = append(ret, a...)
			return append(ret, c...)
		}
	case map[string]any:
		if a, ok := acc.(map[string]any); ok {
			ret := make(map[string]any, len(a)+len(c))
			for k, v := range a {
				ret[k] = v
			}
			for k, v := range c {
				if prev, ok := ret[k]; ok {
					ret[k] = concatChunks(prev, v)
				} else {
					ret[k] = v
				}
			}
			return ret
		}
	}
	return chunk
}

// aggregator accumulates the chunks of a stream.
type aggregator struct {
	value any
	n     int
}

func (a *aggregator) add(chunk any) {
	if a.n == 0 {
		a.value = chunk
	} else {
		a.value = concatChunks(a.value, chunk)
	}
	a.n++
}
