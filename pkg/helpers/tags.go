package helpers

// MergeTags concatenates tag lists, dropping duplicates while keeping first-seen order.
// It always allocates, so none of the inputs is aliased by the result.
func MergeTags(lists ...[]string) []string {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	if n == 0 {
		return nil
	}
	seen := make(map[string]struct{}, n)
	ret := make([]string, 0, n)
	for _, l := range lists {
		for _, t := range l {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			ret = append(ret, t)
		}
	}
	return ret
}

// MergeMaps shallow-merges maps left to right; later maps win. It returns nil when all
// inputs are empty and never returns one of its inputs.
func MergeMaps[V any](maps ...map[string]V) map[string]V {
	n := 0
	for _, m := range maps {
		n += len(m)
	}
	if n == 0 {
		return nil
	}
	ret := make(map[string]V, n)
	for _, m := range maps {
		for k, v := range m {
			ret[k] = v
		}
	}
	return ret
}
