package slicest

// Map

func Map[T, U any, S ~[]T](s S, fn func(T) U) []U {
	result := make([]U, len(s))
	for i, t := range s {
		result[i] = fn(t)
	}
	return result
}

// Filter

func Filter[T any, S ~[]T](s S, keep func(T) bool) S {
	var result S
	for _, t := range s {
		if keep(t) {
			result = append(result, t)
		}
	}
	return result
}
