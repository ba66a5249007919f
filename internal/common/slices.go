package common

// Contains reports whether v is present in s.
func Contains[S ~[]E, E comparable](s S, v E) bool {
	for _, it := range s {
		if it == v {
			return true
		}
	}

	return false
}
