package utils

// SliceToSet converts a slice of any comparable type to a set represented by a map[T]struct{}.
func SliceToSet[T comparable](slice []T) map[T]struct{} {
	set := make(map[T]struct{}, len(slice))
	for _, item := range slice {
		set[item] = struct{}{}
	}
	return set
}

// Difference returns the items of a whose key is not present in b, keeping a's order.
func Difference[T any, K comparable](a, b []T, key func(T) K) []T {
	keys := make([]K, 0, len(b))
	for _, item := range b {
		keys = append(keys, key(item))
	}
	seen := SliceToSet(keys)

	var out []T
	for _, item := range a {
		if _, ok := seen[key(item)]; !ok {
			out = append(out, item)
		}
	}
	return out
}
