// tree/slices.go
package tree

import "slices"

// The helpers below never write into their input: snapshots share slices.

func insertAt[T any](s []T, i int, v T) []T {
	i = max(0, min(i, len(s)))
	out := make([]T, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	return append(out, s[i:]...)
}

func removeAt[T any](s []T, i int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func replaceAt[T any](s []T, i int, v T) []T {
	out := slices.Clone(s)
	out[i] = v
	return out
}
