// file: internal/collection/ordered.go
// version: 1.0.0
// guid: 3e4b5a92-efaa-4cb1-92bf-fddf61b53fb2

// Package collection holds small helpers for ordered sequences handed to the
// presentation layer.
package collection

import "fmt"

// Move returns items with the element at from relocated to index to. The
// relative order of every other element is preserved. The input slice is
// modified in place.
func Move[T any](items []T, from, to int) ([]T, error) {
	n := len(items)
	if from < 0 || from >= n {
		return items, fmt.Errorf("move: source index %d out of range [0,%d)", from, n)
	}
	if to < 0 || to >= n {
		return items, fmt.Errorf("move: target index %d out of range [0,%d)", to, n)
	}
	if from == to {
		return items, nil
	}
	v := items[from]
	if from < to {
		copy(items[from:to], items[from+1:to+1])
	} else {
		copy(items[to+1:from+1], items[to:from])
	}
	items[to] = v
	return items, nil
}

// SortedBy returns a stable copy of items ordered by less. The input is not
// modified.
func SortedBy[T any](items []T, less func(a, b T) bool) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
