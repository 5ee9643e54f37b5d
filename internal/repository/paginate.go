package repository

import (
	"cmp"
	"slices"
)

// PageSize is the number of items on one page.
const PageSize = 20

// Paginate sorts items by key descending, breaking ties by tie descending, and
// returns the 1-based page plus whether another page follows.
func Paginate[T any, K cmp.Ordered](items []T, page int, key func(T) K, tie func(T) string) ([]T, bool) {
	if page < 1 {
		page = 1
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		if c := cmp.Compare(key(b), key(a)); c != 0 {
			return c
		}
		return cmp.Compare(tie(b), tie(a))
	})

	start := (page - 1) * PageSize
	end := start + PageSize
	if start >= len(sorted) {
		return []T{}, false
	}
	return sorted[start:min(end, len(sorted))], len(sorted) > end
}
