package capability

import (
	"cmp"
	"math"
	"math/bits"
	"slices"
)

// EffectiveBudget is min(declared, configured). Non-positive inputs yield 0.
func EffectiveBudget(declared, configured int) int {
	if declared <= 0 || configured <= 0 {
		return 0
	}
	return min(declared, configured)
}

// Rank returns a stably sorted copy of items. The input is left untouched.
func Rank[T any](items []T, compare func(a, b T) int) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, compare)
	return out
}

// ByScoreThenKey orders by score descending, then key ascending.
func ByScoreThenKey[T any, K cmp.Ordered](score func(T) int64, key func(T) K) func(a, b T) int {
	return func(a, b T) int {
		if c := cmp.Compare(score(b), score(a)); c != 0 {
			return c
		}
		return cmp.Compare(key(a), key(b))
	}
}

// TopN truncates an already-ranked slice to n items.
func TopN[T any](ranked []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n:n]
}

// RankTopN sorts first, then truncates, so truncation always keeps the top
// n rather than an arbitrary subset.
func RankTopN[T any](items []T, n int, compare func(a, b T) int) []T {
	return TopN(Rank(items, compare), n)
}

// Dedupe keeps the first item for each canonical key, preserving insertion
// order. Canonicalization happens before the seen-set lookup.
func Dedupe[T any](items []T, canon func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := canon(it)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Index maps each key to its position, for cross-reference checks.
func Index[T any](items []T, key func(T) string) map[string]int {
	idx := make(map[string]int, len(items))
	for i, it := range items {
		if _, exists := idx[key(it)]; !exists {
			idx[key(it)] = i
		}
	}
	return idx
}

// BasisPoints returns part*10000/whole, or 0 when whole or part is not
// positive. The product is taken in 128 bits so large unit counts do not
// wrap; a quotient beyond int range saturates.
func BasisPoints(part, whole int64) int {
	if whole <= 0 || part <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(part), 10000)
	if hi >= uint64(whole) {
		return math.MaxInt
	}
	q, _ := bits.Div64(hi, lo, uint64(whole))
	if q > math.MaxInt {
		return math.MaxInt
	}
	return int(q)
}
