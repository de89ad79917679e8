package sharedutil

func FilterSlice[T any](ss []T, test func(T) bool) []T {
	if ss == nil {
		return nil
	}
	result := make([]T, 0)
	for _, s := range ss {
		if test(s) {
			result = append(result, s)
		}
	}
	return result
}

func MapSlice[T any, U any](ts []T, f func(T) U) []U {
	if ts == nil {
		return nil
	}
	result := make([]U, len(ts))
	for i, t := range ts {
		result[i] = f(t)
	}
	return result
}

func ToSet[T comparable](ts []T) map[T]struct{} {
	set := make(map[T]struct{}, len(ts))
	for _, t := range ts {
		set[t] = struct{}{}
	}
	return set
}

// ReorderItems returns a new slice with the items at idxToMove moved,
// in the given order, to just before the item at insertIdx.
// An insertIdx of len(items) moves them to the end.
// Invalid and repeated indexes in idxToMove are ignored.
func ReorderItems[T any](items []T, idxToMove []int, insertIdx int) []T {
	idxToMove = validIndexes(idxToMove, len(items))
	idxToMoveSet := ToSet(idxToMove)

	newItems := make([]T, 0, len(items))

	// collect items that will end up before the insertion set
	i := 0
	for ; i < len(items); i++ {
		if insertIdx == i {
			break
		}
		if _, ok := idxToMoveSet[i]; !ok {
			newItems = append(newItems, items[i])
		}
	}

	for _, idx := range idxToMove {
		newItems = append(newItems, items[idx])
	}

	for ; i < len(items); i++ {
		if _, ok := idxToMoveSet[i]; !ok {
			newItems = append(newItems, items[i])
		}
	}

	return newItems
}

func validIndexes(idxs []int, n int) []int {
	seen := make(map[int]struct{}, len(idxs))
	return FilterSlice(idxs, func(i int) bool {
		if _, dup := seen[i]; dup || i < 0 || i >= n {
			return false
		}
		seen[i] = struct{}{}
		return true
	})
}
