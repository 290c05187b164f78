package escalation

// chunk splits xs into consecutive groups of at most size elements, keeping order.
func chunk[T any](xs []T, size int) [][]T {
	if size <= 0 || len(xs) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(xs)+size-1)/size)
	for size < len(xs) {
		xs, out = xs[size:], append(out, xs[:size:size])
	}
	return append(out, xs)
}
