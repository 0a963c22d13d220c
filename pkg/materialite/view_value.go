package materialite

// ValueView holds a single value: the last value added by a committed version.
type ValueView[T comparable] struct {
	*view[T, T]
}

// MaterializeValue attaches a value view to the stream, starting with initial. It is typically
// used with Size.
func MaterializeValue[T comparable](s *Stream[T], initial T, opts ...ViewOption) *ValueView[T] {
	return &ValueView[T]{newView(s, "value-view", initial, applyValue[T], opts)}
}

func applyValue[T comparable](data T, deltas []Delta[T]) (T, bool) {
	next := data
	for _, d := range deltas {
		for val, mult := range d.Data.All() {
			if mult > 0 {
				next = val
			}
		}
	}
	return next, next != data
}
