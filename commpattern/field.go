package commpattern

// Field is a registered per-entry array that follows the pattern's
// compaction on Rebuild.
type Field[T any] struct {
	name   string
	Values []T
}

func NewField[T any](name string, n int) *Field[T] {
	return &Field[T]{name: name, Values: make([]T, n)}
}

func (f *Field[T]) Name() string { return f.name }
func (f *Field[T]) Len() int     { return len(f.Values) }

func (f *Field[T]) Append(vals ...T) {
	f.Values = append(f.Values, vals...)
}

func (f *Field[T]) Remap(keep []int) {
	out := make([]T, len(keep))
	for n, i := range keep {
		out[n] = f.Values[i]
	}
	f.Values = out
}
