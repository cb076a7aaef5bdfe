package example

// Lengther is satisfied by every sequence type the dataset can hold.
type Lengther interface {
	Len() int
}

// Dataset is an append-only collection of sequences. It mirrors the
// C++ template `Data<T>`: a plain growable list that additionally tracks
// the total number of events across every sequence it holds, which the
// training driver uses for per-event averaging and reporting.
type Dataset[T Lengther] struct {
	items      []T
	nElements  int
}

// NewDataset returns an empty dataset.
func NewDataset[T Lengther]() *Dataset[T] {
	return &Dataset[T]{}
}

// Append adds a sequence and updates the running element count.
func (d *Dataset[T]) Append(item T) {
	d.items = append(d.items, item)
	d.nElements += item.Len()
}

// Len returns the number of sequences in the dataset.
func (d *Dataset[T]) Len() int { return len(d.items) }

// ElementCount returns the total number of events across all sequences.
func (d *Dataset[T]) ElementCount() int { return d.nElements }

// At returns the i-th sequence.
func (d *Dataset[T]) At(i int) T { return d.items[i] }

// All returns the underlying slice for range iteration. Callers must not
// mutate sequence lengths through the returned slice without going through
// Append, or nElements will drift out of sync.
func (d *Dataset[T]) All() []T { return d.items }
