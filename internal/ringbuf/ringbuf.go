// Package ringbuf provides a fixed-capacity ring buffer that overwrites its
// oldest element once full. It backs the indicator bar series and the rolling
// windows of individual indicators. Storage is a single preallocated slice with
// a head index, so pushes never allocate.
//
// Ring is not safe for concurrent use; owners serialize access.
package ringbuf

// Ring is a fixed-capacity FIFO window over the most recent values.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	n    int // number of elements held
}

// New creates a ring holding at most capacity values. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest value is evicted and
// returned with ok=true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return evicted, false
	}
	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return evicted, true
}

// At returns the i-th value, 0 being the oldest. Panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the most recent value, or false when empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	return r.At(r.n - 1), true
}

// Each calls fn for every value from oldest to newest.
func (r *Ring[T]) Each(fn func(v T)) {
	for i := 0; i < r.n; i++ {
		fn(r.buf[(r.head+i)%len(r.buf)])
	}
}

// Slice copies the contents, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, 0, r.n)
	r.Each(func(v T) { out = append(out, v) })
	return out
}

// Full reports whether the next Push will evict.
func (r *Ring[T]) Full() bool {
	return r.n == len(r.buf)
}

// Len returns the current number of values.
func (r *Ring[T]) Len() int {
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Reset empties the ring without releasing storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.n = 0, 0
}
