package utils

// Ring is a fixed-capacity FIFO buffer. Pushing onto a full ring evicts the oldest entry.
// Ring is not safe for concurrent use; owners guard it with their own lock.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRing creates a ring holding up to capacity entries (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, returning the evicted entry when the ring was full.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return evicted, false
	}
	evicted = r.buf[r.start]
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return evicted, true
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th entry, 0 being the oldest. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("utils: ring index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Last returns the newest entry.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.At(r.size - 1), true
}

// Tail copies the newest n entries, oldest first. n <= 0 or n > Len returns everything.
func (r *Ring[T]) Tail(n int) []T {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]T, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.At(i))
	}
	return out
}

// Slice copies all entries, oldest first.
func (r *Ring[T]) Slice() []T {
	return r.Tail(0)
}

// Clear drops every entry while keeping the capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start = 0
	r.size = 0
}

// Truncate keeps only the newest keep entries.
func (r *Ring[T]) Truncate(keep int) {
	if keep <= 0 {
		r.Clear()
		return
	}
	if keep >= r.size {
		return
	}
	kept := r.Tail(keep)
	r.Clear()
	for _, v := range kept {
		r.Push(v)
	}
}
