package container

// Array is a growable contiguous buffer over an explicit allocator.
// The zero value is an empty array on the Go heap.
//
// buf always has len == capacity; size is the logical length.
type Array[T any] struct {
	alloc Allocator[T]
	buf   []T
	size  int
}

// NewArray creates an empty array. A nil allocator means the Go heap.
func NewArray[T any](alloc Allocator[T]) *Array[T] {
	if alloc == nil {
		alloc = HeapAllocator[T]{}
	}
	return &Array[T]{alloc: alloc}
}

func (a *Array[T]) allocator() Allocator[T] {
	if a.alloc == nil {
		a.alloc = HeapAllocator[T]{}
	}
	return a.alloc
}

func growCapacity(old, need int) int {
	n := old*2 + 8
	if n < need {
		n = need
	}
	return n
}

// realloc moves the contents into a buffer of exactly n elements.
// The array is unchanged if the allocator fails.
func (a *Array[T]) realloc(n int) bool {
	buf := a.allocator().Alloc(n)
	if buf == nil && n > 0 {
		return false
	}
	copy(buf, a.buf[:a.size])
	if a.buf != nil {
		a.alloc.Free(a.buf)
	}
	a.buf = buf
	return true
}

// Push appends v, growing the buffer when full.
func (a *Array[T]) Push(v T) bool {
	if a.size == len(a.buf) {
		if !a.realloc(growCapacity(len(a.buf), a.size+1)) {
			return false
		}
	}
	a.buf[a.size] = v
	a.size++
	return true
}

// PushMany appends all of vs with a single grow.
func (a *Array[T]) PushMany(vs ...T) bool {
	need := a.size + len(vs)
	if need > len(a.buf) {
		if !a.realloc(growCapacity(len(a.buf), need)) {
			return false
		}
	}
	copy(a.buf[a.size:], vs)
	a.size = need
	return true
}

// Resize sets the logical length. New elements are zeroed.
// Shrinking keeps the capacity.
func (a *Array[T]) Resize(n int) bool {
	var zero T
	return a.ResizeFill(n, zero)
}

// ResizeFill is Resize with new elements set to fill.
func (a *Array[T]) ResizeFill(n int, fill T) bool {
	if n > len(a.buf) {
		if !a.realloc(n) {
			return false
		}
	}
	for i := a.size; i < n; i++ {
		a.buf[i] = fill
	}
	a.size = n
	return true
}

// Reserve grows the capacity to at least n without changing the length.
func (a *Array[T]) Reserve(n int) bool {
	if n <= len(a.buf) {
		return true
	}
	return a.realloc(n)
}

// At returns element i. Only the capacity is bounds checked.
func (a *Array[T]) At(i int) T { return a.buf[i] }

// Set stores v at i. Only the capacity is bounds checked.
func (a *Array[T]) Set(i int, v T) { a.buf[i] = v }

// Ptr returns a pointer to element i, valid until the next grow.
func (a *Array[T]) Ptr(i int) *T { return &a.buf[i] }

// Pop removes and returns the last element.
func (a *Array[T]) Pop() (T, bool) {
	var zero T
	if a.size == 0 {
		return zero, false
	}
	a.size--
	v := a.buf[a.size]
	a.buf[a.size] = zero
	return v, true
}

// Len returns the logical length.
func (a *Array[T]) Len() int { return a.size }

// Cap returns the buffer capacity.
func (a *Array[T]) Cap() int { return len(a.buf) }

// Slice returns the live elements. The slice aliases the buffer.
func (a *Array[T]) Slice() []T { return a.buf[:a.size] }

// Clear drops all elements and keeps the buffer.
func (a *Array[T]) Clear() {
	clear(a.buf[:a.size])
	a.size = 0
}

// Free returns the buffer to the allocator. The array stays usable.
func (a *Array[T]) Free() {
	if a.buf != nil {
		a.alloc.Free(a.buf)
	}
	a.buf = nil
	a.size = 0
}

// Clone copies the array into a new buffer from the same allocator.
func (a *Array[T]) Clone() (*Array[T], bool) {
	c := NewArray(a.allocator())
	if a.size == 0 {
		return c, true
	}
	if !c.realloc(a.size) {
		return nil, false
	}
	copy(c.buf, a.buf[:a.size])
	c.size = a.size
	return c, true
}

// MoveTo transfers the contents into dst, which must be empty, and leaves a
// holding dst's old (empty) state.
func (a *Array[T]) MoveTo(dst *Array[T]) {
	if dst.size != 0 {
		panic("container: MoveTo destination is not empty")
	}
	a.alloc, dst.alloc = dst.alloc, a.alloc
	a.buf, dst.buf = dst.buf, a.buf
	a.size, dst.size = dst.size, a.size
}
