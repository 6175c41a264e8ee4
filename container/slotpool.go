package container

import (
	"fmt"
	"unsafe"
)

const noSlot int32 = -1

// SlotPool is a preallocated arena of n slots with an index free list.
//
// The pool never constructs or clears a slot. Whatever a caller leaves in a
// slot is still there the next time it is handed out.
type SlotPool[T any] struct {
	slots    []T
	next     []int32
	head     int32
	inUse    int
	elemSize uintptr
}

// NewSlotPool allocates all n slots up front.
func NewSlotPool[T any](n int) *SlotPool[T] {
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		panic("container: SlotPool of zero-sized type")
	}
	if n < 0 {
		n = 0
	}
	p := &SlotPool[T]{
		slots:    make([]T, n),
		next:     make([]int32, n),
		head:     noSlot,
		elemSize: size,
	}
	// Thread the list so slot 0 is handed out first.
	for i := n - 1; i >= 0; i-- {
		p.next[i] = p.head
		p.head = int32(i)
	}
	return p
}

// Alloc pops the free-list head.
func (p *SlotPool[T]) Alloc() (int32, bool) {
	i := p.head
	if i == noSlot {
		return noSlot, false
	}
	p.head = p.next[i]
	p.next[i] = noSlot
	p.inUse++
	return i, true
}

// Release pushes slot i back onto the free list.
func (p *SlotPool[T]) Release(i int32) {
	if i < 0 || int(i) >= len(p.slots) {
		panic(fmt.Sprintf("container: slot %d outside pool of %d", i, len(p.slots)))
	}
	p.next[i] = p.head
	p.head = i
	p.inUse--
}

// At returns slot i.
func (p *SlotPool[T]) At(i int32) *T { return &p.slots[i] }

// IndexOf maps a slot pointer back to its index.
func (p *SlotPool[T]) IndexOf(ptr *T) (int32, bool) {
	if ptr == nil || len(p.slots) == 0 {
		return noSlot, false
	}
	base := uintptr(unsafe.Pointer(&p.slots[0]))
	addr := uintptr(unsafe.Pointer(ptr))
	if addr < base {
		return noSlot, false
	}
	off := addr - base
	if off%p.elemSize != 0 || off/p.elemSize >= uintptr(len(p.slots)) {
		return noSlot, false
	}
	return int32(off / p.elemSize), true
}

// Get returns a free slot, or nil when the pool is exhausted.
func (p *SlotPool[T]) Get() *T {
	i, ok := p.Alloc()
	if !ok {
		return nil
	}
	return &p.slots[i]
}

// Free returns a slot obtained from Get. It panics if ptr is not owned by
// the pool.
func (p *SlotPool[T]) Free(ptr *T) {
	i, ok := p.IndexOf(ptr)
	if !ok {
		panic("container: Free of pointer not owned by SlotPool")
	}
	p.Release(i)
}

// Cap returns the number of slots.
func (p *SlotPool[T]) Cap() int { return len(p.slots) }

// InUse returns the number of slots handed out.
func (p *SlotPool[T]) InUse() int { return p.inUse }
