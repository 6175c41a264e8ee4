package jobgraph

import "github.com/yirzhou/jobgraph/container"

type readyEntry struct {
	slot     int32
	priority uint32
}

// readyHeap is a binary max-heap of job slots keyed by priority.
//
// It sifts by hand instead of using container/heap: heap.Push takes an
// any, and boxing every entry would allocate on each submit.
type readyHeap struct {
	items *container.Array[readyEntry]
}

func newReadyHeap(capacity int) *readyHeap {
	items := container.NewArray[readyEntry](nil)
	items.Reserve(capacity)
	return &readyHeap{items: items}
}

func (h *readyHeap) Len() int { return h.items.Len() }

func (h *readyHeap) push(slot int32, priority uint32) {
	// Capacity equals the job table size, so this never grows.
	h.items.Push(readyEntry{slot: slot, priority: priority})
	h.up(h.items.Len() - 1)
}

func (h *readyHeap) pop() (int32, bool) {
	n := h.items.Len()
	if n == 0 {
		return noSlot, false
	}
	top := h.items.At(0)
	last, _ := h.items.Pop()
	if n > 1 {
		h.items.Set(0, last)
		h.down(0)
	}
	return top.slot, true
}

func (h *readyHeap) up(i int) {
	s := h.items.Slice()
	for i > 0 {
		parent := (i - 1) / 2
		if s[parent].priority >= s[i].priority {
			return
		}
		s[parent], s[i] = s[i], s[parent]
		i = parent
	}
}

func (h *readyHeap) down(i int) {
	s := h.items.Slice()
	n := len(s)
	for {
		largest := i
		if l := 2*i + 1; l < n && s[l].priority > s[largest].priority {
			largest = l
		}
		if r := 2*i + 2; r < n && s[r].priority > s[largest].priority {
			largest = r
		}
		if largest == i {
			return
		}
		s[i], s[largest] = s[largest], s[i]
		i = largest
	}
}
