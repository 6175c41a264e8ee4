package container

import "sync"

// Allocator hands out element buffers to containers.
// Alloc returns nil when the request cannot be satisfied.
type Allocator[T any] interface {
	Alloc(n int) []T
	Free(buf []T)
}

// HeapAllocator allocates from the Go heap and never fails.
type HeapAllocator[T any] struct{}

func (HeapAllocator[T]) Alloc(n int) []T { return make([]T, n) }
func (HeapAllocator[T]) Free([]T)        {}

// BudgetAllocator allocates from the Go heap but refuses to have more than
// limit elements live at once.
//
// BudgetAllocator is safe for concurrent use.
type BudgetAllocator[T any] struct {
	mu    sync.Mutex
	limit int
	live  int
}

// NewBudgetAllocator creates an allocator with the given element budget.
func NewBudgetAllocator[T any](limit int) *BudgetAllocator[T] {
	return &BudgetAllocator[T]{limit: limit}
}

func (a *BudgetAllocator[T]) Alloc(n int) []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 0 || a.live+n > a.limit {
		return nil
	}
	a.live += n
	return make([]T, n)
}

func (a *BudgetAllocator[T]) Free(buf []T) {
	a.mu.Lock()
	a.live -= len(buf)
	if a.live < 0 {
		a.live = 0
	}
	a.mu.Unlock()
}

// Live returns the number of elements currently allocated.
func (a *BudgetAllocator[T]) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
