// Package container provides the fixed-capacity containers the job
// scheduler is built from.
//
// # Array
//
// A growable contiguous buffer drawn from an explicit [Allocator]. Growth
// follows new = old*2 + 8. Operations that change capacity report allocator
// failure by returning false.
//
// # HashMap
//
// Open addressing with linear probing and a 6-bit tag per bucket. The hash
// is the identity: keys must already be well distributed integers such as
// handles.
//
// # SlotPool
//
// A preallocated arena of slots with an index free list. Slots are never
// constructed or cleared, so their contents survive reuse.
//
// # RingQueue and FixedRingQueue
//
// Circular queues. The fixed variant never grows and overwrites its oldest
// entry when full.
//
// # Thread Safety
//
// None of the containers are safe for concurrent use. Callers lock.
package container
