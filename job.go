package jobgraph

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// JobState is where a job is in its lifecycle.
type JobState uint32

const (
	Finished JobState = iota // The handle's job has completed, or never existed.
	Pending                  // Waiting on an unfinished dependency.
	Queued                   // On the ready heap.
	Running                  // Executing, or waiting for its children.
)

func (s JobState) String() string {
	switch s {
	case Finished:
		return "finished"
	case Pending:
		return "pending"
	case Queued:
		return "queued"
	case Running:
		return "running"
	}
	return fmt.Sprintf("JobState(%d)", uint32(s))
}

// JobID is a versioned handle: the slot generation in the high 32 bits and
// the slot index in the low 32 bits. A slot's generation moves on every time
// its job completes, so old handles read as finished.
type JobID uint64

// NullJob is the absent handle. Generations start at 1, so no live job is
// ever NullJob.
const NullJob JobID = 0

func makeJobID(generation, slot uint32) JobID {
	return JobID(uint64(generation)<<32 | uint64(slot))
}

// Slot returns the job table index.
func (id JobID) Slot() uint32 { return uint32(id) }

// Generation returns the slot generation.
func (id JobID) Generation() uint32 { return uint32(id >> 32) }

func (id JobID) String() string {
	if id == NullJob {
		return "job(null)"
	}
	return fmt.Sprintf("job(%d@%d)", id.Slot(), id.Generation())
}

// next returns the handle the slot will carry after this job completes.
func (id JobID) next() JobID {
	gen := id.Generation() + 1
	if gen == 0 {
		gen = 1
	}
	return makeJobID(gen, id.Slot())
}

// JobFunc is the body of a job. w identifies the goroutine running it.
type JobFunc func(w *Worker, id JobID, data any)

// Job describes a unit of work to submit.
type Job struct {
	// Func is called as Func(worker, id, Data).
	Func JobFunc
	Data any

	// Dependency, when unfinished, holds this job back until it completes.
	Dependency JobID

	// Parent does not complete until this job does. The parent must still
	// be open when this job is submitted, which only the caller can ensure,
	// typically by submitting from the parent's own body or from a child
	// that has not returned. Submitting against a parent that has already
	// begun completing panics with ErrParentFinished.
	Parent JobID

	// Priority orders the ready heap; higher runs first. Equal priorities
	// have no defined order.
	Priority uint32
}

// Observer is notified as jobs move through a Scheduler. Calls are made
// synchronously on the goroutine doing the work and must not block.
type Observer interface {
	JobQueued(id JobID, priority uint32)
	JobStarted(w *Worker, id JobID)
	JobFinished(w *Worker, id JobID, parent JobID, priority uint32)
}

const noSlot int32 = -1

// jobSlot is one entry of the job table. Slots are reused; id carries the
// generation of the job currently (or next) occupying it.
type jobSlot struct {
	id       atomic.Uint64
	openJobs atomic.Int32
	state    atomic.Uint32

	fn       JobFunc
	data     any
	parent   JobID
	priority uint32

	// mu guards firstDependent and the publish of the next id, so a
	// submitter that saw the job unfinished cannot link into a chain that
	// has already been drained.
	mu             sync.Mutex
	firstDependent int32
	sibling        int32
}

func (s *jobSlot) loadID() JobID { return JobID(s.id.Load()) }
