package jobgraph

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/yirzhou/jobgraph/container"
)

// Scheduler runs a graph of jobs on a fixed pool of worker goroutines.
//
// Lock order: a job slot's mu may be held while taking queueMu, never the
// other way round. freeMu is only held on its own.
type Scheduler struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer

	// freeMu guards the job table's free list. Slot fields are owned by
	// whoever allocated the slot until it is released.
	freeMu sync.Mutex
	table  *container.SlotPool[jobSlot]

	// queueMu guards ready and the stopping transition; cond wakes idle
	// workers.
	queueMu sync.Mutex
	cond    *sync.Cond
	ready   *readyHeap

	stopping atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	workers  []*Worker
	external *Worker

	submitted atomic.Uint64
	completed atomic.Uint64
}

// Stats is a point-in-time view of scheduler activity.
type Stats struct {
	Submitted uint64
	Completed uint64
	InFlight  int // Slots allocated to unfinished jobs.
	Queued    int // Jobs on the ready heap.
	Workers   int
	Capacity  int
}

// New creates a Scheduler from DefaultConfig and the given options, and
// starts its workers.
func New(opts ...Option) (*Scheduler, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Scheduler and starts its workers.
func NewWithConfig(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = newNopLogger()
	}

	s := &Scheduler{
		cfg:      cfg,
		logger:   logger,
		observer: cfg.Observer,
		table:    container.NewSlotPool[jobSlot](cfg.MaxJobs),
		ready:    newReadyHeap(cfg.MaxJobs),
	}
	s.cond = sync.NewCond(&s.queueMu)
	for i := range int32(cfg.MaxJobs) {
		slot := s.table.At(i)
		slot.id.Store(uint64(makeJobID(1, uint32(i))))
		slot.firstDependent = noSlot
		slot.sibling = noSlot
	}

	s.external = &Worker{index: 0, sched: s}
	n := cfg.workerCount(runtime.GOMAXPROCS(0))
	s.workers = make([]*Worker, n)
	for i := range n {
		s.workers[i] = &Worker{index: uint8(i + 1), sched: s}
	}
	s.wg.Add(n)
	for _, w := range s.workers {
		go w.run()
	}

	logger.Info("scheduler started",
		slog.Int("workers", n),
		slog.Int("max_jobs", cfg.MaxJobs),
	)
	return s, nil
}

// fatal logs and panics with err wrapped. It is used for programmer errors
// the caller cannot recover from.
func (s *Scheduler) fatal(err error, msg string, attrs ...any) {
	s.logger.Error(msg, attrs...)
	panic(fmt.Errorf("%w: %s", err, msg))
}

func (s *Scheduler) slotOf(id JobID) *jobSlot {
	i := id.Slot()
	if int64(i) >= int64(s.table.Cap()) {
		return nil
	}
	return s.table.At(int32(i))
}

// Go submits fn with no dependency, parent or priority.
func (s *Scheduler) Go(fn JobFunc, data any) JobID {
	return s.Submit(Job{Func: fn, Data: data})
}

// Submit schedules job and returns its handle. A job with a nil Func does
// nothing when run, which makes it usable as a join point for children.
//
// Submit panics wrapping ErrCapacityExceeded when every slot is in flight,
// ErrStopped after Stop, and ErrParentFinished if job.Parent has already
// completed.
func (s *Scheduler) Submit(job Job) JobID {
	if s.stopping.Load() {
		s.fatal(ErrStopped, "submit after stop")
	}

	s.freeMu.Lock()
	idx, ok := s.table.Alloc()
	s.freeMu.Unlock()
	if !ok {
		s.fatal(ErrCapacityExceeded, "no free job slot", slog.Int("max_jobs", s.cfg.MaxJobs))
	}

	slot := s.table.At(idx)
	slot.fn = job.Func
	slot.data = job.Data
	slot.parent = job.Parent
	slot.priority = job.Priority
	slot.openJobs.Store(1)
	id := slot.loadID()
	s.submitted.Add(1)

	// The parent edge must exist before this job can possibly complete.
	if job.Parent != NullJob && !s.retainParent(job.Parent) {
		s.fatal(ErrParentFinished, "parent is not live",
			slog.String("job", id.String()),
			slog.String("parent", job.Parent.String()),
		)
	}

	if job.Dependency != NullJob && s.link(idx, slot, job.Dependency) {
		if debugEnabled(s.logger) {
			s.logger.Debug("job pending on dependency",
				slog.String("job", id.String()),
				slog.String("dependency", job.Dependency.String()),
			)
		}
		return id
	}

	s.enqueue(idx, slot, id)
	return id
}

// retainParent adds one open count to parent. It never raises a count from
// zero, since that job is already completing. If the slot was recycled
// between the id check and the increment, the count belonged to another job
// and is handed back through finish.
func (s *Scheduler) retainParent(parent JobID) bool {
	p := s.slotOf(parent)
	if p == nil || p.loadID() != parent {
		return false
	}
	for {
		n := p.openJobs.Load()
		if n <= 0 {
			return false
		}
		if p.openJobs.CompareAndSwap(n, n+1) {
			break
		}
	}
	if p.loadID() != parent {
		s.finish(s.external, int32(parent.Slot()))
		return false
	}
	return true
}

// link adds slot idx to the dependent chain of dep. It reports false when
// dep has already finished, in which case the job is ready now.
func (s *Scheduler) link(idx int32, slot *jobSlot, dep JobID) bool {
	d := s.slotOf(dep)
	if d == nil || d.loadID() != dep {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	// dep may have completed between the check above and the lock.
	if d.loadID() != dep {
		return false
	}
	slot.state.Store(uint32(Pending))
	slot.sibling = d.firstDependent
	d.firstDependent = idx
	return true
}

func (s *Scheduler) enqueue(idx int32, slot *jobSlot, id JobID) {
	slot.state.Store(uint32(Queued))
	if s.observer != nil {
		s.observer.JobQueued(id, slot.priority)
	}
	s.queueMu.Lock()
	s.ready.push(idx, slot.priority)
	s.queueMu.Unlock()
	s.cond.Signal()
}

// releaseDependents moves a detached dependent chain onto the ready heap
// under one queue lock, then wakes every idle worker.
func (s *Scheduler) releaseDependents(head int32) {
	n := 0
	for i := head; i != noSlot; i = s.table.At(i).sibling {
		d := s.table.At(i)
		d.state.Store(uint32(Queued))
		if s.observer != nil {
			s.observer.JobQueued(d.loadID(), d.priority)
		}
		n++
	}

	s.queueMu.Lock()
	for i := head; i != noSlot; {
		d := s.table.At(i)
		next := d.sibling
		d.sibling = noSlot
		s.ready.push(i, d.priority)
		i = next
	}
	s.queueMu.Unlock()
	s.cond.Broadcast()

	if debugEnabled(s.logger) {
		s.logger.Debug("released dependents", slog.Int("count", n))
	}
}

func (s *Scheduler) tryPop() (int32, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.ready.pop()
}

// nextJob blocks until a job is ready or the scheduler is stopping.
func (s *Scheduler) nextJob() (int32, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for s.ready.Len() == 0 && !s.stopping.Load() {
		s.cond.Wait()
	}
	if s.stopping.Load() {
		return noSlot, false
	}
	return s.ready.pop()
}

// execute runs the job in slot idx on w and then completes it.
func (s *Scheduler) execute(w *Worker, idx int32) {
	slot := s.table.At(idx)
	id := slot.loadID()
	slot.state.Store(uint32(Running))
	if s.observer != nil {
		s.observer.JobStarted(w, id)
	}
	if debugEnabled(s.logger) {
		s.logger.Debug("job started",
			slog.String("job", id.String()),
			slog.Int("worker", int(w.index)),
		)
	}

	if slot.fn != nil {
		slot.fn(w, id, slot.data)
	}
	s.finish(w, idx)
}

// finish drops one open count from the job in slot idx. Whoever takes a job
// to zero completes it and carries on to its parent.
func (s *Scheduler) finish(w *Worker, idx int32) {
	for idx != noSlot {
		slot := s.table.At(idx)
		if slot.openJobs.Add(-1) != 0 {
			return
		}
		parent := slot.parent
		s.complete(w, idx, slot)

		idx = noSlot
		if parent != NullJob {
			// The parent is live: this job held one of its open counts.
			idx = int32(parent.Slot())
		}
	}
}

// complete retires a job whose open count reached zero: its dependents are
// queued, its handle is invalidated and the slot goes back on the free list,
// in that order.
func (s *Scheduler) complete(w *Worker, idx int32, slot *jobSlot) {
	id := slot.loadID()
	if s.observer != nil {
		s.observer.JobFinished(w, id, slot.parent, slot.priority)
	}
	slot.fn = nil
	slot.data = nil
	slot.parent = NullJob
	slot.state.Store(uint32(Finished))

	slot.mu.Lock()
	head := slot.firstDependent
	slot.firstDependent = noSlot
	slot.id.Store(uint64(id.next()))
	slot.mu.Unlock()

	if head != noSlot {
		s.releaseDependents(head)
	}
	s.completed.Add(1)

	if debugEnabled(s.logger) {
		s.logger.Debug("job finished",
			slog.String("job", id.String()),
			slog.Int("worker", int(w.index)),
		)
	}

	s.freeMu.Lock()
	s.table.Release(idx)
	s.freeMu.Unlock()
}

// IsFinished reports whether id no longer names a live job: it completed
// (and its slot may since have been reused) or it never existed.
func (s *Scheduler) IsFinished(id JobID) bool {
	slot := s.slotOf(id)
	return slot == nil || slot.loadID() != id
}

// State returns the lifecycle state of id.
func (s *Scheduler) State(id JobID) JobState {
	slot := s.slotOf(id)
	if slot == nil || slot.loadID() != id {
		return Finished
	}
	return JobState(slot.state.Load())
}

// Wait returns once id has finished or the scheduler is stopping. While
// waiting, the caller runs ready jobs itself as worker 0, so any job body
// may execute on the calling goroutine.
func (s *Scheduler) Wait(id JobID) {
	s.wait(s.external, id)
}

func (s *Scheduler) wait(w *Worker, id JobID) {
	for !s.IsFinished(id) && !s.stopping.Load() {
		if idx, ok := s.tryPop(); ok {
			s.execute(w, idx)
			continue
		}
		runtime.Gosched()
	}
}

// RunOne runs a single ready job on the calling goroutine as worker 0. It
// reports false when nothing was ready.
func (s *Scheduler) RunOne() bool {
	idx, ok := s.tryPop()
	if !ok {
		return false
	}
	s.execute(s.external, idx)
	return true
}

// Stop wakes and joins every worker. Queued jobs are not drained. Stop is
// safe to call more than once; the scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("scheduler stopping", slog.Int("workers", len(s.workers)))

		// Flip under the queue lock so no worker can miss the wakeup
		// between its check and cond.Wait.
		s.queueMu.Lock()
		s.stopping.Store(true)
		s.queueMu.Unlock()
		s.cond.Broadcast()
		s.wg.Wait()

		s.logger.Info("scheduler stopped",
			slog.Uint64("submitted", s.submitted.Load()),
			slog.Uint64("completed", s.completed.Load()),
		)
	})
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool { return s.stopping.Load() }

// Workers returns the number of worker goroutines.
func (s *Scheduler) Workers() int { return len(s.workers) }

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.freeMu.Lock()
	inFlight := s.table.InUse()
	s.freeMu.Unlock()
	s.queueMu.Lock()
	queued := s.ready.Len()
	s.queueMu.Unlock()
	return Stats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		InFlight:  inFlight,
		Queued:    queued,
		Workers:   len(s.workers),
		Capacity:  s.cfg.MaxJobs,
	}
}
