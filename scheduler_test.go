package jobgraph

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err, "failed to create scheduler")
	t.Cleanup(s.Stop)
	return s
}

// recoverError runs fn and returns the error it panicked with.
func recoverError(fn func()) (err error) {
	defer func() {
		r := recover()
		if e, ok := r.(error); ok {
			err = e
		} else if r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for jobs")
	}
}

// recorder collects labels in execution order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) job(label string) JobFunc {
	return func(*Worker, JobID, any) {
		r.mu.Lock()
		r.order = append(r.order, label)
		r.mu.Unlock()
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestSubmit_RunsJobWithData(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(2, 2))

	var got atomic.Value
	id := s.Go(func(_ *Worker, _ JobID, data any) {
		got.Store(data)
	}, "payload")
	s.Wait(id)

	assert.True(t, s.IsFinished(id))
	assert.Equal(t, "payload", got.Load())
}

func TestSubmit_PassesOwnID(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(0, 0))

	var seen JobID
	id := s.Go(func(_ *Worker, self JobID, _ any) { seen = self }, nil)
	s.Wait(id)
	assert.Equal(t, id, seen)
}

func TestIsFinished_StaleHandleAfterSlotReuse(t *testing.T) {
	s := newTestScheduler(t, WithMaxJobs(1), WithWorkers(0, 0))

	first := s.Go(nil, nil)
	assert.False(t, s.IsFinished(first))
	s.Wait(first)

	second := s.Go(nil, nil)
	assert.Equal(t, first.Slot(), second.Slot(), "single slot must be reused")
	assert.NotEqual(t, first, second)
	assert.Equal(t, first.Generation()+1, second.Generation())
	assert.True(t, s.IsFinished(first), "stale handle must read as finished")
	assert.False(t, s.IsFinished(second))

	s.Wait(second)
	assert.True(t, s.IsFinished(second))
}

func TestIsFinished_NullAndUnknownHandles(t *testing.T) {
	s := newTestScheduler(t, WithMaxJobs(8), WithWorkers(0, 0))
	assert.True(t, s.IsFinished(NullJob))
	assert.True(t, s.IsFinished(makeJobID(1, 999)))
	assert.Equal(t, Finished, s.State(NullJob))
}

func TestFanOutJoin_ParentWaitsForChildren(t *testing.T) {
	const children = 3
	s := newTestScheduler(t, WithWorkers(4, 4))

	gate := make(chan struct{})
	parentDone := make(chan struct{})
	var ran atomic.Int32

	parent := s.Go(func(w *Worker, id JobID, _ any) {
		for range children {
			w.Submit(Job{
				Func: func(*Worker, JobID, any) {
					<-gate
					ran.Add(1)
				},
				Parent: id,
			})
		}
		close(parentDone)
	}, nil)

	select {
	case <-parentDone:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for parent body")
	}
	assert.False(t, s.IsFinished(parent), "parent finished before its children")
	assert.Equal(t, Running, s.State(parent))

	close(gate)
	require.Eventually(t, func() bool { return s.IsFinished(parent) }, 5*time.Second, time.Millisecond)
	assert.Equal(t, int32(children), ran.Load())
}

func TestFanOutJoin_NestedChildren(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(0, 0))

	var leaves atomic.Int32
	root := s.Go(func(w *Worker, id JobID, _ any) {
		for range 4 {
			w.Submit(Job{
				Func: func(w *Worker, mid JobID, _ any) {
					for range 4 {
						w.Submit(Job{
							Func:   func(*Worker, JobID, any) { leaves.Add(1) },
							Parent: mid,
						})
					}
				},
				Parent: id,
			})
		}
	}, nil)

	s.Wait(root)
	assert.Equal(t, int32(16), leaves.Load())
	assert.Equal(t, 0, s.Stats().InFlight)
}

func TestFanOutJoin_DeepParentChain(t *testing.T) {
	const depth = 2000
	s := newTestScheduler(t, WithMaxJobs(depth+1), WithWorkers(2, 2))

	var visited atomic.Int32
	var spawn JobFunc
	spawn = func(w *Worker, id JobID, data any) {
		visited.Add(1)
		if n := data.(int); n > 1 {
			w.Submit(Job{Func: spawn, Data: n - 1, Parent: id})
		}
	}
	root := s.Submit(Job{Func: spawn, Data: depth})
	s.Wait(root)

	assert.Equal(t, int32(depth), visited.Load())
	// The root's slot is released just after its handle flips, possibly on
	// a worker.
	require.Eventually(t, func() bool { return s.Stats().InFlight == 0 }, 5*time.Second, time.Millisecond)
}

func TestDependency_RunsAfterDependencyReturns(t *testing.T) {
	const pairs = 200
	s := newTestScheduler(t, WithWorkers(4, 4))

	var violations atomic.Int32
	ids := make([]JobID, 0, pairs)
	for range pairs {
		var written atomic.Bool
		a := s.Go(func(*Worker, JobID, any) {
			time.Sleep(10 * time.Microsecond)
			written.Store(true)
		}, nil)
		b := s.Submit(Job{
			Func: func(*Worker, JobID, any) {
				if !written.Load() {
					violations.Add(1)
				}
			},
			Dependency: a,
		})
		ids = append(ids, b)
	}
	for _, id := range ids {
		s.Wait(id)
	}
	assert.Zero(t, violations.Load())
}

func TestDependency_PendingUntilDependencyCompletes(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(0, 0))
	rec := &recorder{}

	a := s.Go(rec.job("a"), nil)
	b := s.Submit(Job{Func: rec.job("b"), Dependency: a, Priority: 100})
	c := s.Submit(Job{Func: rec.job("c"), Dependency: a})

	assert.Equal(t, Queued, s.State(a))
	assert.Equal(t, Pending, s.State(b))
	assert.Equal(t, Pending, s.State(c))
	assert.Equal(t, 1, s.Stats().Queued)

	require.True(t, s.RunOne())
	assert.Equal(t, Queued, s.State(b))
	assert.Equal(t, Queued, s.State(c))

	s.Wait(b)
	s.Wait(c)
	assert.Equal(t, []string{"a", "b", "c"}, rec.get())
}

func TestDependency_FinishedDependencyQueuesImmediately(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(0, 0))

	a := s.Go(nil, nil)
	s.Wait(a)
	b := s.Submit(Job{Dependency: a})
	assert.Equal(t, Queued, s.State(b))
	s.Wait(b)
}

func TestDependency_ChainOfDependents(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(3, 3))
	rec := &recorder{}

	prev := s.Go(rec.job("0"), nil)
	for i := 1; i < 50; i++ {
		prev = s.Submit(Job{Func: rec.job(fmt.Sprint(i)), Dependency: prev})
	}
	s.Wait(prev)

	order := rec.get()
	require.Len(t, order, 50)
	for i, label := range order {
		assert.Equal(t, fmt.Sprint(i), label)
	}
}

func TestJob_ParentAndDependencyTogether(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(0, 0))
	rec := &recorder{}

	dep := s.Go(rec.job("dep"), nil)
	parent := s.Submit(Job{
		Func: func(w *Worker, id JobID, _ any) {
			rec.job("parent")(w, id, nil)
			w.Submit(Job{Func: rec.job("child"), Parent: id, Dependency: dep})
		},
		Priority: 10,
	})

	require.True(t, s.RunOne(), "parent runs first on priority")
	assert.False(t, s.IsFinished(parent), "child is pending on dep")

	s.Wait(parent)
	assert.True(t, s.IsFinished(dep))
	assert.Equal(t, []string{"parent", "dep", "child"}, rec.get())
}

func TestPriority_HeapOrderWithoutWorkers(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(0, 0))
	rec := &recorder{}

	for _, p := range []uint32{1, 5, 3} {
		s.Submit(Job{Func: rec.job(fmt.Sprint(p)), Priority: p})
	}
	for s.RunOne() {
	}
	assert.Equal(t, []string{"5", "3", "1"}, rec.get())
}

func TestPriority_BlockedWorkerDrainsHighestFirst(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(1, 1))
	rec := &recorder{}

	gate := make(chan struct{})
	started := make(chan struct{})
	s.Go(func(*Worker, JobID, any) {
		close(started)
		<-gate
	}, nil)
	<-started

	var wg sync.WaitGroup
	for _, p := range []uint32{1, 5, 3} {
		wg.Add(1)
		label := rec.job(fmt.Sprint(p))
		s.Submit(Job{
			Func: func(w *Worker, id JobID, data any) {
				defer wg.Done()
				label(w, id, data)
			},
			Priority: p,
		})
	}
	close(gate)
	waitOrFail(t, &wg)

	assert.Equal(t, []string{"5", "3", "1"}, rec.get())
}

func TestSubmit_CapacityExceededPanics(t *testing.T) {
	s := newTestScheduler(t, WithMaxJobs(2), WithWorkers(0, 0))
	s.Go(nil, nil)
	s.Go(nil, nil)

	err := recoverError(func() { s.Go(nil, nil) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	// Draining frees the slots again.
	for s.RunOne() {
	}
	assert.NotPanics(t, func() { s.Go(nil, nil) })
}

func TestSubmit_AfterStopPanics(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(1, 1))
	s.Stop()
	assert.True(t, s.Stopped())

	err := recoverError(func() { s.Go(nil, nil) })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSubmit_FinishedParentPanics(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(0, 0))
	p := s.Go(nil, nil)
	s.Wait(p)

	err := recoverError(func() { s.Submit(Job{Parent: p}) })
	assert.ErrorIs(t, err, ErrParentFinished)
}

// childOnFinish submits a child of the job it sees finishing, at the point
// where the parent's handle is still current but its open count is zero.
type childOnFinish struct {
	s      *Scheduler
	target JobID
	err    error
}

func (o *childOnFinish) JobQueued(JobID, uint32) {}

func (o *childOnFinish) JobStarted(*Worker, JobID) {}

func (o *childOnFinish) JobFinished(_ *Worker, id JobID, _ JobID, _ uint32) {
	if id != o.target {
		return
	}
	o.err = recoverError(func() { o.s.Submit(Job{Parent: id}) })
}

func TestSubmit_CompletingParentPanics(t *testing.T) {
	obs := &childOnFinish{}
	s := newTestScheduler(t, WithWorkers(0, 0), WithObserver(obs))
	obs.s = s

	p := s.Submit(Job{Priority: 1})
	obs.target = p
	s.Wait(p)

	require.True(t, s.IsFinished(p))
	assert.ErrorIs(t, obs.err, ErrParentFinished)
}

func TestWait_ReturnsWhenStopping(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(1, 1))

	gate := make(chan struct{})
	started := make(chan struct{})
	blocker := s.Go(func(*Worker, JobID, any) {
		close(started)
		<-gate
	}, nil)
	<-started
	dependent := s.Submit(Job{Dependency: blocker})

	waited := make(chan struct{})
	go func() {
		s.Wait(dependent)
		close(waited)
	}()
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatalf("Wait did not return after Stop")
	}
	assert.False(t, s.IsFinished(dependent))

	close(gate)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not join workers")
	}
}

func TestWorker_NestedWaitInsideJob(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(1, 1))

	var innerRan atomic.Bool
	outer := s.Go(func(w *Worker, _ JobID, _ any) {
		inner := w.Submit(Job{Func: func(*Worker, JobID, any) { innerRan.Store(true) }})
		w.Wait(inner)
		assert.True(t, innerRan.Load())
	}, nil)
	s.Wait(outer)
	assert.True(t, innerRan.Load())
}

func TestWorker_Indices(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(3, 3))
	require.Equal(t, 3, s.Workers())

	var mu sync.Mutex
	seen := make(map[uint8]bool)
	root := s.Go(func(w *Worker, id JobID, _ any) {
		for range 64 {
			w.Submit(Job{
				Func: func(w *Worker, _ JobID, _ any) {
					assert.Same(t, s, w.Scheduler())
					mu.Lock()
					seen[w.Index()] = true
					mu.Unlock()
				},
				Parent: id,
			})
		}
	}, nil)
	s.Wait(root)

	mu.Lock()
	defer mu.Unlock()
	for idx := range seen {
		assert.LessOrEqual(t, idx, uint8(3))
	}
}

func TestScheduler_Stress(t *testing.T) {
	const jobs = 2000
	s := newTestScheduler(t, WithMaxJobs(jobs+1), WithWorkers(4, 8))

	var ran atomic.Int32
	body := func(*Worker, JobID, any) { ran.Add(1) }
	root := s.Go(func(w *Worker, id JobID, _ any) {
		prev := NullJob
		for i := range jobs {
			job := Job{Func: body, Parent: id, Priority: uint32(i % 7)}
			if i%3 == 0 {
				job.Dependency = prev
			}
			prev = w.Submit(job)
		}
	}, nil)
	s.Wait(root)

	assert.Equal(t, int32(jobs), ran.Load())
	require.Eventually(t, func() bool { return s.Stats().InFlight == 0 }, 5*time.Second, time.Millisecond)
	st := s.Stats()
	assert.Equal(t, uint64(jobs+1), st.Submitted)
	assert.Equal(t, uint64(jobs+1), st.Completed)
	assert.Equal(t, 0, st.Queued)
}

type countingObserver struct {
	queued, started, finished atomic.Int32
}

func (o *countingObserver) JobQueued(JobID, uint32) { o.queued.Add(1) }

func (o *countingObserver) JobStarted(*Worker, JobID) { o.started.Add(1) }

func (o *countingObserver) JobFinished(*Worker, JobID, JobID, uint32) { o.finished.Add(1) }

func TestObserver_SeesEveryTransition(t *testing.T) {
	obs := &countingObserver{}
	s := newTestScheduler(t, WithWorkers(0, 0), WithObserver(obs))

	a := s.Go(nil, nil)
	b := s.Submit(Job{Dependency: a})
	s.Wait(b)

	assert.Equal(t, int32(2), obs.queued.Load())
	assert.Equal(t, int32(2), obs.started.Load())
	assert.Equal(t, int32(2), obs.finished.Load())
}

func TestStop_Idempotent(t *testing.T) {
	s := newTestScheduler(t, WithWorkers(2, 2))
	s.Stop()
	s.Stop()
	assert.True(t, s.Stopped())
}
