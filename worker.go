package jobgraph

import "log/slog"

// Worker identifies the goroutine executing a job. Each worker goroutine
// has a fixed index in 1..Workers(); goroutines running jobs from inside
// Scheduler.Wait or RunOne share index 0. Collaborators use the index to
// pick per-worker scratch state.
type Worker struct {
	index uint8
	sched *Scheduler
}

// Index returns the worker's small integer identity.
func (w *Worker) Index() uint8 { return w.index }

// Scheduler returns the scheduler the worker belongs to.
func (w *Worker) Scheduler() *Scheduler { return w.sched }

// Submit is Scheduler.Submit, for use from job bodies.
func (w *Worker) Submit(job Job) JobID { return w.sched.Submit(job) }

// Wait is Scheduler.Wait keeping this worker's identity for any job it
// runs while waiting.
func (w *Worker) Wait(id JobID) { w.sched.wait(w, id) }

// run is the loop of a worker goroutine: take the highest priority ready
// job, execute it, repeat until the scheduler stops.
func (w *Worker) run() {
	defer w.sched.wg.Done()
	w.sched.logger.Debug("worker starting", slog.Int("worker", int(w.index)))

	for {
		idx, ok := w.sched.nextJob()
		if !ok {
			w.sched.logger.Debug("worker exiting", slog.Int("worker", int(w.index)))
			return
		}
		w.sched.execute(w, idx)
	}
}
