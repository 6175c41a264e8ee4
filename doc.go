// Package jobgraph is a fixed-capacity job graph scheduler for frame-based
// workloads.
//
// A job is a function plus opaque data. Jobs can be ordered after another
// job (Dependency) and can hold a parent open until they complete (Parent),
// which gives fan-out/join. A parent must still be live when its children
// are submitted, so children are usually submitted by the parent's body:
//
//	s, _ := jobgraph.New(jobgraph.WithMaxJobs(1024))
//	defer s.Stop()
//
//	root := s.Go(func(w *jobgraph.Worker, id jobgraph.JobID, _ any) {
//	    for _, tile := range tiles {
//	        w.Submit(jobgraph.Job{Func: cull, Data: tile, Parent: id})
//	    }
//	}, nil)
//	present := s.Submit(jobgraph.Job{Func: draw, Dependency: root, Priority: 10})
//	s.Wait(present)
//
// Handles are versioned: once a job completes its JobID reads as finished
// forever, even after the slot is reused.
//
// Wait never sleeps on a condition variable. The waiting goroutine runs
// ready jobs itself, so it must be a goroutine that is allowed to execute
// any job body. There is no cancellation; every submitted job runs.
//
// The job table, worker count and ready heap are sized once at New.
// Running out of job slots, submitting after Stop and naming a finished
// parent are programmer errors and panic.
package jobgraph
