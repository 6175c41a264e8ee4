package jobgraph

import "errors"

var (
	// Fatal scheduler conditions. These are raised as panics wrapping the
	// sentinel, so a recovered value can be matched with errors.Is.
	ErrCapacityExceeded = errors.New("jobgraph: job table exhausted")
	ErrStopped          = errors.New("jobgraph: scheduler stopped")
	ErrParentFinished   = errors.New("jobgraph: parent job already finished")

	// Configuration errors.
	ErrInvalidConfig = errors.New("jobgraph: invalid config")

	// Journal errors.
	ErrRecordNotFound = errors.New("jobgraph: journal record not found")
)
