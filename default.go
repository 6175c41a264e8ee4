package jobgraph

import (
	"sync"
	"sync/atomic"
)

var (
	defaultOnce  sync.Once
	defaultSched atomic.Pointer[Scheduler]
)

// Default returns the process-wide scheduler, creating it from
// DefaultConfig on first use. Prefer passing a *Scheduler to the code that
// needs one; Default exists for the program's entry point.
//
// Call StopDefault once at shutdown, after the last Submit.
func Default() *Scheduler {
	defaultOnce.Do(func() {
		s, err := NewWithConfig(DefaultConfig())
		if err != nil {
			panic(err)
		}
		defaultSched.Store(s)
	})
	return defaultSched.Load()
}

// StopDefault stops the process-wide scheduler if it was ever created.
func StopDefault() {
	if s := defaultSched.Load(); s != nil {
		s.Stop()
	}
}
