package jobgraph

import (
	"fmt"
	"log/slog"
)

// MaxWorkerLimit bounds MaxWorkers so every worker index fits in a byte,
// with index 0 kept for external callers of Wait.
const MaxWorkerLimit = 254

// Config holds the scheduler's fixed capacities.
type Config struct {
	// MaxJobs is the number of job slots. Submitting while every slot is
	// in flight is fatal.
	MaxJobs int

	// MinWorkers and MaxWorkers clamp the worker count derived from
	// GOMAXPROCS. MaxWorkers of zero runs no worker goroutines; jobs then
	// only run inside Wait.
	MinWorkers int
	MaxWorkers int

	// Logger receives lifecycle and diagnostic output. Nil is silent.
	Logger *slog.Logger

	// Observer is notified as jobs move through the scheduler.
	Observer Observer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxJobs:    4096,
		MinWorkers: 1,
		MaxWorkers: 16,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.MaxJobs <= 0:
		return fmt.Errorf("%w: MaxJobs must be positive, got %d", ErrInvalidConfig, c.MaxJobs)
	case c.MaxJobs > 1<<31-1:
		return fmt.Errorf("%w: MaxJobs %d does not fit a slot index", ErrInvalidConfig, c.MaxJobs)
	case c.MinWorkers < 0:
		return fmt.Errorf("%w: MinWorkers must not be negative, got %d", ErrInvalidConfig, c.MinWorkers)
	case c.MaxWorkers < c.MinWorkers:
		return fmt.Errorf("%w: MaxWorkers %d below MinWorkers %d", ErrInvalidConfig, c.MaxWorkers, c.MinWorkers)
	case c.MaxWorkers > MaxWorkerLimit:
		return fmt.Errorf("%w: MaxWorkers %d above limit %d", ErrInvalidConfig, c.MaxWorkers, MaxWorkerLimit)
	}
	return nil
}

// workerCount clamps procs into [MinWorkers, MaxWorkers].
func (c Config) workerCount(procs int) int {
	return max(c.MinWorkers, min(procs, c.MaxWorkers))
}

// Option configures a Scheduler.
type Option func(*Config)

// WithMaxJobs sets the job table capacity.
func WithMaxJobs(n int) Option {
	return func(c *Config) { c.MaxJobs = n }
}

// WithWorkers sets the worker count bounds.
func WithWorkers(minWorkers, maxWorkers int) Option {
	return func(c *Config) {
		c.MinWorkers = minWorkers
		c.MaxWorkers = maxWorkers
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithObserver sets the job observer.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}
