// Package resource provides admission control for the database's background
// work: a memory budget shared by block caches, a worker budget bounding how
// many collections snapshot or compact at once, and an IO budget pacing
// snapshot traffic against the blob store.
//
// One Controller is shared database-wide. All budgets are optional; a zero
// limit means the corresponding resource is only tracked, not enforced.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the resource budgets of one Controller.
type Config struct {
	// MemoryLimitBytes caps the memory handed out to block caches. Zero
	// means usage is tracked but never refused.
	MemoryLimitBytes int64

	// MaxBackgroundWorkers bounds how many background jobs (collection
	// snapshots, compactions) run concurrently. Zero means 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec paces snapshot reads and writes against the blob
	// store. Zero means unlimited.
	IOLimitBytesPerSec int64
}

// Controller arbitrates the shared memory, worker and IO budgets. The zero
// value is not usable; construct one with NewController. A nil *Controller is
// valid everywhere and enforces nothing, so callers can thread an optional
// controller without nil checks.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil when only tracking
	memUsed atomic.Int64

	workers *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller enforcing the given budgets.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves bytes from the memory budget, blocking until the
// reservation fits or ctx is done.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)

	return nil
}

// TryAcquireMemory reserves bytes without blocking. Block caches use this so
// a full budget degrades to a cache miss instead of a stalled read.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}

	c.memUsed.Add(bytes)

	return true
}

// ReleaseMemory returns bytes to the memory budget.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}

	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the bytes currently reserved from the memory budget.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}

	return c.memUsed.Load()
}

// AcquireBackground claims a background worker slot, blocking while all slots
// are busy. Save claims one slot per collection it snapshots in parallel.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}

	return c.workers.Acquire(ctx, 1)
}

// TryAcquireBackground claims a worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}

	return c.workers.TryAcquire(1)
}

// ReleaseBackground returns a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}

	c.workers.Release(1)
}

// AcquireIO waits until the IO budget admits the given number of bytes.
// Requests above the limiter's burst are paced in burst-sized chunks;
// rate.Limiter.WaitN would reject them outright.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}

	burst := c.ioLimiter.Burst()
	if burst <= 0 {
		return c.ioLimiter.WaitN(ctx, bytes)
	}
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}

	return nil
}

// ioBurst reports the IO limiter's burst size, or 0 when unlimited.
func (c *Controller) ioBurst() int {
	if c == nil || c.ioLimiter == nil {
		return 0
	}

	return c.ioLimiter.Burst()
}
