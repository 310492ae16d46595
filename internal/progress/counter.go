package progress

import "sync"

// Counter accumulates per-file byte deltas into one whole-transfer count
// against a total fixed up front. Reported values never decrease, never
// exceed the total, and the total itself is reported exactly once.
type Counter struct {
	total    int64
	onUpdate func(done, total int64)

	mu       sync.Mutex
	done     int64
	reported int64
	finished bool
}

// NewCounter creates a counter for total bytes. onUpdate is called with the
// clamped cumulative value whenever it changes.
func NewCounter(total int64, onUpdate func(done, total int64)) *Counter {
	return &Counter{total: total, onUpdate: onUpdate, reported: -1}
}

// Add records delta more bytes. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done += delta
	c.report(c.done)
}

// Done returns the raw accumulated byte count.
func (c *Counter) Done() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Finish reports the total if it has not been reported yet. Files that
// shrank after enumeration would otherwise leave the count short.
func (c *Counter) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	c.report(c.total)
}

// report must be called with mu held.
func (c *Counter) report(v int64) {
	if v > c.total {
		v = c.total
	}
	if v <= c.reported {
		return
	}
	c.reported = v
	if c.onUpdate != nil {
		c.onUpdate(v, c.total)
	}
}
