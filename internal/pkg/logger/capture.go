package logger

import "sync"

// Capture collects every entry emitted while it is active, so a
// pipeline run can persist its own log stream alongside the run row.
type Capture struct {
	mu      sync.Mutex
	entries []Entry
	stopped bool
}

// StartCapture registers a new capture with the default logger.
// Callers must Stop it when the run finishes.
func StartCapture() *Capture {
	c := &Capture{}
	defaultLogger.addCapture(c)
	return c
}

func (c *Capture) append(e Entry) {
	c.mu.Lock()
	if !c.stopped {
		c.entries = append(c.entries, e)
	}
	c.mu.Unlock()
}

// Stop detaches the capture and returns everything collected, in order.
// Safe to call more than once.
func (c *Capture) Stop() []Entry {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
	}
	out := c.entries
	c.mu.Unlock()
	defaultLogger.removeCapture(c)
	return out
}
