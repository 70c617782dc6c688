// Package audittest provides an in-memory audit.Sink for asserting on the
// decisions a test provoked.
package audittest

import (
	"context"
	"sync"

	"github.com/collabhq/realtime-go/audit"
)

// Capture is an audit.Sink that retains every entry. Safe for concurrent
// use.
type Capture struct {
	mu      sync.Mutex
	entries []audit.Entry
}

// NewCapture creates an empty Capture.
func NewCapture() *Capture { return &Capture{} }

// Record implements audit.Sink.
func (c *Capture) Record(ctx context.Context, e audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// Entries returns a copy of everything recorded so far.
func (c *Capture) Entries() []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audit.Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// ByAction returns the recorded entries for one action, in order.
func (c *Capture) ByAction(a audit.Action) []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Entry
	for _, e := range c.entries {
		if e.Action == a {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent entry, if any.
func (c *Capture) Last() (audit.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return audit.Entry{}, false
	}
	return c.entries[len(c.entries)-1], true
}

var _ audit.Sink = (*Capture)(nil)
