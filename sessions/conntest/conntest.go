// Package conntest provides an in-memory sessions.Conn for tests: it records
// delivered frames and close reasons, and offers small helpers for waiting on
// (or asserting the absence of) specific events.
package conntest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/collabhq/realtime-go/sessions"
)

// Frame is one event delivered to the connection.
type Frame struct {
	Event   string
	Payload []byte
}

// Conn is a fake transport connection. All methods are safe for concurrent
// use.
type Conn struct {
	id     string
	frames chan Frame

	mu          sync.Mutex
	closed      bool
	closeReason string
	closedCh    chan struct{}
}

func New(id string) *Conn {
	return &Conn{
		id:       id,
		frames:   make(chan Frame, 64),
		closedCh: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(ctx context.Context, event string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("conntest: send on closed connection")
	}
	f := Frame{Event: event, Payload: append([]byte(nil), payload...)}
	select {
	case c.frames <- f:
		return nil
	default:
		return errors.New("conntest: frame buffer full")
	}
}

func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeReason = reason
		close(c.closedCh)
	}
	return nil
}

// Closed is closed once the connection has been closed.
func (c *Conn) Closed() <-chan struct{} { return c.closedCh }

// CloseReason returns the reason passed to the first Close call.
func (c *Conn) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// Frames exposes the raw delivery channel.
func (c *Conn) Frames() <-chan Frame { return c.frames }

// WaitFrame consumes frames until one matching event arrives, failing the
// test after timeout. Non-matching frames are discarded.
func (c *Conn) WaitFrame(t *testing.T, event string, timeout time.Duration) Frame {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case f := <-c.frames:
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("conn %s: no %q frame within %v", c.id, event, timeout)
			return Frame{}
		}
	}
}

// ExpectNone fails the test if a frame with the given event arrives within
// the wait window. Other events are discarded.
func (c *Conn) ExpectNone(t *testing.T, event string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case f := <-c.frames:
			if f.Event == event {
				t.Fatalf("conn %s: unexpected %q frame", c.id, event)
			}
		case <-deadline:
			return
		}
	}
}

var _ sessions.Conn = (*Conn)(nil)
