package ratelimit

import (
	"context"
	"sync"
	"time"
)

// slot tracks one origin's current window. resetAt is fixed when the window
// opens; denials never move it.
type slot struct {
	count   int
	resetAt time.Time
}

// Window is an in-process fixed-window limiter. Safe for concurrent use.
type Window struct {
	cfg Config

	mu    sync.Mutex
	slots map[string]*slot

	now func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewWindow creates a Window and starts a background sweep that drops
// expired origin counters. Call Close to stop the sweep.
func NewWindow(cfg Config) *Window {
	w := &Window{
		cfg:   cfg.withDefaults(),
		slots: make(map[string]*slot),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Admit implements Limiter.
func (w *Window) Admit(ctx context.Context, origin string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.slots[origin]
	if !ok || !now.Before(s.resetAt) {
		w.slots[origin] = &slot{count: 1, resetAt: now.Add(w.cfg.Window)}
		return true, nil
	}
	s.count++
	return s.count <= w.cfg.MaxAttempts, nil
}

// Close stops the background sweep. Admit keeps working afterwards; only
// garbage collection of idle origins stops.
func (w *Window) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

func (w *Window) run() {
	t := time.NewTicker(w.cfg.Window)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.sweep(w.now())
		}
	}
}

func (w *Window) sweep(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for origin, s := range w.slots {
		if !now.Before(s.resetAt) {
			delete(w.slots, origin)
		}
	}
}

var _ Limiter = (*Window)(nil)
