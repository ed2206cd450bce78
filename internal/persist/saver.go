// Package persist writes layout edits back to the CMS after a quiet period.
package persist

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hpungsan/tessera/internal/layout"
	"github.com/hpungsan/tessera/internal/notify"
)

// DefaultDelay is the quiet window before a write.
const DefaultDelay = time.Second

// WriteFunc persists a layout list.
type WriteFunc func(ctx context.Context, list layout.List) error

// Saver coalesces bursts of Trigger calls into one write after delay of inactivity.
// At most one write is in flight; a trigger that settles during a write is written
// after it completes. A write that has started is never cancelled.
type Saver struct {
	delay    time.Duration
	write    WriteFunc
	notifier notify.Notifier
	timeout  time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pending  layout.List
	dirty    bool // pending holds a list not yet handed to write
	inflight bool
	rerun    bool // timer fired while a write was in flight
	closed   bool
	idle     *sync.Cond
}

// Option configures a Saver.
type Option func(*Saver)

// WithWriteTimeout bounds each write. Zero means no bound.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Saver) { s.timeout = d }
}

// NewSaver creates a saver. A non-positive delay uses DefaultDelay.
func NewSaver(delay time.Duration, write WriteFunc, notifier notify.Notifier, opts ...Option) *Saver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	s := &Saver{
		delay:    delay,
		write:    write,
		notifier: notifier,
		timeout:  30 * time.Second,
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger records list as the latest state and restarts the quiet window.
func (s *Saver) Trigger(list layout.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.pending = list.Clone()
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

// Pending reports whether a write is scheduled or running.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty || s.inflight
}

// Flush cancels the quiet window and writes the pending list now, waiting for
// any in-flight write first. It returns the write error, or ctx's error if ctx
// ends while waiting. The pending list then stays queued.
func (s *Saver) Flush(ctx context.Context) error {
	// Wake the waiter below when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.idle.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for s.inflight {
		if err := ctx.Err(); err != nil {
			if s.dirty && !s.closed {
				s.rerun = true
			}
			s.mu.Unlock()
			return err
		}
		s.idle.Wait()
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	list := s.pending
	s.dirty = false
	s.inflight = true
	s.mu.Unlock()

	err := s.run(ctx, list)

	s.mu.Lock()
	s.inflight = false
	if s.rerun && s.dirty && !s.closed {
		// A window settled while we were writing; hand it back to the timer path.
		s.rerun = false
		s.timer = time.AfterFunc(0, s.fire)
	}
	s.idle.Broadcast()
	s.mu.Unlock()
	return err
}

// Close stops the timer and waits for an in-flight write. Unflushed edits are dropped.
func (s *Saver) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for s.inflight {
		s.idle.Wait()
	}
	s.dirty = false
}

// fire runs on the timer goroutine.
func (s *Saver) fire() {
	s.mu.Lock()
	if s.closed || !s.dirty {
		s.mu.Unlock()
		return
	}
	if s.inflight {
		s.rerun = true
		s.mu.Unlock()
		return
	}
	s.inflight = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		list := s.pending
		s.dirty = false
		s.rerun = false
		s.mu.Unlock()

		_ = s.run(context.Background(), list)

		s.mu.Lock()
		if !s.rerun || s.closed || !s.dirty {
			s.inflight = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *Saver) run(ctx context.Context, list layout.List) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.write(ctx, list); err != nil {
		log.Printf("layout save failed: %v", err)
		if s.notifier != nil {
			s.notifier.Error("Error saving layout.")
		}
		return err
	}
	if s.notifier != nil {
		s.notifier.Success("Layout saved!")
	}
	return nil
}
