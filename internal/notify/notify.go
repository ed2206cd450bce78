// Package notify carries user-facing success and error messages from the editor.
package notify

import (
	"log"
	"sync"
	"time"
)

// Level of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier receives fire-and-forget user notices.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Notice is a recorded message.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Log writes notices to the standard logger.
type Log struct {
	Prefix string
}

func (l Log) Success(msg string) { log.Printf("%snotice: %s", l.Prefix, msg) }
func (l Log) Error(msg string)   { log.Printf("%serror notice: %s", l.Prefix, msg) }

// Feed keeps the most recent notices in a bounded ring.
type Feed struct {
	mu      sync.Mutex
	max     int
	notices []Notice
	now     func() time.Time
}

// NewFeed returns a feed that keeps at most max notices.
func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 20
	}
	return &Feed{max: max, now: time.Now}
}

func (f *Feed) Success(msg string) { f.add(LevelSuccess, msg) }
func (f *Feed) Error(msg string)   { f.add(LevelError, msg) }

func (f *Feed) add(level Level, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, Notice{Level: level, Message: msg, At: f.now()})
	if over := len(f.notices) - f.max; over > 0 {
		f.notices = append([]Notice(nil), f.notices[over:]...)
	}
}

// Recent returns a copy of the buffered notices, oldest first.
func (f *Feed) Recent() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notice(nil), f.notices...)
}

// Drain returns the buffered notices and clears the feed.
func (f *Feed) Drain() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.notices
	f.notices = nil
	return out
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Success(msg string) {
	for _, n := range m {
		n.Success(msg)
	}
}

func (m Multi) Error(msg string) {
	for _, n := range m {
		n.Error(msg)
	}
}
