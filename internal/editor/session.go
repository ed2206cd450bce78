// Package editor runs layout editing sessions: one store, history ledger and
// debounced writer per CMS entry.
package editor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/tessera/internal/cms"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/layout"
	"github.com/hpungsan/tessera/internal/notify"
	"github.com/hpungsan/tessera/internal/persist"
)

// Options configures sessions.
type Options struct {
	LayoutField string
	Locale      string
	SaveDelay   time.Duration

	// WriteTimeout bounds each layout write. Zero keeps the saver default.
	WriteTimeout time.Duration

	// Notifier receives every notice in addition to the session's feed.
	Notifier notify.Notifier

	// OnSaved runs after each successful layout write.
	OnSaved func(ctx context.Context, entryID string)

	// FeedSize bounds the per-session notice feed.
	FeedSize int
}

func (o Options) withDefaults() Options {
	if o.LayoutField == "" {
		o.LayoutField = "layoutConfig"
	}
	if o.Locale == "" {
		o.Locale = "en-US"
	}
	if o.SaveDelay <= 0 {
		o.SaveDelay = persist.DefaultDelay
	}
	return o
}

// Session edits the layout field of one entry.
type Session struct {
	entryID  string
	entries  cms.EntryStore
	opts     Options
	store    *layout.Store
	saver    *persist.Saver
	feed     *notify.Feed
	notifier notify.Notifier

	loadMu sync.Mutex

	mu     sync.Mutex
	entry  *cms.Entry
	loaded bool
	queued layout.List // last list handed to the saver, or the loaded baseline
	seen   uint64      // Seq of the newest state observed

	unsubscribe func()
}

// NewSession creates an unloaded session. Call Load before editing.
func NewSession(entryID string, entries cms.EntryStore, opts Options) *Session {
	opts = opts.withDefaults()

	s := &Session{
		entryID: entryID,
		entries: entries,
		opts:    opts,
		store:   layout.NewStore(layout.HistoryRecorder()),
		feed:    notify.NewFeed(opts.FeedSize),
	}
	s.notifier = s.feed
	if opts.Notifier != nil {
		s.notifier = notify.Multi{s.feed, opts.Notifier}
	}
	var saverOpts []persist.Option
	if opts.WriteTimeout > 0 {
		saverOpts = append(saverOpts, persist.WithWriteTimeout(opts.WriteTimeout))
	}
	s.saver = persist.NewSaver(opts.SaveDelay, s.write, s.notifier, saverOpts...)
	s.unsubscribe = s.store.Subscribe(s.onChange)
	return s
}

// EntryID returns the entry being edited.
func (s *Session) EntryID() string { return s.entryID }

// Load reads the entry and seeds the store with its layout. The baseline is
// recorded once into the history so it is reachable by undo. Loading an
// already loaded session is a no-op.
func (s *Session) Load(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if s.Loaded() {
		return nil
	}

	entry, err := s.entries.GetEntry(ctx, s.entryID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrInvalidRequest) {
			return err
		}
		return errors.NewLoadFailed(s.entryID, err)
	}

	list, err := entry.Layout(s.opts.LayoutField, s.opts.Locale)
	if err != nil {
		return errors.NewLoadFailed(s.entryID, err)
	}

	if _, err := s.dispatch(layout.SetInitial{Components: list}); err != nil {
		return err
	}
	if _, err := s.dispatch(layout.RecordHistory{}); err != nil {
		return err
	}

	s.mu.Lock()
	s.entry = entry
	s.queued = list.Clone()
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Loaded reports whether the baseline has been read.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Version returns the entry version the next write will carry.
func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return 0
	}
	return s.entry.Version
}

// AddComponent creates a new CMS entry of contentType and appends a component
// pointing at it.
func (s *Session) AddComponent(ctx context.Context, contentType string) (layout.Component, error) {
	if !s.Loaded() {
		return layout.Component{}, errors.NewNotLoaded(s.entryID)
	}
	if contentType == "" {
		return layout.Component{}, errors.NewInvalidRequest("content type is required")
	}

	fields := cms.Fields{}
	if err := fields.Set(cms.FieldInternalName, s.opts.Locale, "New "+contentType); err != nil {
		return layout.Component{}, errors.NewInternal(err)
	}

	created, err := s.entries.CreateEntry(ctx, contentType, fields)
	if err != nil {
		log.Printf("create %s entry: %v", contentType, err)
		s.notifier.Error(fmt.Sprintf("Error adding %s component.", contentType))
		if errors.As(err) != nil {
			return layout.Component{}, err
		}
		return layout.Component{}, errors.NewSaveFailed(s.entryID, err)
	}

	c := layout.Component{
		ID:        uuid.NewString(),
		Type:      contentType,
		ContentID: created.ID,
	}
	if _, err := s.dispatch(layout.AddComponent{Component: c}); err != nil {
		return layout.Component{}, err
	}

	s.notifier.Success(fmt.Sprintf("New %s component added.", contentType))
	return c, nil
}

// Reorder moves the component at source to destination. A nil destination
// is a drop outside the list and changes nothing.
func (s *Session) Reorder(source int, destination *int) (layout.Result, error) {
	if !s.Loaded() {
		return layout.Result{}, errors.NewNotLoaded(s.entryID)
	}
	return s.dispatch(layout.ReorderComponents{Source: source, Destination: destination})
}

// Undo steps back one snapshot.
func (s *Session) Undo() (layout.Result, error) {
	if !s.Loaded() {
		return layout.Result{}, errors.NewNotLoaded(s.entryID)
	}
	return s.dispatch(layout.Undo{})
}

// Redo steps forward one snapshot.
func (s *Session) Redo() (layout.Result, error) {
	if !s.Loaded() {
		return layout.Result{}, errors.NewNotLoaded(s.entryID)
	}
	return s.dispatch(layout.Redo{})
}

func (s *Session) dispatch(a layout.Action) (layout.Result, error) {
	res, err := s.store.Dispatch(a)
	if err != nil {
		log.Printf("layout %s on %s: %v", layout.ActionName(a), s.entryID, err)
	}
	return res, err
}

// State returns a copy of the live list and ledger.
func (s *Session) State() layout.State {
	return s.store.State()
}

// Notices returns recent notices without clearing them.
func (s *Session) Notices() []notify.Notice {
	return s.feed.Recent()
}

// DrainNotices returns and clears recent notices.
func (s *Session) DrainNotices() []notify.Notice {
	return s.feed.Drain()
}

// Pending reports whether a save is scheduled or running.
func (s *Session) Pending() bool {
	return s.saver.Pending()
}

// Flush writes any pending layout now.
func (s *Session) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Close stops the session. Unflushed edits are dropped.
func (s *Session) Close() {
	s.unsubscribe()
	s.saver.Close()
}

// onChange schedules a save when the live list moved away from what was last queued.
// States older than one already seen are dropped so the saver only moves forward.
func (s *Session) onChange(state layout.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Seq <= s.seen {
		return
	}
	s.seen = state.Seq

	if !s.loaded || len(state.Present) == 0 {
		return
	}
	if state.Components.Equal(s.queued) {
		return
	}
	s.queued = state.Components.Clone()
	s.saver.Trigger(state.Components)
}

func (s *Session) write(ctx context.Context, list layout.List) error {
	s.mu.Lock()
	if s.entry == nil {
		s.mu.Unlock()
		return errors.NewNotLoaded(s.entryID)
	}
	e := s.entry.Clone()
	s.mu.Unlock()

	if err := e.SetLayout(s.opts.LayoutField, s.opts.Locale, list); err != nil {
		return errors.NewSaveFailed(s.entryID, err)
	}

	updated, err := s.entries.UpdateEntry(ctx, e)
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return err
		}
		return errors.NewSaveFailed(s.entryID, err)
	}

	s.mu.Lock()
	s.entry = updated
	s.mu.Unlock()

	if s.opts.OnSaved != nil {
		s.opts.OnSaved(ctx, s.entryID)
	}
	return nil
}
