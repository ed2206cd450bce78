package editor

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tessera/internal/cms"
	"github.com/hpungsan/tessera/internal/db"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/layout"
	"github.com/hpungsan/tessera/internal/notify"
)

// memStore is an in-memory EntryStore with version checks.
type memStore struct {
	mu        sync.Mutex
	entries   map[string]*cms.Entry
	nextID    int
	updates   []layout.List
	getErr    error
	createErr error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*cms.Entry{}}
}

func (m *memStore) put(t *testing.T, id string, list layout.List) {
	t.Helper()
	e := &cms.Entry{ID: id, ContentType: "landingPage", Version: 1, Fields: cms.Fields{}}
	if list != nil {
		require.NoError(t, e.SetLayout("layoutConfig", "en-US", list))
	}
	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()
}

func (m *memStore) GetEntry(_ context.Context, id string) (*cms.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[id]
	if !ok {
		return nil, errors.NewNotFound("entry", id)
	}
	return e.Clone(), nil
}

func (m *memStore) CreateEntry(_ context.Context, contentType string, fields cms.Fields) (*cms.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	e := &cms.Entry{ID: "new" + strconv.Itoa(m.nextID), ContentType: contentType, Version: 1, Fields: fields}
	m.entries[e.ID] = e
	return e.Clone(), nil
}

func (m *memStore) UpdateEntry(_ context.Context, e *cms.Entry) (*cms.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	cur, ok := m.entries[e.ID]
	if !ok {
		return nil, errors.NewNotFound("entry", e.ID)
	}
	if cur.Version != e.Version {
		return nil, errors.NewConflict(e.ID, e.Version)
	}
	next := e.Clone()
	next.Version++
	m.entries[e.ID] = next

	list, err := next.Layout("layoutConfig", "en-US")
	if err != nil {
		return nil, err
	}
	m.updates = append(m.updates, list)
	return next.Clone(), nil
}

func (m *memStore) writes() []layout.List {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]layout.List(nil), m.updates...)
}

func intPtr(i int) *int { return &i }

func comps(ids ...string) layout.List {
	l := layout.List{}
	for _, id := range ids {
		l = append(l, layout.Component{ID: id, Type: "heroBlock", ContentID: "c" + id})
	}
	return l
}

func loadedSession(t *testing.T, store cms.EntryStore, opts Options) *Session {
	t.Helper()
	if opts.SaveDelay == 0 {
		opts.SaveDelay = 10 * time.Millisecond
	}
	s := NewSession("page1", store, opts)
	t.Cleanup(s.Close)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestSession_LoadSeedsBaseline(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B"))

	s := loadedSession(t, store, Options{})
	st := s.State()

	assert.Equal(t, comps("A", "B"), st.Components)
	assert.Equal(t, comps("A", "B"), st.Present)
	require.Len(t, st.Past, 1, "baseline recorded once")
	assert.Equal(t, comps("A", "B"), st.Past[0])
	assert.False(t, st.CanUndo())
	assert.False(t, st.CanRedo())

	// Loading does not write anything back
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, store.writes())
}

func TestSession_LoadFailures(t *testing.T) {
	t.Run("missing entry", func(t *testing.T) {
		s := NewSession("ghost", newMemStore(), Options{})
		defer s.Close()
		err := s.Load(context.Background())
		assert.True(t, errors.Is(err, errors.ErrNotFound))
		assert.False(t, s.Loaded())
	})

	t.Run("store error", func(t *testing.T) {
		store := newMemStore()
		store.getErr = fmt.Errorf("network down")
		s := NewSession("page1", store, Options{})
		defer s.Close()
		err := s.Load(context.Background())
		assert.True(t, errors.Is(err, errors.ErrLoadFailed))
	})

	t.Run("malformed layout", func(t *testing.T) {
		store := newMemStore()
		store.put(t, "page1", nil)
		require.NoError(t, store.entries["page1"].Fields.Set("layoutConfig", "en-US", "not a list"))
		s := NewSession("page1", store, Options{})
		defer s.Close()
		err := s.Load(context.Background())
		assert.True(t, errors.Is(err, errors.ErrLoadFailed))
	})
}

func TestSession_EditsBeforeLoadAreRejected(t *testing.T) {
	s := NewSession("page1", newMemStore(), Options{})
	defer s.Close()

	_, err := s.Reorder(0, intPtr(1))
	assert.True(t, errors.Is(err, errors.ErrNotLoaded))
	_, err = s.Undo()
	assert.True(t, errors.Is(err, errors.ErrNotLoaded))
	_, err = s.AddComponent(context.Background(), "heroBlock")
	assert.True(t, errors.Is(err, errors.ErrNotLoaded))
}

func TestSession_ReorderSavesAfterQuietWindow(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B", "C"))
	s := loadedSession(t, store, Options{SaveDelay: 50 * time.Millisecond})

	_, err := s.Reorder(0, intPtr(2))
	require.NoError(t, err)
	_, err = s.Reorder(0, intPtr(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(store.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, comps("C", "B", "A"), store.writes()[0])
	assert.Equal(t, 2, s.Version())

	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, "Layout saved!", notices[len(notices)-1].Message)
}

func TestSession_StaleStateIsIgnored(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B", "C"))
	s := loadedSession(t, store, Options{SaveDelay: time.Hour})

	base := s.State()
	newer := base
	newer.Components = comps("C", "A", "B")
	newer.Present = newer.Components
	newer.Seq = base.Seq + 2
	older := base
	older.Components = comps("B", "A", "C")
	older.Present = older.Components
	older.Seq = base.Seq + 1

	// A racing dispatch can deliver the older state last
	s.onChange(newer)
	s.onChange(older)

	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, store.writes(), 1)
	assert.Equal(t, comps("C", "A", "B"), store.writes()[0])
}

func TestSession_ConcurrentEditsPersistLiveLayout(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		store := newMemStore()
		store.put(t, "page1", comps("A", "B", "C", "D", "E"))
		s := loadedSession(t, store, Options{SaveDelay: time.Hour})

		// A slow observer widens the window between dispatch and notification
		unsubscribe := s.store.Subscribe(func(layout.State) {
			time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
		})

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				r := rand.New(rand.NewSource(seed))
				for i := 0; i < 20; i++ {
					_, err := s.Reorder(r.Intn(5), intPtr(r.Intn(5)))
					assert.NoError(t, err)
				}
			}(int64(trial*8 + g))
		}
		wg.Wait()
		unsubscribe()

		require.NoError(t, s.Flush(context.Background()))

		e, err := store.GetEntry(context.Background(), "page1")
		require.NoError(t, err)
		persisted, err := e.Layout("layoutConfig", "en-US")
		require.NoError(t, err)
		require.Equal(t, s.State().Components, persisted, "trial %d", trial)
		s.Close()
	}
}

// stalledStore never finishes an update before its context ends.
type stalledStore struct {
	*memStore
}

func (s stalledStore) UpdateEntry(ctx context.Context, _ *cms.Entry) (*cms.Entry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSession_WriteTimeoutBoundsSave(t *testing.T) {
	mem := newMemStore()
	mem.put(t, "page1", comps("A", "B"))
	s := loadedSession(t, stalledStore{mem}, Options{SaveDelay: time.Hour, WriteTimeout: 20 * time.Millisecond})

	_, err := s.Reorder(0, intPtr(1))
	require.NoError(t, err)

	start := time.Now()
	err = s.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSaveFailed))
	assert.Less(t, time.Since(start), time.Second)

	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, "Error saving layout.", notices[len(notices)-1].Message)
}

func TestSession_FailedDispatchIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })

	store := newMemStore()
	store.put(t, "page1", comps("A"))
	s := loadedSession(t, store, Options{})

	_, err := s.Reorder(3, intPtr(0))
	require.Error(t, err)
	assert.Contains(t, buf.String(), "layout reorderComponents on page1")
}

func TestSession_ReorderWithoutDestinationSavesNothing(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B"))
	s := loadedSession(t, store, Options{})

	res, err := s.Reorder(0, nil)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, store.writes())
	assert.False(t, s.State().CanUndo())
}

func TestSession_AddComponent(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", layout.List{})
	s := loadedSession(t, store, Options{})

	c, err := s.AddComponent(context.Background(), "imageGrid")
	require.NoError(t, err)
	assert.Equal(t, "imageGrid", c.Type)
	assert.Equal(t, "new1", c.ContentID)
	assert.Len(t, c.ID, 36, "uuid")

	created, err := store.GetEntry(context.Background(), "new1")
	require.NoError(t, err)
	assert.Equal(t, "imageGrid", created.ContentType)
	assert.Equal(t, "New imageGrid", created.Fields.String(cms.FieldInternalName, "en-US"))

	st := s.State()
	assert.Equal(t, layout.List{c}, st.Components)
	assert.True(t, st.CanUndo())

	require.Eventually(t, func() bool { return len(store.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, layout.List{c}, store.writes()[0])

	messages := []string{}
	for _, n := range s.Notices() {
		messages = append(messages, n.Message)
	}
	assert.Contains(t, messages, "New imageGrid component added.")
}

func TestSession_AddComponentFailure(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A"))
	store.createErr = fmt.Errorf("quota exceeded")

	extra := notify.NewFeed(5)
	s := loadedSession(t, store, Options{Notifier: extra})

	_, err := s.AddComponent(context.Background(), "heroBlock")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSaveFailed))
	assert.Equal(t, comps("A"), s.State().Components)

	got := extra.Recent()
	require.Len(t, got, 1)
	assert.Equal(t, notify.LevelError, got[0].Level)
	assert.Equal(t, "Error adding heroBlock component.", got[0].Message)
}

func TestSession_UndoRedoPersist(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B"))
	s := loadedSession(t, store, Options{SaveDelay: time.Hour})
	ctx := context.Background()

	_, err := s.Reorder(0, intPtr(1))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	res, err := s.Undo()
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, comps("A", "B"), s.State().Components)
	require.NoError(t, s.Flush(ctx))

	_, err = s.Redo()
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	writes := store.writes()
	require.Len(t, writes, 3)
	assert.Equal(t, comps("B", "A"), writes[0])
	assert.Equal(t, comps("A", "B"), writes[1])
	assert.Equal(t, comps("B", "A"), writes[2])
}

func TestSession_EditThenUndoBeforeSaveWritesBaseline(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B"))
	s := loadedSession(t, store, Options{SaveDelay: time.Hour})

	_, err := s.Reorder(0, intPtr(1))
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	writes := store.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, comps("A", "B"), writes[0], "the pending edit is superseded")
}

func TestSession_UndoToEmptyPresentSkipsSave(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", layout.List{})
	s := loadedSession(t, store, Options{SaveDelay: time.Hour})
	ctx := context.Background()

	_, err := s.AddComponent(ctx, "heroBlock")
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	_, err = s.Undo()
	require.NoError(t, err)
	assert.Empty(t, s.State().Components)
	assert.False(t, s.Pending())
	require.NoError(t, s.Flush(ctx))

	assert.Len(t, store.writes(), 1)
}

func TestSession_SaveConflictNotifies(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B"))
	s := loadedSession(t, store, Options{SaveDelay: time.Hour})

	// Someone else bumps the version
	store.mu.Lock()
	store.entries["page1"].Version = 7
	store.mu.Unlock()

	_, err := s.Reorder(1, intPtr(0))
	require.NoError(t, err)

	err = s.Flush(context.Background())
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, comps("B", "A"), s.State().Components, "local state untouched")

	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, "Error saving layout.", notices[len(notices)-1].Message)
}

func TestSession_OnSavedHook(t *testing.T) {
	store := newMemStore()
	store.put(t, "page1", comps("A", "B"))

	var mu sync.Mutex
	var saved []string
	s := loadedSession(t, store, Options{SaveDelay: time.Hour, OnSaved: func(_ context.Context, id string) {
		mu.Lock()
		saved = append(saved, id)
		mu.Unlock()
	}})

	_, err := s.Reorder(0, intPtr(1))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"page1"}, saved)
}

func TestSession_WithLocalStore(t *testing.T) {
	sqlDB, err := db.Init(t.TempDir())
	require.NoError(t, err)
	defer sqlDB.Close()

	ctx := context.Background()
	local := cms.NewLocal(sqlDB, "en-US", "layoutConfig")

	f := cms.Fields{}
	require.NoError(t, f.Set(cms.FieldSlug, "en-US", "spring"))
	page, err := local.CreateEntry(ctx, "landingPage", f)
	require.NoError(t, err)

	s := NewSession(page.ID, local, Options{SaveDelay: time.Hour})
	defer s.Close()
	require.NoError(t, s.Load(ctx))

	c, err := s.AddComponent(ctx, "heroBlock")
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	lp, err := local.LandingPage(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, layout.List{c}, lp.Layout)
}
