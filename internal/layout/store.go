package layout

import (
	"fmt"
	"sync"

	"github.com/hpungsan/tessera/internal/errors"
)

// Action is an edit dispatched to a Store.
type Action interface {
	actionName() string
}

// AddComponent appends a component to the live list.
type AddComponent struct {
	Component Component
}

// ReorderComponents moves the component at Source to Destination.
// A nil Destination means the drag ended outside any target and is a no-op.
// Destination is an index into the list after the source element is removed.
type ReorderComponents struct {
	Source      int
	Destination *int
}

// SetInitial replaces the live list and the history baseline. It is not undoable.
type SetInitial struct {
	Components List
}

// Undo restores the previous snapshot.
type Undo struct{}

// Redo re-applies the next snapshot.
type Redo struct{}

// RecordHistory snapshots the live list into the ledger.
type RecordHistory struct{}

func (AddComponent) actionName() string      { return "addComponent" }
func (ReorderComponents) actionName() string { return "reorderComponents" }
func (SetInitial) actionName() string        { return "setInitialState" }
func (Undo) actionName() string              { return "undo" }
func (Redo) actionName() string              { return "redo" }
func (RecordHistory) actionName() string     { return "updateHistory" }

// ActionName returns the wire name of an action. Sessions log failed dispatches under it.
func ActionName(a Action) string {
	return a.actionName()
}

// Result describes what a dispatched action did.
type Result struct {
	// Changed is false when the action was a no-op (nothing to undo, drop outside a target).
	Changed bool
}

// Dispatcher applies an action.
type Dispatcher func(Action) (Result, error)

// Middleware wraps the dispatch path. dispatch re-enters the full chain; next
// continues to the following link and finally the reducer.
type Middleware func(dispatch, next Dispatcher) Dispatcher

// HistoryRecorder records a history snapshot after every structural mutation
// (add, reorder) that changed the list. SetInitial, Undo and Redo pass through.
func HistoryRecorder() Middleware {
	return func(dispatch, next Dispatcher) Dispatcher {
		return func(a Action) (Result, error) {
			res, err := next(a)
			if err != nil || !res.Changed {
				return res, err
			}
			switch a.(type) {
			case AddComponent, ReorderComponents:
				if _, err := dispatch(RecordHistory{}); err != nil {
					return res, err
				}
			}
			return res, nil
		}
	}
}

// State is a deep-copied view of a Store.
type State struct {
	Components List   `json:"components"`
	Past       []List `json:"past"`
	Present    List   `json:"present"`
	Future     []List `json:"future"`

	// Seq counts effective dispatches. Subscribers may see states out of
	// order when dispatches race; a higher Seq is always the newer state.
	Seq uint64 `json:"-"`
}

// CanUndo reports whether there is an undo step beyond the loaded baseline.
func (s State) CanUndo() bool {
	return len(s.Past) > 1
}

// CanRedo reports whether a redo step exists.
func (s State) CanRedo() bool {
	return len(s.Future) > 0
}

// Store owns the live layout list and its history. All edits go through Dispatch.
// Subscribers are notified once per outer Dispatch, after nested dispatches settle,
// and outside the store lock. Concurrent dispatches may notify out of order; use
// State.Seq to discard stale states.
type Store struct {
	mu         sync.Mutex
	components List
	history    History
	dispatch   Dispatcher
	seq        uint64

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewStore creates an empty store with the given middleware, outermost first.
func NewStore(middleware ...Middleware) *Store {
	s := &Store{
		components: List{},
		history:    History{Present: List{}},
		subs:       make(map[int]func(State)),
	}

	var full Dispatcher
	chain := Dispatcher(s.reduce)
	for i := len(middleware) - 1; i >= 0; i-- {
		chain = middleware[i](func(a Action) (Result, error) { return full(a) }, chain)
	}
	full = chain
	s.dispatch = full
	return s
}

// Dispatch applies an action through the middleware chain.
func (s *Store) Dispatch(a Action) (Result, error) {
	s.mu.Lock()
	res, err := s.dispatch(a)
	changed := err == nil && res.Changed
	if changed {
		s.seq++
	}
	state := s.stateLocked()
	s.mu.Unlock()

	if changed {
		s.notify(state)
	}
	return res, err
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Components returns a copy of the live list.
func (s *Store) Components() List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.components.Clone()
}

// Subscribe registers fn to receive state after each effective dispatch.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(state State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Store) stateLocked() State {
	h := s.history.Clone()
	return State{
		Components: s.components.Clone(),
		Past:       h.Past,
		Present:    h.Present,
		Future:     h.Future,
		Seq:        s.seq,
	}
}

// reduce applies an action to the live list and ledger. Caller holds s.mu.
func (s *Store) reduce(a Action) (Result, error) {
	switch act := a.(type) {
	case AddComponent:
		next := make(List, 0, len(s.components)+1)
		next = append(next, s.components...)
		s.components = append(next, act.Component)
		return Result{Changed: true}, nil

	case ReorderComponents:
		if act.Destination == nil {
			return Result{}, nil
		}
		next, err := move(s.components, act.Source, *act.Destination)
		if err != nil {
			return Result{}, err
		}
		s.components = next
		return Result{Changed: true}, nil

	case SetInitial:
		s.components = act.Components.Clone()
		s.history.SetInitial(act.Components)
		return Result{Changed: true}, nil

	case Undo:
		previous, ok := s.history.Undo()
		if !ok {
			return Result{}, nil
		}
		s.components = previous
		return Result{Changed: true}, nil

	case Redo:
		next, ok := s.history.Redo()
		if !ok {
			return Result{}, nil
		}
		s.components = next
		return Result{Changed: true}, nil

	case RecordHistory:
		s.history.Record(s.components)
		return Result{Changed: true}, nil

	default:
		return Result{}, errors.NewInvalidRequest(fmt.Sprintf("unknown layout action %T", a))
	}
}

// move removes the element at src and inserts it at dst in the post-removal index space.
func move(list List, src, dst int) (List, error) {
	if src < 0 || src >= len(list) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("source index %d out of range [0, %d)", src, len(list)))
	}
	if dst < 0 || dst >= len(list) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("destination index %d out of range [0, %d)", dst, len(list)))
	}

	moved := list[src]
	rest := make(List, 0, len(list))
	rest = append(rest, list[:src]...)
	rest = append(rest, list[src+1:]...)

	out := make(List, 0, len(list))
	out = append(out, rest[:dst]...)
	out = append(out, moved)
	out = append(out, rest[dst:]...)
	return out, nil
}
