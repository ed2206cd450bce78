package ops

import (
	"context"

	"github.com/hpungsan/tessera/internal/editor"
	"github.com/hpungsan/tessera/internal/layout"
)

// LoadLayoutInput contains parameters for the LoadLayout operation.
type LoadLayoutInput struct {
	EntryID string
	Reload  bool // flush and drop an open session, then read the entry again
}

// LoadLayout opens the editing session for an entry.
func LoadLayout(ctx context.Context, m *editor.Manager, input LoadLayoutInput) (*LayoutOutput, error) {
	if err := requireEntryID(input.EntryID); err != nil {
		return nil, err
	}

	if input.Reload {
		if s, ok := m.Lookup(input.EntryID); ok {
			if err := m.Discard(ctx, s); err != nil {
				return nil, err
			}
		}
	}

	s, err := m.Session(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}
	return layoutOutput(s, false), nil
}

// ShowLayoutInput contains parameters for the ShowLayout operation.
type ShowLayoutInput struct {
	EntryID        string
	IncludeHistory bool
}

// ShowLayout returns the live list and undo/redo availability.
func ShowLayout(ctx context.Context, m *editor.Manager, input ShowLayoutInput) (*LayoutOutput, error) {
	if err := requireEntryID(input.EntryID); err != nil {
		return nil, err
	}
	s, err := m.Session(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}
	return layoutOutput(s, input.IncludeHistory), nil
}

// AddComponentInput contains parameters for the AddComponent operation.
type AddComponentInput struct {
	EntryID string
	Type    string
	Flush   bool // write the layout before returning
}

// AddComponentOutput contains the result of the AddComponent operation.
type AddComponentOutput struct {
	Added layout.Component `json:"added"`
	*LayoutOutput
}

// AddComponent creates a content entry of the given type and appends it to the layout.
func AddComponent(ctx context.Context, m *editor.Manager, input AddComponentInput) (*AddComponentOutput, error) {
	if err := requireEntryID(input.EntryID); err != nil {
		return nil, err
	}
	s, err := m.Session(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}

	c, err := s.AddComponent(ctx, input.Type)
	if err != nil {
		return nil, err
	}
	if input.Flush {
		if err := s.Flush(ctx); err != nil {
			return nil, err
		}
	}
	return &AddComponentOutput{Added: c, LayoutOutput: layoutOutput(s, false)}, nil
}

// ReorderInput contains parameters for the ReorderComponents operation.
// A nil Destination is a drop outside the list and changes nothing.
type ReorderInput struct {
	EntryID     string
	Source      int
	Destination *int
	Flush       bool
}

// ChangeOutput reports whether an edit changed the layout.
type ChangeOutput struct {
	Changed bool `json:"changed"`
	*LayoutOutput
}

// ReorderComponents moves one component.
func ReorderComponents(ctx context.Context, m *editor.Manager, input ReorderInput) (*ChangeOutput, error) {
	return change(ctx, m, input.EntryID, input.Flush, func(s *editor.Session) (layout.Result, error) {
		return s.Reorder(input.Source, input.Destination)
	})
}

// HistoryInput contains parameters for the Undo and Redo operations.
type HistoryInput struct {
	EntryID string
	Flush   bool
}

// Undo steps the layout back one snapshot. With nothing to undo it reports Changed=false.
func Undo(ctx context.Context, m *editor.Manager, input HistoryInput) (*ChangeOutput, error) {
	return change(ctx, m, input.EntryID, input.Flush, (*editor.Session).Undo)
}

// Redo steps the layout forward one snapshot.
func Redo(ctx context.Context, m *editor.Manager, input HistoryInput) (*ChangeOutput, error) {
	return change(ctx, m, input.EntryID, input.Flush, (*editor.Session).Redo)
}

func change(ctx context.Context, m *editor.Manager, entryID string, flush bool, fn func(*editor.Session) (layout.Result, error)) (*ChangeOutput, error) {
	if err := requireEntryID(entryID); err != nil {
		return nil, err
	}
	s, err := m.Session(ctx, entryID)
	if err != nil {
		return nil, err
	}

	res, err := fn(s)
	if err != nil {
		return nil, err
	}
	if flush {
		if err := s.Flush(ctx); err != nil {
			return nil, err
		}
	}
	return &ChangeOutput{Changed: res.Changed, LayoutOutput: layoutOutput(s, false)}, nil
}
