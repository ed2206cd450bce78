package ops

import (
	"github.com/hpungsan/tessera/internal/editor"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/layout"
	"github.com/hpungsan/tessera/internal/notify"
)

// LayoutOutput is the editor state returned by every layout operation.
type LayoutOutput struct {
	EntryID    string          `json:"entry_id"`
	Version    int             `json:"version"`
	Components layout.List     `json:"components"`
	CanUndo    bool            `json:"can_undo"`
	CanRedo    bool            `json:"can_redo"`
	PastLen    int             `json:"past_len"`
	FutureLen  int             `json:"future_len"`
	Pending    bool            `json:"save_pending"`
	Notices    []notify.Notice `json:"notices,omitempty"`

	// History is set only when requested.
	History *layout.State `json:"history,omitempty"`
}

func layoutOutput(s *editor.Session, includeHistory bool) *LayoutOutput {
	st := s.State()
	out := &LayoutOutput{
		EntryID:    s.EntryID(),
		Version:    s.Version(),
		Components: st.Components,
		CanUndo:    st.CanUndo(),
		CanRedo:    st.CanRedo(),
		PastLen:    len(st.Past),
		FutureLen:  len(st.Future),
		Pending:    s.Pending(),
		Notices:    s.DrainNotices(),
	}
	if includeHistory {
		out.History = &st
	}
	return out
}

func requireEntryID(entryID string) error {
	if entryID == "" {
		return errors.NewInvalidRequest("entry_id is required")
	}
	return nil
}
