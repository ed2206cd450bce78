package layout

// History is a linear undo/redo ledger of full layout snapshots.
// Past is oldest first; Future is nearest-undo first.
// Past grows without bound for the lifetime of a session.
type History struct {
	Past    []List
	Present List
	Future  []List
}

// Record pushes Present onto Past, makes list the new Present and drops Future.
func (h *History) Record(list List) {
	h.Past = append(h.Past, h.Present)
	h.Present = list.Clone()
	h.Future = nil
}

// SetInitial sets the baseline Present without touching Past or Future.
func (h *History) SetInitial(list List) {
	h.Present = list.Clone()
}

// Undo restores the most recent Past snapshot. It returns the restored list and
// true, or nil and false when there is nothing to undo.
func (h *History) Undo() (List, bool) {
	if len(h.Past) == 0 {
		return nil, false
	}
	last := len(h.Past) - 1
	previous := h.Past[last]
	h.Past = h.Past[:last:last]

	future := make([]List, 0, len(h.Future)+1)
	future = append(future, h.Present)
	h.Future = append(future, h.Future...)

	h.Present = previous
	return previous.Clone(), true
}

// Redo re-applies the nearest Future snapshot. It returns the restored list and
// true, or nil and false when there is nothing to redo.
func (h *History) Redo() (List, bool) {
	if len(h.Future) == 0 {
		return nil, false
	}
	next := h.Future[0]
	h.Past = append(h.Past, h.Present)
	h.Present = next
	h.Future = h.Future[1:]
	return next.Clone(), true
}

// Clone deep-copies the ledger.
func (h History) Clone() History {
	return History{
		Past:    cloneLists(h.Past),
		Present: h.Present.Clone(),
		Future:  cloneLists(h.Future),
	}
}

func cloneLists(lists []List) []List {
	out := make([]List, len(lists))
	for i, l := range lists {
		out[i] = l.Clone()
	}
	return out
}
