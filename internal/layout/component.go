// Package layout holds the ordered component list of a landing page, its
// undo/redo history, and the store that applies edits to both.
package layout

// Component is one ordered reference from a page layout to a content block.
// ID is generated by the editor and is distinct from ContentID, the CMS entry id.
type Component struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	ContentID string `json:"contentId"`
}

// List is an ordered layout. Order is render order.
type List []Component

// Clone returns a copy that shares no backing array with l.
// A nil list clones to an empty, non-nil list so it serializes as [].
func (l List) Clone() List {
	out := make(List, len(l))
	copy(out, l)
	return out
}

// Equal reports whether two lists hold the same components in the same order.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// ContentIDs returns the content ids in layout order.
func (l List) ContentIDs() []string {
	ids := make([]string, len(l))
	for i, c := range l {
		ids[i] = c.ContentID
	}
	return ids
}
