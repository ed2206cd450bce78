// Package cms reads and writes CMS entries. The editor side uses an EntryStore;
// the render side reads through content.Source implementations in this package.
package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hpungsan/tessera/internal/layout"
)

// Field names shared by every backend.
const (
	FieldInternalName = "internalName"
	FieldTitle        = "title"
	FieldSlug         = "slug"
)

// Fields maps field id to locale to raw JSON value, the CMS's localized field shape.
type Fields map[string]map[string]json.RawMessage

// Set stores v as the value of field in locale.
func (f Fields) Set(field, locale string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode field %s: %w", field, err)
	}
	if f[field] == nil {
		f[field] = map[string]json.RawMessage{}
	}
	f[field][locale] = raw
	return nil
}

// Get returns the raw value of field in locale, or nil.
func (f Fields) Get(field, locale string) json.RawMessage {
	return f[field][locale]
}

// String decodes a string field. Missing or non-string values yield "".
func (f Fields) String(field, locale string) string {
	var s string
	if raw := f.Get(field, locale); raw != nil {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// Localized flattens the fields to {field: value} for one locale, dropping
// fields that have no value there.
func (f Fields) Localized(locale string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(f))
	for field, values := range f {
		if raw, ok := values[locale]; ok {
			out[field] = raw
		}
	}
	return out
}

// Entry is a CMS entry. Version is the optimistic concurrency token; writes
// carrying a stale version are rejected with CONFLICT.
type Entry struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	Version     int       `json:"version"`
	Fields      Fields    `json:"fields"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Layout decodes the layout list stored in field/locale. An absent or null
// value is an empty layout.
func (e *Entry) Layout(field, locale string) (layout.List, error) {
	raw := e.Fields.Get(field, locale)
	if len(raw) == 0 || string(raw) == "null" {
		return layout.List{}, nil
	}
	var list layout.List
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	if list == nil {
		list = layout.List{}
	}
	return list, nil
}

// SetLayout replaces field/locale with list.
func (e *Entry) SetLayout(field, locale string, list layout.List) error {
	if e.Fields == nil {
		e.Fields = Fields{}
	}
	return e.Fields.Set(field, locale, list.Clone())
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	out := *e
	out.Fields = make(Fields, len(e.Fields))
	for field, values := range e.Fields {
		m := make(map[string]json.RawMessage, len(values))
		for locale, raw := range values {
			m[locale] = append(json.RawMessage(nil), raw...)
		}
		out.Fields[field] = m
	}
	return &out
}

// EntryStore is the editor's view of the CMS.
type EntryStore interface {
	GetEntry(ctx context.Context, id string) (*Entry, error)

	// CreateEntry creates an entry of contentType and returns it with its new id.
	CreateEntry(ctx context.Context, contentType string, fields Fields) (*Entry, error)

	// UpdateEntry writes e.Fields if e.Version is current and returns the entry
	// at its new version.
	UpdateEntry(ctx context.Context, e *Entry) (*Entry, error)
}
