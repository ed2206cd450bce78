package cms

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/db"
	"github.com/hpungsan/tessera/internal/errors"
)

// Local is a CMS backed by the SQLite database. It serves both the editor
// (EntryStore) and the renderer (content.Source).
type Local struct {
	db          *sql.DB
	locale      string
	layoutField string
}

var (
	_ EntryStore     = (*Local)(nil)
	_ content.Source = (*Local)(nil)
)

// NewLocal wraps an initialized database.
func NewLocal(sqlDB *sql.DB, locale, layoutField string) *Local {
	return &Local{db: sqlDB, locale: locale, layoutField: layoutField}
}

// NewID returns a fresh entry id.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func (l *Local) GetEntry(ctx context.Context, id string) (*Entry, error) {
	row, err := db.GetByID(ctx, l.db, id)
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (l *Local) CreateEntry(ctx context.Context, contentType string, fields Fields) (*Entry, error) {
	return l.insert(ctx, NewID(), contentType, fields)
}

// Put inserts an entry with a caller-chosen id. Used by seeding.
func (l *Local) Put(ctx context.Context, id, contentType string, fields Fields) (*Entry, error) {
	if id == "" {
		id = NewID()
	}
	return l.insert(ctx, id, contentType, fields)
}

func (l *Local) insert(ctx context.Context, id, contentType string, fields Fields) (*Entry, error) {
	if contentType == "" {
		return nil, errors.NewInvalidRequest("content type is required")
	}
	if fields == nil {
		fields = Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	row := &db.Entry{ID: id, ContentType: contentType, FieldsJSON: string(data)}
	if err := db.Insert(ctx, l.db, row); err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (l *Local) UpdateEntry(ctx context.Context, e *Entry) (*Entry, error) {
	data, err := json.Marshal(e.Fields)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	row := &db.Entry{ID: e.ID, FieldsJSON: string(data), Version: e.Version}
	if err := db.UpdateFields(ctx, l.db, row); err != nil {
		return nil, err
	}

	out := e.Clone()
	out.Version = row.Version
	out.UpdatedAt = time.Unix(row.UpdatedAt, 0)
	return out, nil
}

func (l *Local) LandingPageSlugs(ctx context.Context) ([]string, error) {
	return db.ListFieldValues(ctx, l.db, content.TypeLandingPage, FieldSlug, l.locale)
}

func (l *Local) LandingPage(ctx context.Context, slug string) (*content.LandingPage, error) {
	row, err := db.FindByField(ctx, l.db, content.TypeLandingPage, FieldSlug, l.locale, slug)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewNotFound("landing page", slug)
		}
		return nil, err
	}

	e, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	list, err := e.Layout(l.layoutField, l.locale)
	if err != nil {
		return nil, errors.NewFetchFailed(err)
	}
	return &content.LandingPage{
		Title:  e.Fields.String(FieldTitle, l.locale),
		Slug:   e.Fields.String(FieldSlug, l.locale),
		Layout: list,
	}, nil
}

// Blocks returns the known block entries among ids. Entries of other content
// types are skipped, as the content API only queries block collections.
func (l *Local) Blocks(ctx context.Context, ids []string) ([]content.Block, error) {
	rows, err := db.GetByIDs(ctx, l.db, ids)
	if err != nil {
		return nil, err
	}

	blocks := make([]content.Block, 0, len(rows))
	for i := range rows {
		if !content.IsBlockType(rows[i].ContentType) {
			continue
		}
		e, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		b, err := l.decodeBlock(e)
		if err != nil {
			return nil, errors.NewFetchFailed(err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// decodeBlock flattens the entry's fields to the locale and decodes them into
// the block type, the same shape the content API returns.
func (l *Local) decodeBlock(e *Entry) (content.Block, error) {
	flat := e.Fields.Localized(l.locale)
	sys, _ := json.Marshal(content.Sys{ID: e.ID})
	flat["sys"] = sys

	raw, err := json.Marshal(flat)
	if err != nil {
		return nil, err
	}
	return content.DecodeBlock(e.ContentType, raw)
}

func fromRow(row *db.Entry) (*Entry, error) {
	fields := Fields{}
	if row.FieldsJSON != "" {
		if err := json.Unmarshal([]byte(row.FieldsJSON), &fields); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("entry %s: decode fields: %w", row.ID, err))
		}
	}
	return &Entry{
		ID:          row.ID,
		ContentType: row.ContentType,
		Version:     row.Version,
		Fields:      fields,
		CreatedAt:   time.Unix(row.CreatedAt, 0),
		UpdatedAt:   time.Unix(row.UpdatedAt, 0),
	}, nil
}

// Replace overwrites the fields of an existing entry, or inserts it when id is unknown.
func (l *Local) Replace(ctx context.Context, id, contentType string, fields Fields) (*Entry, error) {
	current, err := l.GetEntry(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return l.Put(ctx, id, contentType, fields)
	}
	if err != nil {
		return nil, err
	}
	if current.ContentType != contentType {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("entry %s is a %s, not a %s", id, current.ContentType, contentType))
	}
	current.Fields = fields
	return l.UpdateEntry(ctx, current)
}

// All returns every entry, oldest first.
func (l *Local) All(ctx context.Context) ([]*Entry, error) {
	rows, err := db.ListAll(ctx, l.db)
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(rows))
	for i := range rows {
		e, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
