package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/tessera/internal/errors"
)

// ErrUniqueConstraint is returned when an insert reuses an existing entry id.
var ErrUniqueConstraint = &errors.TesseraError{
	Code:    errors.ErrConflict,
	Status:  409,
	Message: "unique constraint violation",
}

// Entry is a stored CMS entry row. FieldsJSON holds {field: {locale: value}}.
type Entry struct {
	ID          string
	ContentType string
	FieldsJSON  string
	Version     int
	CreatedAt   int64
	UpdatedAt   int64
}

const entryColumns = `id, content_type, fields_json, version, created_at, updated_at`

// Insert stores a new entry at version 1.
func Insert(ctx context.Context, db *sql.DB, e *Entry) error {
	now := time.Now().Unix()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = e.CreatedAt
	}
	e.Version = 1

	query := `INSERT INTO entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		e.ID, e.ContentType, e.FieldsJSON, e.Version, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves an entry by id.
func GetByID(ctx context.Context, db *sql.DB, id string) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = ?`

	e, err := scanEntry(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("entry", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// GetByIDs retrieves the entries whose id is in ids. Missing ids are skipped;
// rows come back in insertion order, not in the order of ids.
func GetByIDs(ctx context.Context, db *sql.DB, ids []string) ([]Entry, error) {
	if len(ids) == 0 {
		return []Entry{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + entryColumns + ` FROM entries WHERE id IN (` + placeholders + `) ORDER BY created_at, id`
	return queryEntries(ctx, db, query, args...)
}

// ListByType returns all entries of a content type, oldest first.
func ListByType(ctx context.Context, db *sql.DB, contentType string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE content_type = ? ORDER BY created_at, id`
	return queryEntries(ctx, db, query, contentType)
}

// FindByField returns the first entry of contentType whose localized field equals value.
func FindByField(ctx context.Context, db *sql.DB, contentType, field, locale, value string) (*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE content_type = ? AND json_extract(fields_json, ?) = ?
		ORDER BY created_at, id
		LIMIT 1
	`

	e, err := scanEntry(db.QueryRowContext(ctx, query, contentType, fieldPath(field, locale), value))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(contentType, value)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// ListFieldValues returns the non-null values of a localized field across a content type.
func ListFieldValues(ctx context.Context, db *sql.DB, contentType, field, locale string) ([]string, error) {
	query := `
		SELECT json_extract(fields_json, ?1)
		FROM entries
		WHERE content_type = ?2 AND json_extract(fields_json, ?1) IS NOT NULL
		ORDER BY created_at, id
	`

	rows, err := db.QueryContext(ctx, query, fieldPath(field, locale), contentType)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.NewInternal(err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return values, nil
}

// UpdateFields replaces the fields of an entry if its stored version still equals
// e.Version. On success the version is bumped and e is updated in place.
// A version mismatch returns CONFLICT; an unknown id returns NOT_FOUND.
func UpdateFields(ctx context.Context, db *sql.DB, e *Entry) error {
	now := time.Now().Unix()

	query := `
		UPDATE entries
		SET fields_json = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := db.ExecContext(ctx, query, e.FieldsJSON, now, e.ID, e.Version)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing row from a stale version
		if _, err := GetByID(ctx, db, e.ID); err != nil {
			return err
		}
		return errors.NewConflict(e.ID, e.Version)
	}

	e.Version++
	e.UpdatedAt = now
	return nil
}

// Delete removes an entry.
func Delete(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("entry", id)
	}
	return nil
}

// fieldPath builds a JSON path for fields_json, e.g. $."slug"."en-US".
func fieldPath(field, locale string) string {
	return fmt.Sprintf(`$."%s"."%s"`, field, locale)
}

func queryEntries(ctx context.Context, db *sql.DB, query string, args ...any) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a single row into an Entry struct.
func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ContentType, &e.FieldsJSON, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListAll returns every entry, oldest first.
func ListAll(ctx context.Context, db *sql.DB) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries ORDER BY created_at, id`
	return queryEntries(ctx, db, query)
}
