package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/tessera/internal/cms"
	"github.com/hpungsan/tessera/internal/errors"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail before writing if any id exists
	ImportModeSkip    ImportMode = "skip"    // keep existing entries
	ImportModeReplace ImportMode = "replace" // overwrite existing entries
)

// maxSeedLine bounds one JSONL record.
const maxSeedLine = 4 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SeedRecord is one entry line of a seed file.
type SeedRecord struct {
	ID          string     `json:"id"`
	ContentType string     `json:"content_type"`
	Fields      cms.Fields `json:"fields"`

	line int
}

// Import loads entries from a JSONL seed file into the local store.
func Import(ctx context.Context, local *cms.Local, input ImportInput) (*ImportOutput, error) {
	if local == nil {
		return nil, errors.NewInvalidRequest("import requires the local backend")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeSkip && input.Mode != ImportModeReplace {
		return nil, errors.NewInvalidRequest("mode must be one of: error, skip, replace")
	}
	if err := ValidatePath(input.Path, PathCheckRead); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if errors.As(err) != nil {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseSeedFile(file)

	// For mode:error, fail on any parse errors
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return &ImportOutput{Errors: parseErrors}, nil
	}

	out := &ImportOutput{Errors: parseErrors}
	out.Skipped = len(parseErrors)

	if input.Mode == ImportModeError {
		for _, r := range records {
			_, err := local.GetEntry(ctx, r.ID)
			if err == nil {
				return &ImportOutput{Errors: []ImportError{{
					Line:    r.line,
					ID:      r.ID,
					Code:    "ID_COLLISION",
					Message: fmt.Sprintf("entry with id %q already exists", r.ID),
				}}}, nil
			}
			if !errors.Is(err, errors.ErrNotFound) {
				return nil, err
			}
		}
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewInternal(err)
		}

		switch input.Mode {
		case ImportModeReplace:
			_, err = local.Replace(ctx, r.ID, r.ContentType, r.Fields)
		case ImportModeSkip:
			if _, getErr := local.GetEntry(ctx, r.ID); getErr == nil {
				out.Skipped++
				continue
			}
			_, err = local.Put(ctx, r.ID, r.ContentType, r.Fields)
		default:
			_, err = local.Put(ctx, r.ID, r.ContentType, r.Fields)
		}

		if err != nil {
			te := errors.As(err)
			if te == nil || te.Code == errors.ErrInternal {
				return nil, err
			}
			out.Errors = append(out.Errors, ImportError{Line: r.line, ID: r.ID, Code: string(te.Code), Message: te.Message})
			out.Skipped++
			continue
		}
		out.Imported++
	}

	return out, nil
}

// parseSeedFile parses a JSONL seed file. A header line is skipped.
func parseSeedFile(r io.Reader) ([]SeedRecord, []ImportError) {
	var records []SeedRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxSeedLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var header SeedHeader
		if err := json.Unmarshal(line, &header); err == nil && header.TesseraSeed {
			continue
		}

		var record SeedRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if record.ID == "" || record.ContentType == "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_RECORD",
				Message: "id and content_type are required",
			})
			continue
		}
		if record.Fields == nil {
			record.Fields = cms.Fields{}
		}
		record.line = lineNum
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}
