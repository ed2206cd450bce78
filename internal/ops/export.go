package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/tessera/internal/cms"
	"github.com/hpungsan/tessera/internal/errors"
)

// SeedHeader is the first line of a seed file written by Export.
type SeedHeader struct {
	TesseraSeed   bool   `json:"_tessera_seed"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path    string // optional, default: <baseDir>/seeds/entries-<timestamp>.jsonl
	BaseDir string
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes every local entry to a JSONL seed file that Import can read back.
func Export(ctx context.Context, local *cms.Local, input ExportInput) (*ExportOutput, error) {
	if local == nil {
		return nil, errors.NewInvalidRequest("export requires the local backend")
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(DefaultSeedsDir(input.BaseDir), "entries-"+now.Format("2006-01-02T150405")+".jsonl")
	}
	if err := ValidatePath(exportPath, PathCheckWrite); err != nil {
		return nil, err
	}

	entries, err := local.All(ctx)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	if err := enc.Encode(SeedHeader{TesseraSeed: true, SchemaVersion: "1.0", ExportedAt: now.Unix()}); err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, e := range entries {
		rec := SeedRecord{ID: e.ID, ContentType: e.ContentType, Fields: e.Fields}
		if err := enc.Encode(rec); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before atomic replace (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{Path: exportPath, Count: len(entries), ExportedAt: now.Unix()}, nil
}
