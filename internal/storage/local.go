package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/media"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// TranscriptSuffix is appended to the source stem to name the default output
const TranscriptSuffix = "_transcript.txt"

// DefaultOutputPath returns <source dir>/<stem>_transcript.txt
func DefaultOutputPath(source string) string {
	return filepath.Join(filepath.Dir(source), media.Stem(source)+TranscriptSuffix)
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path. Readers see either the old file or the complete new one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close transcript: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod transcript: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace transcript: %w", err)
	}
	return nil
}

// LocalStorage handles transcript placement and metadata sidecars on disk
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler. outputDir may be empty,
// in which case transcripts are written next to their source.
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// OutputPath picks where a job's transcript goes when the caller gave none.
// With an output dir the layout is <dir>/2025/01/23/20250123_143022_<stem>_transcript.txt.
func (ls *LocalStorage) OutputPath(source string) (string, error) {
	if ls.outputDir == "" {
		return DefaultOutputPath(source), nil
	}

	now := ls.now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s%s", now.Format("20060102_150405"), sanitizeFilename(media.Stem(source)), TranscriptSuffix)
	return filepath.Join(dateDir, name), nil
}

// MetaPath returns the sidecar path for a transcript: foo_transcript.txt -> foo_transcript_meta.json
func MetaPath(transcriptPath string) string {
	return strings.TrimSuffix(transcriptPath, filepath.Ext(transcriptPath)) + "_meta.json"
}

// SaveMeta writes the run summary next to the transcript
func (ls *LocalStorage) SaveMeta(rec types.RunRecord) (string, error) {
	metadata := map[string]interface{}{
		"run_id":           rec.RunID,
		"kind":             rec.Kind,
		"source":           rec.SourcePath,
		"transcript":       rec.OutputPath,
		"status":           rec.Status,
		"sections":         rec.Sections,
		"duration_seconds": rec.Duration,
		"word_count":       rec.WordCount,
		"gdrive_url":       rec.DriveURL,
		"created_at":       rec.CreatedAt,
		"finished_at":      rec.FinishedAt,
	}

	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	path := MetaPath(rec.OutputPath)
	if err := WriteFileAtomic(path, metaJSON, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// sanitizeFilename strips characters that are unsafe in file names and caps the length
func sanitizeFilename(name string) string {
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
