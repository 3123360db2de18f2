package chunking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/media"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// Clipper writes a time range of a source to a new audio file
type Clipper interface {
	Clip(ctx context.Context, src, dst string, start, end float64) error
}

// Exporter produces one audio artifact per window
type Exporter struct {
	clipper   Clipper
	extension string
	maxBytes  int64
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewExporter creates an exporter writing files with the given extension.
// maxBytes is the provider payload ceiling; 0 disables the check.
func NewExporter(clipper Clipper, extension string, maxBytes int64) *Exporter {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return &Exporter{
		clipper:   clipper,
		extension: extension,
		maxBytes:  maxBytes,
		metrics:   metrics.DefaultMetrics,
		log:       logging.WithComponent("exporter"),
	}
}

// Export clips every window of source into dest, in index order. dest must be
// an existing empty directory. On failure the artifacts already written are
// removed and the error names the failing chunk.
func (e *Exporter) Export(ctx context.Context, source string, windows []types.Window, dest string) ([]types.ChunkArtifact, error) {
	if err := CheckDestination(dest); err != nil {
		return nil, err
	}

	artifacts := make([]types.ChunkArtifact, 0, len(windows))
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			removeArtifacts(artifacts)
			return nil, err
		}
		artifact, err := e.ExportWindow(ctx, source, w, len(windows), dest)
		if err != nil {
			removeArtifacts(artifacts)
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// ExportWindow clips a single window. count is the total number of windows
// and fixes the zero-padding width of the artifact name. The clip is written
// under a temporary name and renamed once it passes the size check.
func (e *Exporter) ExportWindow(ctx context.Context, source string, w types.Window, count int, dest string) (types.ChunkArtifact, error) {
	started := time.Now()
	final := filepath.Join(dest, ArtifactName(source, w.Index, count, e.extension))
	tmp := strings.TrimSuffix(final, e.extension) + ".tmp" + e.extension

	fail := func(err error) (types.ChunkArtifact, error) {
		os.Remove(tmp)
		return types.ChunkArtifact{}, failure.At(failure.StageExport, "chunk", w.Index, err)
	}

	if err := e.clipper.Clip(ctx, source, tmp, w.Start, w.End); err != nil {
		return fail(err)
	}

	size, err := CheckPayload(tmp, e.maxBytes)
	if err != nil {
		return fail(fmt.Errorf("%w (%.0fs window, lower the chunk duration or bitrate)", err, w.Duration()))
	}
	if err := os.Rename(tmp, final); err != nil {
		return fail(failure.IO("rename exported chunk", err))
	}

	e.metrics.RecordChunkExported(size, time.Since(started).Seconds())
	e.log.Debug().
		Int("index", w.Index).
		Float64("start", w.Start).
		Float64("end", w.End).
		Int64("bytes", size).
		Str("path", final).
		Msg("Chunk exported")

	return types.ChunkArtifact{Window: w, Path: final, Size: size}, nil
}

// CheckPayload returns the size of path, or ErrPayloadTooLarge when it exceeds
// maxBytes. maxBytes <= 0 disables the limit.
func CheckPayload(path string, maxBytes int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, failure.IO("stat "+filepath.Base(path), err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return info.Size(), fmt.Errorf("%w: %s is %d bytes, limit %d",
			failure.ErrPayloadTooLarge, filepath.Base(path), info.Size(), maxBytes)
	}
	return info.Size(), nil
}

// ArtifactName returns "<stem>_part<index><ext>" with the index zero-padded to
// at least three digits, so lexical order of names matches chunk order.
func ArtifactName(source string, index, count int, ext string) string {
	width := 3
	if n := len(strconv.Itoa(count - 1)); count > 1 && n > width {
		width = n
	}
	return fmt.Sprintf("%s_part%0*d%s", media.Stem(source), width, index, ext)
}

// CheckDestination requires dest to be an existing, empty directory
func CheckDestination(dest string) error {
	info, err := os.Stat(dest)
	if err != nil {
		return failure.Invalid("export destination %s: %v", dest, err)
	}
	if !info.IsDir() {
		return failure.Invalid("export destination %s is not a directory", dest)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		return failure.IO("read export destination", err)
	}
	if len(entries) > 0 {
		return failure.Invalid("export destination %s is not empty", dest)
	}
	return nil
}

func removeArtifacts(artifacts []types.ChunkArtifact) {
	for _, a := range artifacts {
		os.Remove(a.Path)
	}
}
