// Package cleanup sweeps run work directories left behind by crashed or
// killed runs, and uploaded sources once they are old.
package cleanup

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
)

// RunDirPrefix is the prefix of every pipeline work directory. It is specific
// to this tool so a shared temp dir never loses another program's files.
const RunDirPrefix = "transcriber-run-"

// Scheduler removes stale run directories from the work dir, and stale
// upload directories when an upload dir is set
type Scheduler struct {
	workDir   string
	uploadDir string
	interval  time.Duration
	maxAge    time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	log       zerolog.Logger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithUploadDir also sweeps the per-upload directories under dir
func WithUploadDir(dir string) Option {
	return func(s *Scheduler) { s.uploadDir = dir }
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(workDir string, intervalMinutes, maxAgeHours int, opts ...Option) *Scheduler {
	s := &Scheduler{
		workDir:  workDir,
		interval: time.Duration(intervalMinutes) * time.Minute,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		now:      time.Now,
		stopChan: make(chan struct{}),
		log:      logging.WithComponent("cleanup"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start runs one sweep and then sweeps every interval until Stop. A zero
// interval only runs the initial sweep.
func (s *Scheduler) Start() {
	s.log.Info().Msg("Running initial work dir cleanup")
	s.RunOnce()
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.RunOnce()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("max_age", s.maxAge).
		Msg("Cleanup scheduler started")
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.log.Info().Msg("Cleanup scheduler stopped")
}

// RunOnce removes every run directory, and every upload directory, whose
// newest entry is older than the max age. It returns the number of
// directories removed and bytes freed. A zero max age disables cleanup.
func (s *Scheduler) RunOnce() (int, int64) {
	if s.maxAge <= 0 {
		return 0, 0
	}

	count, size := s.sweep(s.workDir, RunDirPrefix)
	if s.uploadDir != "" {
		n, sz := s.sweep(s.uploadDir, "")
		count += n
		size += sz
	}

	if count > 0 {
		s.log.Info().
			Int("dirs", count).
			Float64("freed_mb", float64(size)/(1024*1024)).
			Msg("Cleanup complete")
	}
	return count, size
}

// sweep removes the stale directories directly under root whose name starts
// with prefix
func (s *Scheduler) sweep(root, prefix string) (int, int64) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) && root == s.uploadDir {
		return 0, 0
	}
	if err != nil {
		s.log.Error().Err(err).Str("dir", root).Msg("Error during cleanup")
		return 0, 0
	}

	now := s.now()
	var deletedCount int
	var deletedSize int64

	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		newest, size := scan(dir)

		age := now.Sub(newest)
		if age <= s.maxAge {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn().Err(err).Str("dir", dir).Msg("Failed to delete stale dir")
			continue
		}
		deletedCount++
		deletedSize += size
		s.log.Info().
			Str("dir", dir).
			Dur("age", age.Round(time.Hour)).
			Int64("size_kb", size/1024).
			Msg("Deleted stale dir")
	}
	return deletedCount, deletedSize
}

// scan returns the newest modification time and total size under dir
func scan(dir string) (time.Time, int64) {
	var newest time.Time
	var size int64
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		if !d.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return newest, size
}

// EnsureDir creates the work directory if it doesn't exist
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	l := logging.WithComponent("cleanup")
	l.Debug().Str("dir", dir).Msg("Work directory ready")
	return nil
}
