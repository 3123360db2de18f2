package chunking

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
)

// fakeClipper writes size bytes per clip and can fail a given window start
type fakeClipper struct {
	mu      sync.Mutex
	size    int
	failAt  float64
	failErr error
	clips   []string
}

func (f *fakeClipper) Clip(_ context.Context, _, dst string, start, _ float64) error {
	f.mu.Lock()
	f.clips = append(f.clips, filepath.Base(dst))
	f.mu.Unlock()

	if f.failErr != nil && start == f.failAt {
		// simulate a half-written file before the codec error
		os.WriteFile(dst, []byte("partial"), 0644)
		return f.failErr
	}
	return os.WriteFile(dst, make([]byte, f.size), 0644)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExport_DeterministicNames(t *testing.T) {
	windows, _ := Segment(2000, 900)
	dest := t.TempDir()
	clipper := &fakeClipper{size: 128}

	artifacts, err := NewExporter(clipper, ".mp3", 0).Export(context.Background(), "/videos/lecture 01.mp4", windows, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"lecture 01_part000.mp3", "lecture 01_part001.mp3", "lecture 01_part002.mp3"}
	for i, a := range artifacts {
		if filepath.Base(a.Path) != want[i] {
			t.Errorf("artifact %d: expected %s, got %s", i, want[i], filepath.Base(a.Path))
		}
		if a.Window != windows[i] {
			t.Errorf("artifact %d carries window %+v, want %+v", i, a.Window, windows[i])
		}
		if a.Size != 128 {
			t.Errorf("artifact %d: expected size 128, got %d", i, a.Size)
		}
	}

	// no temp files survive and listing order equals chunk order
	names := listDir(t, dest)
	sort.Strings(names)
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected directory contents %v", names)
	}
	for _, c := range clipper.clips {
		if !strings.Contains(c, ".tmp.") {
			t.Errorf("expected clip to be written to a temp name, got %s", c)
		}
	}
}

func TestExport_StableAcrossRuns(t *testing.T) {
	windows, _ := Segment(3600, 300)
	var runs [2][]string
	for r := range runs {
		artifacts, err := NewExporter(&fakeClipper{size: 1}, "mp3", 0).Export(context.Background(), "talk.wav", windows, t.TempDir())
		if err != nil {
			t.Fatalf("run %d: %v", r, err)
		}
		for _, a := range artifacts {
			runs[r] = append(runs[r], filepath.Base(a.Path))
		}
	}
	if strings.Join(runs[0], ",") != strings.Join(runs[1], ",") {
		t.Errorf("names differ between runs: %v vs %v", runs[0], runs[1])
	}
}

func TestArtifactName_Padding(t *testing.T) {
	tests := []struct {
		index, count int
		want         string
	}{
		{0, 1, "a_part000.mp3"},
		{7, 12, "a_part007.mp3"},
		{999, 1000, "a_part999.mp3"},
		{5, 1001, "a_part0005.mp3"},
		{12345, 20000, "a_part12345.mp3"},
	}
	for _, tt := range tests {
		if got := ArtifactName("/x/a.mp4", tt.index, tt.count, ".mp3"); got != tt.want {
			t.Errorf("ArtifactName(%d, %d) = %s, want %s", tt.index, tt.count, got, tt.want)
		}
	}
}

func TestExport_FailureRemovesArtifacts(t *testing.T) {
	windows, _ := Segment(2000, 900)
	dest := t.TempDir()
	clipper := &fakeClipper{size: 10, failAt: 900, failErr: failure.IO("ffmpeg", errors.New("codec error"))}

	_, err := NewExporter(clipper, ".mp3", 0).Export(context.Background(), "lecture.mp4", windows, dest)
	if !errors.Is(err, failure.ErrIOFailure) {
		t.Fatalf("expected io failure, got %v", err)
	}
	var se *failure.StageError
	if !errors.As(err, &se) || se.Stage != failure.StageExport || se.Index != 1 {
		t.Fatalf("expected export stage error for chunk 1, got %v", err)
	}
	if names := listDir(t, dest); len(names) != 0 {
		t.Errorf("expected destination to be emptied, found %v", names)
	}
}

func TestExport_PayloadTooLarge(t *testing.T) {
	windows, _ := Segment(100, 50)
	dest := t.TempDir()

	_, err := NewExporter(&fakeClipper{size: 2048}, ".mp3", 1024).Export(context.Background(), "lecture.mp4", windows, dest)
	if !errors.Is(err, failure.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if !errors.Is(err, failure.ErrIOFailure) || errors.Is(err, failure.ErrInvalidArgument) {
		t.Errorf("payload errors should classify as io failure, got %v", err)
	}
	if names := listDir(t, dest); len(names) != 0 {
		t.Errorf("oversized artifact left behind: %v", names)
	}
}

func TestExport_Destination(t *testing.T) {
	windows, _ := Segment(10, 5)
	exp := NewExporter(&fakeClipper{size: 1}, ".mp3", 0)

	notEmpty := t.TempDir()
	os.WriteFile(filepath.Join(notEmpty, "other.mp3"), []byte("x"), 0644)

	file := filepath.Join(t.TempDir(), "file.txt")
	os.WriteFile(file, []byte("x"), 0644)

	for name, dest := range map[string]string{
		"missing":   filepath.Join(t.TempDir(), "nope"),
		"not empty": notEmpty,
		"file":      file,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := exp.Export(context.Background(), "a.mp4", windows, dest); !errors.Is(err, failure.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestExport_Cancelled(t *testing.T) {
	windows, _ := Segment(10, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExporter(&fakeClipper{size: 1}, ".mp3", 0).Export(ctx, "a.mp4", windows, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

var _ Clipper = (*fakeClipper)(nil)
