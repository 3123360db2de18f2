package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

func TestDefaultOutputPath(t *testing.T) {
	tests := map[string]string{
		"/data/lecture.mp4":       "/data/lecture_transcript.txt",
		"/data/deck.v2.pptx":      "/data/deck.v2_transcript.txt",
		"/data/audio/notes.m4a":   "/data/audio/notes_transcript.txt",
		"relative/recording.webm": "relative/recording_transcript.txt",
	}
	for src, want := range tests {
		if got := DefaultOutputPath(src); got != want {
			t.Errorf("DefaultOutputPath(%s) = %s, want %s", src, got, want)
		}
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := WriteFileAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("expected replaced content, got %q", data)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.txt")
	if err := WriteFileAtomic(path, []byte("x"), 0644); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLocalStorage_OutputPath(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)
	ls.now = func() time.Time { return time.Date(2025, 1, 23, 14, 30, 22, 0, time.UTC) }

	got, err := ls.OutputPath("/in/week 3: intro.mp4")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "2025", "01", "23", "20250123_143022_week 3_ intro_transcript.txt")
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if info, err := os.Stat(filepath.Dir(got)); err != nil || !info.IsDir() {
		t.Errorf("date directory not created: %v", err)
	}

	next, _ := NewLocalStorage("").OutputPath("/in/talk.mp4")
	if next != "/in/talk_transcript.txt" {
		t.Errorf("expected default path without output dir, got %s", next)
	}
}

func TestLocalStorage_SaveMeta(t *testing.T) {
	dir := t.TempDir()
	rec := types.RunRecord{
		RunID:      "run-1",
		Kind:       types.SourceVideo,
		SourcePath: "/in/talk.mp4",
		OutputPath: filepath.Join(dir, "talk_transcript.txt"),
		Status:     types.StatusCompleted,
		Sections:   3,
		Duration:   2000,
		WordCount:  42,
	}

	path, err := NewLocalStorage("").SaveMeta(rec)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "talk_transcript_meta.json") {
		t.Errorf("unexpected meta path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if meta["run_id"] != "run-1" || meta["sections"] != float64(3) || meta["kind"] != "video" {
		t.Errorf("unexpected metadata %v", meta)
	}
}

func openDB(t *testing.T) *MetadataDB {
	t.Helper()
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMetadataDB_Runs(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := types.RunRecord{
		RunID:      "a",
		Kind:       types.SourcePresentation,
		SourcePath: "/in/deck.pptx",
		OutputPath: "/in/deck_transcript.txt",
		Status:     types.StatusProcessing,
		CreatedAt:  created,
	}
	if err := db.SaveRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.Status = types.StatusCompleted
	rec.Sections = 12
	rec.WordCount = 900
	rec.FinishedAt = created.Add(time.Minute)
	if err := db.SaveRun(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetRun(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusCompleted || got.Sections != 12 || got.Kind != types.SourcePresentation {
		t.Errorf("unexpected record %+v", got)
	}
	if !got.FinishedAt.Equal(rec.FinishedAt) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, rec.FinishedAt)
	}

	if err := db.SaveRun(ctx, types.RunRecord{RunID: "b", Kind: types.SourceAudio, Status: types.StatusFailed,
		Error: "boom", CreatedAt: created.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "b" || runs[1].RunID != "a" {
		t.Errorf("expected newest first, got %+v", runs)
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Errorf("unfinished run should have zero finished_at")
	}

	if _, err := db.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMetadataDB_Checkpoints(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	s0 := types.Section{Index: 0, Window: types.Window{Index: 0, Start: 0, End: 900}, Duration: 900,
		Utterances: []types.Utterance{{Start: 1.5, End: 3, Text: "hello"}}}
	s1 := types.Section{Index: 1, Window: types.Window{Index: 1, Start: 900, End: 1000}, Duration: 100}

	for _, s := range []types.Section{s0, s1} {
		if err := db.SaveSection(ctx, "key", s); err != nil {
			t.Fatal(err)
		}
	}
	// saving again replaces
	s1.Utterances = []types.Utterance{{Start: 2, Text: "again"}}
	if err := db.SaveSection(ctx, "key", s1); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSection(ctx, "other", s0); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadSections(ctx, "key")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(got))
	}
	if got[0].Utterances[0].Text != "hello" || got[0].Window.End != 900 {
		t.Errorf("section 0 not restored: %+v", got[0])
	}
	if len(got[1].Utterances) != 1 || got[1].Utterances[0].Text != "again" || got[1].Duration != 100 {
		t.Errorf("section 1 not replaced: %+v", got[1])
	}

	if err := db.ClearSections(ctx, "key"); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.LoadSections(ctx, "key"); len(got) != 0 {
		t.Errorf("expected cleared sections, got %d", len(got))
	}
	if got, _ := db.LoadSections(ctx, "other"); len(got) != 1 {
		t.Errorf("clearing one key must not affect another")
	}
}
