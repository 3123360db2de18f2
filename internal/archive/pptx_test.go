package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
)

func buildPptx(t *testing.T, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "deck.pptx")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, body := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(body))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return p
}

var audioExts = []string{".m4a", ".mp3", ".wav", ".wma", ".aac"}

func TestExtractAudio_NumericOrder(t *testing.T) {
	entries := map[string]string{
		"[Content_Types].xml":         "<xml/>",
		"ppt/slides/slide1.xml":       "<slide/>",
		"ppt/media/image1.png":        "png",
		"ppt/media/nested/media0.m4a": "skip",
	}
	for i := 1; i <= 12; i++ {
		entries[fmt.Sprintf("ppt/media/media%d.m4a", i)] = fmt.Sprintf("audio %d", i)
	}
	src := buildPptx(t, entries)
	dest := t.TempDir()

	files, err := ExtractAudio(src, dest, audioExts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 12 {
		t.Fatalf("expected 12 audio files, got %d", len(files))
	}
	for i, f := range files {
		if f.Key != i+1 {
			t.Errorf("position %d: expected media%d, got %s", i, i+1, f.Name)
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			t.Fatalf("read %s: %v", f.Path, err)
		}
		if string(data) != fmt.Sprintf("audio %d", i+1) {
			t.Errorf("%s: unexpected content %q", f.Name, data)
		}
	}
}

func TestExtractAudio_MixedExtensions(t *testing.T) {
	src := buildPptx(t, map[string]string{
		"ppt/media/media3.MP3": "c",
		"ppt/media/media1.wav": "a",
		"ppt/media/media2.mp4": "video",
	})
	files, err := ExtractAudio(src, t.TempDir(), audioExts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 || files[0].Name != "media1.wav" || files[1].Name != "media3.MP3" {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestExtractAudio_NoNumericSuffix(t *testing.T) {
	src := buildPptx(t, map[string]string{"ppt/media/narration.m4a": "x"})
	if _, err := ExtractAudio(src, t.TempDir(), audioExts); !errors.Is(err, failure.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestExtractAudio_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "deck.pptx")
	os.WriteFile(p, []byte("not a zip"), 0644)
	if _, err := ExtractAudio(p, t.TempDir(), audioExts); !errors.Is(err, failure.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSortKey(t *testing.T) {
	tests := map[string]int{
		"media1.m4a":   1,
		"media12.m4a":  12,
		"media007.mp3": 7,
		"audio2b.wav":  2,
	}
	for name, want := range tests {
		got, err := SortKey(name)
		if err != nil || got != want {
			t.Errorf("SortKey(%s) = %d, %v; want %d", name, got, err, want)
		}
	}
}
