package handlers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPathPolicy_Source(t *testing.T) {
	uploads, shared, outside := t.TempDir(), t.TempDir(), t.TempDir()
	for _, p := range []string{
		filepath.Join(uploads, "a.mp4"),
		filepath.Join(shared, "b.mp3"),
		filepath.Join(outside, "c.mp3"),
	} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	link := filepath.Join(uploads, "link.mp3")
	if err := os.Symlink(filepath.Join(outside, "c.mp3"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	policy := PathPolicy{SourceDirs: []string{uploads, shared}}
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absolute in first dir", filepath.Join(uploads, "a.mp4"), false},
		{"relative to first dir", "a.mp4", false},
		{"second dir", filepath.Join(shared, "b.mp3"), false},
		{"outside", filepath.Join(outside, "c.mp3"), true},
		{"dot dot", filepath.Join(uploads, "..", filepath.Base(outside), "c.mp3"), true},
		{"symlink out", link, true},
		{"missing", filepath.Join(uploads, "nope.mp4"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := policy.Source(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Source(%s) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPathNotAllowed) {
				t.Errorf("expected ErrPathNotAllowed, got %v", err)
			}
		})
	}

	if _, err := (PathPolicy{}).Source(filepath.Join(uploads, "a.mp4")); !errors.Is(err, ErrPathNotAllowed) {
		t.Errorf("no source dirs must reject, got %v", err)
	}
}

func TestPathPolicy_Output(t *testing.T) {
	out, outside := t.TempDir(), t.TempDir()
	os.Mkdir(filepath.Join(out, "week1"), 0755)
	escape := filepath.Join(out, "escape")
	if err := os.Symlink(outside, escape); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	os.Symlink(filepath.Join(outside, "x.txt"), filepath.Join(out, "dangling.txt"))

	policy := PathPolicy{OutputDir: out}
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"empty stays empty", "", "", false},
		{"relative", "t.txt", "t.txt", false},
		{"nested", "week1/t.txt", filepath.Join("week1", "t.txt"), false},
		{"absolute inside", filepath.Join(out, "t.txt"), "t.txt", false},
		{"absolute outside", filepath.Join(outside, "t.txt"), "", true},
		{"dot dot", "../t.txt", "", true},
		{"root itself", out, "", true},
		{"through symlinked dir", "escape/t.txt", "", true},
		{"symlink file", "dangling.txt", "", true},
		{"missing parent", "nope/t.txt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := policy.Output(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Output(%s) = %q, %v; wantErr %v", tt.path, got, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			want := tt.want
			if want != "" {
				want = filepath.Join(resolvedRoot(out), tt.want)
			}
			if got != want {
				t.Errorf("Output(%s) = %q, want %q", tt.path, got, want)
			}
		})
	}

	if _, err := (PathPolicy{}).Output("t.txt"); !errors.Is(err, ErrPathNotAllowed) {
		t.Errorf("empty output dir must reject client outputs, got %v", err)
	}
}
