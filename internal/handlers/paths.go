package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathNotAllowed is returned for client paths outside the configured roots
var ErrPathNotAllowed = errors.New("path not allowed")

// PathPolicy confines client-supplied paths. Sources must resolve inside one
// of SourceDirs; outputs inside OutputDir. An empty OutputDir rejects every
// client output, so transcripts land at the server's default location.
type PathPolicy struct {
	SourceDirs []string
	OutputDir  string
}

// Source resolves a client source path, following symlinks, and checks that
// it stays inside an allowed directory. Relative paths are taken relative to
// the first source dir.
func (p PathPolicy) Source(path string) (string, error) {
	if len(p.SourceDirs) == 0 {
		return "", fmt.Errorf("%w: no source directories configured", ErrPathNotAllowed)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.SourceDirs[0], path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: source %s: %v", ErrPathNotAllowed, path, err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: source %s: %v", ErrPathNotAllowed, path, err)
	}
	for _, root := range p.SourceDirs {
		if within(root, resolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: source %s is outside the allowed directories", ErrPathNotAllowed, path)
}

// Output resolves a client output path inside OutputDir. An empty path stays
// empty. The file itself may not exist yet, so only its parent is resolved.
func (p PathPolicy) Output(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if p.OutputDir == "" {
		return "", fmt.Errorf("%w: output paths are not accepted by this server", ErrPathNotAllowed)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.OutputDir, path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: output %s: %v", ErrPathNotAllowed, path, err)
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("%w: output directory %s: %v", ErrPathNotAllowed, filepath.Dir(path), err)
	}
	resolved := filepath.Join(parent, filepath.Base(path))
	if !within(p.OutputDir, resolved) || resolved == resolvedRoot(p.OutputDir) {
		return "", fmt.Errorf("%w: output %s is outside %s", ErrPathNotAllowed, path, p.OutputDir)
	}
	if info, err := os.Lstat(resolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: output %s is a symlink", ErrPathNotAllowed, path)
	}
	return resolved, nil
}

func resolvedRoot(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Clean(root)
	}
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		return r
	}
	return abs
}

// within reports whether resolved lies inside root or is root itself
func within(root, resolved string) bool {
	rel, err := filepath.Rel(resolvedRoot(root), resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
