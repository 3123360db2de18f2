// Package archive reads narration audio out of presentation archives.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/failure"
)

// MediaDir is the archive directory holding embedded media
const MediaDir = "ppt/media/"

// MediaFile is one extracted audio entry
type MediaFile struct {
	Name string // entry base name, e.g. media12.m4a
	Key  int    // integer embedded in the stem
	Path string // extracted location
}

var stemDigits = regexp.MustCompile(`(\d+)\D*$`)

// SortKey returns the integer embedded in a media file stem: media12.m4a -> 12.
// The last run of digits is used.
func SortKey(name string) (int, error) {
	stem := strings.TrimSuffix(name, path.Ext(name))
	m := stemDigits.FindStringSubmatch(stem)
	if m == nil {
		return 0, failure.Invalid("media entry %s has no numeric suffix", name)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, failure.Invalid("media entry %s: %v", name, err)
	}
	return n, nil
}

// ExtractAudio copies every ppt/media entry whose extension is in exts into
// dest and returns them ordered by SortKey. Ties keep name order.
func ExtractAudio(src, dest string, exts []string) ([]MediaFile, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, failure.Invalid("open presentation %s: %v", filepath.Base(src), err)
	}
	defer r.Close()

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var files []MediaFile
	for _, entry := range r.File {
		if entry.FileInfo().IsDir() || !strings.HasPrefix(entry.Name, MediaDir) {
			continue
		}
		name := path.Base(entry.Name)
		// nested directories under ppt/media are not slide media
		if entry.Name != MediaDir+name || !allowed[strings.ToLower(path.Ext(name))] {
			continue
		}

		key, err := SortKey(name)
		if err != nil {
			return nil, err
		}

		target := filepath.Join(dest, name)
		if err := extractEntry(entry, target); err != nil {
			return nil, err
		}
		files = append(files, MediaFile{Name: name, Key: key, Path: target})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Key != files[j].Key {
			return files[i].Key < files[j].Key
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func extractEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return failure.IO("open archive entry "+entry.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return failure.IO("create "+filepath.Base(target), err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return failure.IO(fmt.Sprintf("extract %s", entry.Name), err)
	}
	if err := out.Close(); err != nil {
		return failure.IO("close "+filepath.Base(target), err)
	}
	return nil
}
