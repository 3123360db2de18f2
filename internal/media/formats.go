package media

import (
	"path/filepath"
	"strings"
)

var audioFormats = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma", ".opus"}

// ValidateAudioFormat checks if the file format is a supported standalone audio source
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range audioFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// Stem returns the file name without directory and extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
