package local

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charlievieth/strcase"
)

// File extensions (without the dot) that can be played.
var SupportedFormats = []string{"mp3", "flac", "wav", "ogg", "m4a", "aac", "opus", "wma"}

// IsSupportedFormat reports whether path has a supported audio extension.
// The comparison ignores case.
func IsSupportedFormat(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(SupportedFormats, func(f string) bool {
		return strcase.EqualFold(ext, f)
	})
}

// ValidateAudioFile checks that path names an existing regular file
// with a supported extension.
func ValidateAudioFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("invalid file path: %s", path)
	}
	if !IsSupportedFormat(path) {
		return fmt.Errorf("unsupported file format: %s", path)
	}
	return nil
}
