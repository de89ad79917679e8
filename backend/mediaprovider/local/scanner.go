package local

import (
	"io/fs"
	"log"
	"path/filepath"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ScanDirectory walks root recursively and returns the supported audio files
// beneath it, in collated path order. Unreadable entries are skipped.
func ScanDirectory(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Printf("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsSupportedFormat(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, mediaprovider.ErrNoAudioFound
	}
	collate.New(language.English, collate.Loose).SortStrings(files)
	return files, nil
}
