package mediaprovider

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const UnknownArtist = "Unknown Artist"

// Track is an audio file and the metadata read from it.
// Tracks are not modified once created.
type Track struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration"`
	FilePath string  `json:"file_path"`
}

func (t *Track) Copy() *Track {
	new := *t
	return &new
}

// TrackIDForPath returns the stable identifier of the file at path.
func TrackIDForPath(path string) string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(filepath.Clean(path))).String()
}

// FallbackTrack synthesizes a Track for a file whose metadata could not be read:
// the file name as title, an unknown artist and no duration.
func FallbackTrack(path string) *Track {
	return &Track{
		ID:       TrackIDForPath(path),
		Title:    TitleFromPath(path),
		Artist:   UnknownArtist,
		FilePath: path,
	}
}

// TitleFromPath returns the file name of path without its extension.
func TitleFromPath(path string) string {
	name := filepath.Base(path)
	if title := strings.TrimSuffix(name, filepath.Ext(name)); title != "" {
		return title
	}
	return name
}
