package local

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/go-audio/wav"
	"github.com/tcolgate/mp3"
)

// ErrNoArtwork is returned by ReadArtwork if the file has no embedded picture.
var ErrNoArtwork = errors.New("no embedded artwork")

// ExtractMetadata reads the tags and duration of the audio file at path.
// Missing tags fall back to the file name as title and an unknown artist;
// an unknown duration is reported as 0.
func ExtractMetadata(path string) (*mediaprovider.Track, error) {
	if err := ValidateAudioFile(path); err != nil {
		return nil, err
	}
	tr := mediaprovider.FallbackTrack(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if m, err := tag.ReadFrom(f); err == nil {
		if t := strings.TrimSpace(m.Title()); t != "" {
			tr.Title = t
		}
		if a := strings.TrimSpace(m.Artist()); a != "" {
			tr.Artist = a
		}
		tr.Album = strings.TrimSpace(m.Album())
	}

	if dur, err := ReadDuration(path); err == nil {
		tr.Duration = dur
	}
	return tr, nil
}

// ReadDuration returns the duration in seconds of a WAV or MP3 file.
// Other formats return 0 and no error.
func ReadDuration(path string) (float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wavDuration(path)
	case ".mp3":
		return mp3Duration(path)
	}
	return 0, nil
}

// ReadArtwork returns the embedded cover picture of the file at path.
func ReadArtwork(path string) (*tag.Picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}
	if p := m.Picture(); p != nil && len(p.Data) > 0 {
		return p, nil
	}
	return nil, ErrNoArtwork
}

func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file: %s", path)
	}
	dur, err := d.Duration()
	if err != nil {
		return 0, err
	}
	return dur.Seconds(), nil
}

func mp3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := mp3.NewDecoder(f)
	var frame mp3.Frame
	var total float64
	skipped := 0
	for {
		if err := d.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}
	return total, nil
}
