package local

import (
	"context"
	"log"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
)

var _ mediaprovider.FileService = (*Provider)(nil)

// Provider is a FileService for the local file system.
type Provider struct {
	picker Picker
}

func NewProvider(p Picker) *Provider {
	if p == nil {
		p = NoPicker{}
	}
	return &Provider{picker: p}
}

func (p *Provider) PickAudioFiles(ctx context.Context) ([]string, error) {
	path, err := p.picker.PickFile()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, mediaprovider.ErrNoFilesSelected
	}
	return validPaths([]string{path})
}

func (p *Provider) PickAudioFolder(ctx context.Context) ([]string, error) {
	dir, err := p.picker.PickFolder()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, mediaprovider.ErrNoFolderSelected
	}
	return ScanDirectory(dir)
}

func (p *Provider) GetMetadata(_ context.Context, path string) (*mediaprovider.Track, error) {
	return ExtractMetadata(path)
}

// GetMultipleMetadata never fails as a whole: files whose metadata
// cannot be read get fallback tracks.
func (p *Provider) GetMultipleMetadata(ctx context.Context, paths []string) ([]*mediaprovider.Track, error) {
	tracks := make([]*mediaprovider.Track, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := ExtractMetadata(path)
		if err != nil {
			log.Printf("failed to read metadata for %s: %v", path, err)
			tr = mediaprovider.FallbackTrack(path)
		}
		tracks = append(tracks, tr)
	}
	return tracks, nil
}

func validPaths(paths []string) ([]string, error) {
	valid := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := ValidateAudioFile(path); err != nil {
			log.Printf("skipping invalid selection: %v", err)
			continue
		}
		valid = append(valid, path)
	}
	if len(valid) == 0 {
		return nil, mediaprovider.ErrNoValidFiles
	}
	return valid, nil
}
