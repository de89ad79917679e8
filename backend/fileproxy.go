package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
)

// FileProxy wraps a FileService so that its failures never reach the playlist:
// picker errors are reported and yield no paths, and metadata errors
// yield fallback tracks.
type FileProxy struct {
	files   mediaprovider.FileService
	onError func(string)
}

func NewFileProxy(f mediaprovider.FileService, onError func(string)) *FileProxy {
	return &FileProxy{files: f, onError: onError}
}

func (f *FileProxy) PickAudioFiles(ctx context.Context) []string {
	paths, err := f.files.PickAudioFiles(ctx)
	if err != nil {
		f.report("pick files", err)
		return nil
	}
	return paths
}

func (f *FileProxy) PickAudioFolder(ctx context.Context) []string {
	paths, err := f.files.PickAudioFolder(ctx)
	if err != nil {
		f.report("pick folder", err)
		return nil
	}
	return paths
}

func (f *FileProxy) GetMetadata(ctx context.Context, path string) *mediaprovider.Track {
	tr, err := f.files.GetMetadata(ctx, path)
	if err != nil || tr == nil {
		f.report("get metadata", err)
		return fallbackTrack(path)
	}
	return tr
}

// GetMultipleMetadata returns exactly one track per path, in order.
func (f *FileProxy) GetMultipleMetadata(ctx context.Context, paths []string) []*mediaprovider.Track {
	if len(paths) == 0 {
		return nil
	}
	trs, err := f.files.GetMultipleMetadata(ctx, paths)
	if err == nil && len(trs) != len(paths) {
		err = fmt.Errorf("expected %d tracks, got %d", len(paths), len(trs))
	}
	if err != nil {
		f.report("get metadata", err)
		trs = make([]*mediaprovider.Track, len(paths))
	}
	for i, tr := range trs {
		if tr == nil {
			trs[i] = fallbackTrack(paths[i])
		}
	}
	return trs
}

func (f *FileProxy) report(op string, err error) {
	if err == nil {
		err = errors.New("no result")
	}
	msg := fmt.Sprintf("Failed to %s: %v", op, err)
	log.Println(msg)
	if f.onError != nil {
		f.onError(msg)
	}
}

// fallbackTrack uses the full file name as title,
// as the file could not be inspected.
func fallbackTrack(path string) *mediaprovider.Track {
	tr := mediaprovider.FallbackTrack(path)
	tr.Title = filepath.Base(path)
	return tr
}
