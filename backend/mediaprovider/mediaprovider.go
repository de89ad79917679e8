package mediaprovider

import (
	"context"
	"errors"
)

var (
	ErrNoFilesSelected  = errors.New("no files selected")
	ErrNoFolderSelected = errors.New("no folder selected")
	ErrNoValidFiles     = errors.New("no valid audio files selected")
	ErrNoAudioFound     = errors.New("no audio files found")
)

// FileService picks audio files on the host and reads their metadata.
type FileService interface {
	// PickAudioFiles asks the user to choose audio files.
	PickAudioFiles(ctx context.Context) ([]string, error)

	// PickAudioFolder asks the user to choose a folder and returns
	// the audio files found beneath it.
	PickAudioFolder(ctx context.Context) ([]string, error)

	GetMetadata(ctx context.Context, path string) (*Track, error)

	// GetMultipleMetadata returns one Track per path, in order.
	GetMultipleMetadata(ctx context.Context, paths []string) ([]*Track, error)
}
