package local

import (
	"errors"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/sqweek/dialog"
)

// Picker shows host file-selection dialogs.
// An empty result with a nil error means the user cancelled.
type Picker interface {
	PickFile() (string, error)
	PickFolder() (string, error)
}

// NativePicker shows the operating system's dialogs.
type NativePicker struct {
	// folder the dialogs open in, if set
	StartDir string
}

func (n NativePicker) PickFile() (string, error) {
	b := dialog.File().
		Title("Select Audio Files").
		Filter("Audio Files", SupportedFormats...)
	b.StartDir = n.StartDir
	path, err := b.Load()
	if errors.Is(err, dialog.ErrCancelled) {
		return "", nil
	}
	return path, err
}

func (n NativePicker) PickFolder() (string, error) {
	b := dialog.Directory().Title("Select Music Folder")
	b.StartDir = n.StartDir
	path, err := b.Browse()
	if errors.Is(err, dialog.ErrCancelled) {
		return "", nil
	}
	return path, err
}

// NoPicker is used when no dialogs can be shown.
type NoPicker struct{}

func (NoPicker) PickFile() (string, error) {
	return "", mediaprovider.ErrNoFilesSelected
}

func (NoPicker) PickFolder() (string, error) {
	return "", mediaprovider.ErrNoFolderSelected
}
