package ipc

import (
	"fmt"

	"github.com/dweymouth/localsonic/backend/player"
)

// Socket names. The app listens on AppSocket for remote control;
// an out-of-process audio backend listens on EngineSocket.
const (
	AppSocket    = "localsonic"
	EngineSocket = "localsonic-engine"
)

const (
	PingPath = "/ping"

	// audio backend
	LoadTrackPath     = "/audio/load"
	AudioPlayPath     = "/audio/play"
	AudioPausePath    = "/audio/pause"
	AudioStopPath     = "/audio/stop"
	AudioVolumePath   = "/audio/volume"
	AudioStatePath    = "/audio/state"
	CheckFinishedPath = "/audio/finished"
	EventsPath        = "/events" // websocket

	// file and metadata service
	PickFilesPath     = "/files/pick"
	PickFolderPath    = "/files/pick-folder"
	MetadataPath      = "/metadata"
	MetadataBatchPath = "/metadata/batch"

	// remote control of a running app
	PlayPath      = "/transport/play"
	PlayPausePath = "/transport/playpause"
	PausePath     = "/transport/pause"
	StopPath      = "/transport/stop"
	PreviousPath  = "/transport/previous"
	NextPath      = "/transport/next"
	VolumePath    = "/volume" // ?v=<vol>
	AddFilesPath  = "/playlist/add"
	QuitPath      = "/quit"
)

type Response struct {
	Error string `json:"error"`
}

type FilePath struct {
	FilePath string `json:"file_path"`
}

type FilePaths struct {
	FilePaths []string `json:"file_paths"`
}

type Volume struct {
	Volume float64 `json:"volume"`
}

type Finished struct {
	Finished bool `json:"finished"`
}

// Event is a push notification sent over the events websocket.
type Event struct {
	Event   string               `json:"event"`
	Payload player.PlaybackState `json:"payload"`
}

func SetVolumePath(vol float64) string {
	return fmt.Sprintf("%s?v=%0.2f", VolumePath, vol)
}
