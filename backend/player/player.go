package player

import (
	"context"
	"errors"
	"math"
	"sync"
)

// Names of the push notifications an audio backend emits.
const (
	EventStateChanged = "audio:state_changed"
	EventTrackEnded   = "audio:track_ended"
)

// Error returned by Play and Pause if no track has been loaded.
var ErrNoTrackLoaded = errors.New("no track loaded")

// PlaybackState is a point-in-time snapshot of the audio backend's transport.
type PlaybackState struct {
	IsPlaying    bool    `json:"is_playing"`
	CurrentTime  float64 `json:"current_time"`
	Duration     float64 `json:"duration"`
	Volume       float64 `json:"volume"`
	CurrentTrack *string `json:"current_track"`
}

// TrackPath returns the path of the loaded track, or "" if none.
func (s PlaybackState) TrackPath() string {
	if s.CurrentTrack == nil {
		return ""
	}
	return *s.CurrentTrack
}

// Backend is the contract of an audio backend, local or remote.
// Every transport call returns the backend state after the call.
type Backend interface {
	LoadTrack(ctx context.Context, path string) (PlaybackState, error)
	Play(ctx context.Context) (PlaybackState, error)
	Pause(ctx context.Context) (PlaybackState, error)
	Stop(ctx context.Context) (PlaybackState, error)
	SetVolume(ctx context.Context, vol float64) (PlaybackState, error)
	CheckFinished(ctx context.Context) (bool, error)

	// Event API. The returned func removes the subscription.
	OnStateChanged(func(PlaybackState)) func()
	OnTrackEnded(func(PlaybackState)) func()
}

// Engine is a low-level audio output that decodes and plays a single file.
type Engine interface {
	// Load replaces the current file and leaves it paused at the start.
	// Returns the duration in seconds (0 if unknown).
	Load(path string) (float64, error)
	Play() error
	Pause() error
	// Unload stops output and releases the current file.
	Unload() error
	SetVolume(vol float64) error
	// Position returns the playback position in seconds.
	Position() float64
	// IsFinished reports whether the output has no more audio to play,
	// including when nothing is loaded.
	IsFinished() bool
	Destroy()
}

// ClampVolume limits vol to [0, 1]. NaN maps to 0.
func ClampVolume(vol float64) float64 {
	if math.IsNaN(vol) || vol < 0 {
		return 0
	} else if vol > 1 {
		return 1
	}
	return vol
}

type subscription struct {
	id int
	cb func(PlaybackState)
}

// BackendCallbackImpl implements the event API of Backend.
// Safe for concurrent use.
type BackendCallbackImpl struct {
	mu             sync.Mutex
	nextID         int
	onStateChanged []subscription
	onTrackEnded   []subscription
}

// Registers a callback which is invoked whenever the backend state changes.
func (b *BackendCallbackImpl) OnStateChanged(cb func(PlaybackState)) func() {
	return b.subscribe(&b.onStateChanged, cb)
}

// Registers a callback which is invoked when the loaded track has played to the end.
func (b *BackendCallbackImpl) OnTrackEnded(cb func(PlaybackState)) func() {
	return b.subscribe(&b.onTrackEnded, cb)
}

func (b *BackendCallbackImpl) InvokeOnStateChanged(s PlaybackState) {
	for _, cb := range b.snapshot(&b.onStateChanged) {
		cb(s)
	}
}

func (b *BackendCallbackImpl) InvokeOnTrackEnded(s PlaybackState) {
	for _, cb := range b.snapshot(&b.onTrackEnded) {
		cb(s)
	}
}

func (b *BackendCallbackImpl) subscribe(list *[]subscription, cb func(PlaybackState)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	*list = append(*list, subscription{id: id, cb: cb})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range *list {
			if s.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func (b *BackendCallbackImpl) snapshot(list *[]subscription) []func(PlaybackState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cbs := make([]func(PlaybackState), len(*list))
	for i, s := range *list {
		cbs[i] = s.cb
	}
	return cbs
}
