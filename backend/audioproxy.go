package backend

import (
	"context"
	"fmt"
	"log"

	"github.com/dweymouth/localsonic/backend/player"
)

// AudioProxy issues commands to an audio backend on behalf of the playback loop
// and caches the most recent state the backend reported.
// Failures are reported once through the error handler and never retried;
// the cached state is left untouched when a call fails.
// Not safe for concurrent use.
type AudioProxy struct {
	backend player.Backend
	state   player.PlaybackState
	lastErr string
	onError func(string)
}

func NewAudioProxy(b player.Backend, onError func(string)) *AudioProxy {
	return &AudioProxy{backend: b, onError: onError, state: player.PlaybackState{Volume: 1}}
}

// State returns the cached backend state.
func (a *AudioProxy) State() player.PlaybackState {
	return a.state
}

// LastError returns the message of the last failed call,
// or "" if the last call succeeded.
func (a *AudioProxy) LastError() string {
	return a.lastErr
}

func (a *AudioProxy) LoadTrack(ctx context.Context, path string) bool {
	return a.call("load track", func() (player.PlaybackState, error) {
		return a.backend.LoadTrack(ctx, path)
	})
}

func (a *AudioProxy) Play(ctx context.Context) bool {
	return a.call("play", func() (player.PlaybackState, error) {
		return a.backend.Play(ctx)
	})
}

func (a *AudioProxy) Pause(ctx context.Context) bool {
	return a.call("pause", func() (player.PlaybackState, error) {
		return a.backend.Pause(ctx)
	})
}

func (a *AudioProxy) Stop(ctx context.Context) bool {
	return a.call("stop", func() (player.PlaybackState, error) {
		return a.backend.Stop(ctx)
	})
}

func (a *AudioProxy) SetVolume(ctx context.Context, vol float64) bool {
	return a.call("set volume", func() (player.PlaybackState, error) {
		return a.backend.SetVolume(ctx, player.ClampVolume(vol))
	})
}

// CheckFinished asks whether the loaded track has played out.
// Errors are logged and count as not finished.
func (a *AudioProxy) CheckFinished(ctx context.Context) bool {
	fin, err := a.backend.CheckFinished(ctx)
	if err != nil {
		log.Printf("check finished error: %v", err)
		return false
	}
	return fin
}

// Apply overwrites the cached state with one pushed by the backend.
func (a *AudioProxy) Apply(s player.PlaybackState) {
	a.state = s
}

// MarkStopped clears the cached is-playing flag.
func (a *AudioProxy) MarkStopped() {
	a.state.IsPlaying = false
}

func (a *AudioProxy) call(op string, f func() (player.PlaybackState, error)) bool {
	a.lastErr = ""
	s, err := f()
	if err != nil {
		a.lastErr = fmt.Sprintf("Failed to %s: %v", op, err)
		log.Println(a.lastErr)
		if a.onError != nil {
			a.onError(a.lastErr)
		}
		return false
	}
	a.state = s
	return true
}
