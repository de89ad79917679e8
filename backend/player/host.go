package player

import (
	"context"
	"fmt"
	"sync"
)

var _ Backend = (*Host)(nil)

// Host is an in-process Backend that drives an Engine.
// Every state mutation emits a state-changed notification;
// CheckFinished emits track-ended once the loaded track has played out.
type Host struct {
	BackendCallbackImpl

	mu     sync.Mutex
	engine Engine
	state  PlaybackState
}

// NewHost returns a Host driving e with the given initial volume.
func NewHost(e Engine, volume float64) *Host {
	h := &Host{engine: e}
	h.state.Volume = ClampVolume(volume)
	if err := e.SetVolume(h.state.Volume); err != nil {
		h.state.Volume = 1
	}
	return h
}

func (h *Host) LoadTrack(_ context.Context, path string) (PlaybackState, error) {
	return h.mutate(func(s *PlaybackState) error {
		dur, err := h.engine.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load audio: %w", err)
		}
		p := path
		s.CurrentTrack = &p
		s.Duration = dur
		s.CurrentTime = 0
		s.IsPlaying = false
		return nil
	})
}

func (h *Host) Play(context.Context) (PlaybackState, error) {
	return h.mutate(func(s *PlaybackState) error {
		if s.CurrentTrack == nil {
			return ErrNoTrackLoaded
		}
		if err := h.engine.Play(); err != nil {
			return fmt.Errorf("playback error: %w", err)
		}
		s.IsPlaying = true
		return nil
	})
}

func (h *Host) Pause(context.Context) (PlaybackState, error) {
	return h.mutate(func(s *PlaybackState) error {
		if s.CurrentTrack == nil {
			return ErrNoTrackLoaded
		}
		if err := h.engine.Pause(); err != nil {
			return fmt.Errorf("playback error: %w", err)
		}
		s.IsPlaying = false
		return nil
	})
}

func (h *Host) Stop(context.Context) (PlaybackState, error) {
	return h.mutate(func(s *PlaybackState) error {
		if err := h.engine.Unload(); err != nil {
			return fmt.Errorf("playback error: %w", err)
		}
		s.IsPlaying = false
		s.CurrentTime = 0
		s.CurrentTrack = nil
		return nil
	})
}

func (h *Host) SetVolume(_ context.Context, vol float64) (PlaybackState, error) {
	return h.mutate(func(s *PlaybackState) error {
		vol = ClampVolume(vol)
		if err := h.engine.SetVolume(vol); err != nil {
			return fmt.Errorf("playback error: %w", err)
		}
		s.Volume = vol
		return nil
	})
}

// CheckFinished reports whether the engine has nothing left to play.
// When a loaded track has played out, the state is moved to its end
// and a track-ended notification is emitted.
func (h *Host) CheckFinished(context.Context) (bool, error) {
	h.mu.Lock()
	finished := h.engine.IsFinished()
	if !finished || h.state.CurrentTrack == nil {
		h.mu.Unlock()
		return finished, nil
	}
	h.state.IsPlaying = false
	h.state.CurrentTime = h.state.Duration
	st := h.state
	h.mu.Unlock()

	h.InvokeOnTrackEnded(st)
	return true, nil
}

// State returns the current state with a fresh playback position.
func (h *Host) State() PlaybackState {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshPosition()
	return h.state
}

// Destroy releases the underlying engine.
func (h *Host) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.engine.Destroy()
}

func (h *Host) mutate(f func(*PlaybackState) error) (PlaybackState, error) {
	h.mu.Lock()
	if err := f(&h.state); err != nil {
		st := h.state
		h.mu.Unlock()
		return st, err
	}
	h.refreshPosition()
	st := h.state
	h.mu.Unlock()

	h.InvokeOnStateChanged(st)
	return st, nil
}

func (h *Host) refreshPosition() {
	if h.state.CurrentTrack == nil {
		return
	}
	if h.state.IsPlaying || h.state.CurrentTime < h.state.Duration {
		h.state.CurrentTime = h.engine.Position()
	}
}
