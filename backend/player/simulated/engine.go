// Package simulated provides an audio engine that plays silence in real time.
// It is used when no audio output is available, and in tests.
package simulated

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dweymouth/localsonic/backend/player"
	"github.com/dweymouth/localsonic/backend/util"
)

var _ player.Engine = (*Engine)(nil)

var ErrUnknownDuration = errors.New("could not determine duration")

// DurationFunc reads the duration in seconds of the file at path.
type DurationFunc func(path string) (float64, error)

// Engine advances a wall clock while "playing" and reports
// the track as finished once the clock reaches its duration.
type Engine struct {
	mu       sync.Mutex
	duration DurationFunc
	clock    util.Stopwatch
	path     string
	length   time.Duration
	volume   float64
}

func New(d DurationFunc) *Engine {
	return &Engine{duration: d, volume: 1}
}

func (e *Engine) Load(path string) (float64, error) {
	secs, err := e.duration(path)
	if err != nil {
		return 0, err
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDuration, path)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Reset()
	e.path = path
	e.length = time.Duration(secs * float64(time.Second))
	return secs, nil
}

func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.path == "" {
		return player.ErrNoTrackLoaded
	}
	e.clock.Start()
	return nil
}

func (e *Engine) Pause() error {
	e.clock.Stop()
	return nil
}

func (e *Engine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Reset()
	e.path = ""
	e.length = 0
	return nil
}

func (e *Engine) SetVolume(vol float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = player.ClampVolume(vol)
	return nil
}

func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return min(e.clock.Elapsed(), e.length).Seconds()
}

func (e *Engine) IsFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path == "" || e.clock.Elapsed() >= e.length
}

func (e *Engine) Destroy() {
	e.Unload()
}
