package backend

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/player"
	"github.com/dweymouth/localsonic/backend/player/simulated"
)

// recordingBackend is a Host driving a simulated engine that records
// the calls made to it and can be made to fail or report a finished track.
type recordingBackend struct {
	*player.Host

	mu       sync.Mutex
	ops      []string
	fail     map[string]error
	finished bool
}

func newRecordingBackend(durations map[string]float64) *recordingBackend {
	e := simulated.New(func(path string) (float64, error) {
		if d, ok := durations[path]; ok {
			return d, nil
		}
		return 180, nil
	})
	return &recordingBackend{Host: player.NewHost(e, 1), fail: map[string]error{}}
}

func (r *recordingBackend) record(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	return r.fail[op]
}

func (r *recordingBackend) setFail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

func (r *recordingBackend) setFinished(f bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = f
}

func (r *recordingBackend) takeOps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := r.ops
	r.ops = nil
	return ops
}

func (r *recordingBackend) LoadTrack(ctx context.Context, path string) (player.PlaybackState, error) {
	if err := r.record("load " + filepath.Base(path)); err != nil {
		return r.State(), err
	}
	return r.Host.LoadTrack(ctx, path)
}

func (r *recordingBackend) Play(ctx context.Context) (player.PlaybackState, error) {
	if err := r.record("play"); err != nil {
		return r.State(), err
	}
	return r.Host.Play(ctx)
}

func (r *recordingBackend) Pause(ctx context.Context) (player.PlaybackState, error) {
	if err := r.record("pause"); err != nil {
		return r.State(), err
	}
	return r.Host.Pause(ctx)
}

func (r *recordingBackend) Stop(ctx context.Context) (player.PlaybackState, error) {
	if err := r.record("stop"); err != nil {
		return r.State(), err
	}
	return r.Host.Stop(ctx)
}

func (r *recordingBackend) SetVolume(ctx context.Context, vol float64) (player.PlaybackState, error) {
	if err := r.record("volume"); err != nil {
		return r.State(), err
	}
	return r.Host.SetVolume(ctx, vol)
}

func (r *recordingBackend) CheckFinished(ctx context.Context) (bool, error) {
	r.mu.Lock()
	forced := r.finished
	r.mu.Unlock()
	if forced {
		return true, nil
	}
	return r.Host.CheckFinished(ctx)
}

// fakeFiles resolves metadata without touching the file system.
type fakeFiles struct {
	mu        sync.Mutex
	pick      []string
	pickErr   error
	batchErr  error
	failPaths map[string]bool
}

func (f *fakeFiles) PickAudioFiles(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pick, f.pickErr
}

func (f *fakeFiles) PickAudioFolder(ctx context.Context) ([]string, error) {
	return f.PickAudioFiles(ctx)
}

func (f *fakeFiles) GetMetadata(_ context.Context, path string) (*mediaprovider.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPaths[path] {
		return nil, errors.New("unreadable tags")
	}
	return &mediaprovider.Track{
		ID:       mediaprovider.TrackIDForPath(path),
		Title:    "Title " + mediaprovider.TitleFromPath(path),
		Artist:   "Artist",
		Duration: 180,
		FilePath: path,
	}, nil
}

func (f *fakeFiles) GetMultipleMetadata(ctx context.Context, paths []string) ([]*mediaprovider.Track, error) {
	f.mu.Lock()
	err := f.batchErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	trs := make([]*mediaprovider.Track, len(paths))
	for i, p := range paths {
		tr, err := f.GetMetadata(ctx, p)
		if err != nil {
			tr = mediaprovider.FallbackTrack(p)
		}
		trs[i] = tr
	}
	return trs, nil
}

func paths(names ...string) []string {
	ps := make([]string, len(names))
	for i, n := range names {
		ps[i] = "/music/" + n + ".mp3"
	}
	return ps
}

func trackNames(trs []*mediaprovider.Track) []string {
	names := make([]string, len(trs))
	for i, tr := range trs {
		names[i] = mediaprovider.TitleFromPath(tr.FilePath)
	}
	return names
}
