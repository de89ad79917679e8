package backend

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, durations map[string]float64, repeat string) (*PlaybackManager, *recordingBackend, *fakeFiles) {
	b := newRecordingBackend(durations)
	f := &fakeFiles{}
	cfg := &PlaybackConfig{RepeatMode: repeat, PollIntervalMs: 10}
	pm := newPlaybackManager(context.Background(), b, f, cfg, rand.New(rand.NewSource(1)))
	t.Cleanup(pm.Shutdown)
	return pm, b, f
}

// eventuallySnapshot waits for a snapshot satisfying cond. Backend notifications
// echoing earlier commands may briefly be applied after later ones.
func eventuallySnapshot(t *testing.T, pm *PlaybackManager, cond func(PlaybackSnapshot) bool) PlaybackSnapshot {
	t.Helper()
	var s PlaybackSnapshot
	require.Eventually(t, func() bool {
		s = pm.Snapshot()
		return cond(s)
	}, time.Second, 10*time.Millisecond)
	return s
}

func TestPlaybackManager_SnapshotIsOrdered(t *testing.T) {
	pm, _, _ := newTestManager(t, nil, "None")
	pm.Start()
	pm.AddTracks(paths("a", "b", "c"))
	pm.ChangeTrack(1)

	s := eventuallySnapshot(t, pm, func(s PlaybackSnapshot) bool {
		return s.State.IsPlaying && s.State.TrackPath() == "/music/b.mp3"
	})
	assert.Equal(t, []string{"a", "b", "c"}, trackNames(s.Playlist))
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, "b", mediaprovider.TitleFromPath(s.NowPlaying().FilePath))
}

func TestPlaybackManager_AutoAdvance(t *testing.T) {
	durations := map[string]float64{"/music/a.mp3": 0.05, "/music/b.mp3": 0.05}
	pm, b, _ := newTestManager(t, durations, "None")

	var mu sync.Mutex
	var songs []string
	pm.OnSongChange(func(tr *mediaprovider.Track) {
		mu.Lock()
		defer mu.Unlock()
		if tr != nil {
			songs = append(songs, mediaprovider.TitleFromPath(tr.FilePath))
		}
	})
	pm.Start()
	pm.AddTracks(paths("a", "b"))
	pm.ChangeTrack(0)

	// a plays out, b is started, then playback stops at the end of the playlist
	require.Eventually(t, func() bool {
		s := pm.Snapshot()
		return s.CurrentIndex == 1 && !s.State.IsPlaying && s.State.TrackPath() == "/music/b.mp3"
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a", "b"}, songs)
	mu.Unlock()
	assert.Contains(t, b.takeOps(), "load b.mp3")
}

func TestPlaybackManager_RepeatAllWraps(t *testing.T) {
	durations := map[string]float64{"/music/a.mp3": 0.05, "/music/b.mp3": 0.05}
	pm, b, _ := newTestManager(t, durations, "All")
	pm.Start()
	pm.AddTracks(paths("a", "b"))
	pm.ChangeTrack(0)
	pm.Snapshot()
	b.takeOps()

	require.Eventually(t, func() bool {
		for _, op := range b.takeOps() {
			if op == "load a.mp3" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond, "playlist did not wrap to the first track")
}

func TestPlaybackManager_Errors(t *testing.T) {
	pm, _, _ := newTestManager(t, nil, "None")
	errs := make(chan string, 4)
	pm.OnError(func(msg string) { errs <- msg })
	pm.Start()

	pm.Continue()
	select {
	case msg := <-errs:
		assert.Equal(t, "Failed to play: no track loaded", msg)
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
	assert.Equal(t, "Failed to play: no track loaded", pm.Snapshot().LastError)
}

func TestPlaybackManager_PickAndAdd(t *testing.T) {
	pm, _, f := newTestManager(t, nil, "None")
	f.pick = paths("x", "y")
	pm.Start()

	pm.PickAndAddFiles()
	require.Eventually(t, func() bool {
		return len(pm.Snapshot().Playlist) == 2
	}, time.Second, 10*time.Millisecond)

	s := pm.Snapshot()
	assert.Equal(t, 0, s.CurrentIndex)
	assert.False(t, s.State.IsPlaying)
	assert.Equal(t, "/music/x.mp3", s.State.TrackPath())
}

func TestPlaybackManager_RemoteControlHandlers(t *testing.T) {
	pm, _, _ := newTestManager(t, nil, "None")
	pm.Start()
	pm.AddFiles(paths("a", "b", "c"))
	pm.PlayPause()
	pm.SeekNext()
	pm.SeekNext()
	pm.SeekBackOrPrevious()
	pm.SetVolume(3)

	s := eventuallySnapshot(t, pm, func(s PlaybackSnapshot) bool {
		return s.State.IsPlaying && s.State.TrackPath() == "/music/b.mp3"
	})
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, 1.0, s.State.Volume)

	pm.Pause()
	eventuallySnapshot(t, pm, func(s PlaybackSnapshot) bool { return !s.State.IsPlaying })
}

func TestPlaybackManager_Shutdown(t *testing.T) {
	pm, b, _ := newTestManager(t, nil, "None")
	pm.Start()
	pm.AddTracks(paths("a"))
	pm.Continue()
	eventuallySnapshot(t, pm, func(s PlaybackSnapshot) bool { return s.State.IsPlaying })
	b.takeOps()

	pm.Shutdown()
	assert.Equal(t, []string{"stop"}, b.takeOps())
	assert.Nil(t, b.State().CurrentTrack)

	// commands after shutdown are ignored
	pm.AddTracks(paths("b"))
	pm.Continue()
	assert.Equal(t, PlaybackSnapshot{}, pm.Snapshot())
	assert.Empty(t, b.takeOps())

	pm.Shutdown()
}
