package backend

import (
	"sync"
	"testing"
	"time"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/mediaprovider/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu     sync.Mutex
	meta   []SessionMetadata
	states []bool
	closed bool
}

func (f *fakeSession) UpdateMetadata(m SessionMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = append(f.meta, m)
}

func (f *fakeSession) UpdatePlaybackState(isPlaying bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, isPlaying)
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) lastMeta() SessionMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.meta) == 0 {
		return SessionMetadata{}
	}
	return f.meta[len(f.meta)-1]
}

func (f *fakeSession) playStates() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.states...)
}

func TestMediaSession_MirrorsController(t *testing.T) {
	pm, _, _ := newTestManager(t, nil, "None")
	s := &fakeSession{}
	ConnectMediaSession(pm, s, func(path string) (string, error) {
		if mediaprovider.TitleFromPath(path) == "b" {
			return "", local.ErrNoArtwork
		}
		return "file:///art/" + mediaprovider.TitleFromPath(path) + ".jpg", nil
	})
	pm.Start()

	pm.AddTracks(paths("a", "b"))
	pm.Continue()
	pm.Snapshot()
	require.Eventually(t, func() bool {
		return s.lastMeta().ArtworkURL == "file:///art/a.jpg"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, SessionMetadata{
		TrackID:    mediaprovider.TrackIDForPath("/music/a.mp3"),
		Title:      "Title a",
		Artist:     "Artist",
		Duration:   180,
		ArtworkURL: "file:///art/a.jpg",
	}, s.lastMeta())

	pm.SeekNext()
	pm.Pause()
	require.Eventually(t, func() bool {
		states := s.playStates()
		return s.lastMeta().Title == "Title b" && len(states) > 0 && !states[len(states)-1]
	}, time.Second, 10*time.Millisecond)
	assert.True(t, s.playStates()[0])

	pm.ClearPlaylist()
	require.Eventually(t, func() bool {
		return s.lastMeta() == SessionMetadata{}
	}, time.Second, 10*time.Millisecond)
	// the pending artwork lookup for a must not overwrite the cleared metadata
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, SessionMetadata{}, s.lastMeta())
}

func TestMediaSession_TransportHandlers(t *testing.T) {
	pm, _, _ := newTestManager(t, nil, "None")
	pm.Start()
	pm.AddTracks(paths("a", "b", "c"))
	h := pm.TransportHandlers()

	h.Play()
	h.Next()
	h.Next()
	h.Previous()
	eventuallySnapshot(t, pm, func(s PlaybackSnapshot) bool {
		return s.CurrentIndex == 1 && s.State.IsPlaying
	})

	h.Pause()
	eventuallySnapshot(t, pm, func(s PlaybackSnapshot) bool {
		return !s.State.IsPlaying
	})

	h.Play()
	pm.Snapshot()
	h.Stop()
	eventuallySnapshot(t, pm, func(s PlaybackSnapshot) bool {
		return s.CurrentIndex == 1 && !s.State.IsPlaying && s.State.CurrentTrack == nil
	})
}

func TestMPRISSession_ReportsPushedState(t *testing.T) {
	var calls []string
	record := func(name string) func() { return func() { calls = append(calls, name) } }
	m := NewMPRISSession("Localsonic", TransportHandlers{
		Play:     record("play"),
		Pause:    record("pause"),
		Stop:     record("stop"),
		Next:     record("next"),
		Previous: record("previous"),
	})

	status, _ := m.PlaybackStatus()
	assert.EqualValues(t, "Stopped", status)
	md, _ := m.Metadata()
	assert.EqualValues(t, noTrackObjectPath, md.TrackId)

	songA := SessionMetadata{
		TrackID:    mediaprovider.TrackIDForPath("/music/a/song.mp3"),
		Title:      "Song",
		Artist:     "Band",
		Duration:   2.5,
		ArtworkURL: "file:///a.jpg",
	}
	m.UpdateMetadata(songA)
	m.UpdatePlaybackState(true)
	status, _ = m.PlaybackStatus()
	assert.EqualValues(t, "Playing", status)
	md, _ = m.Metadata()
	assert.Equal(t, "Song", md.Title)
	assert.Equal(t, []string{"Band"}, md.Artist)
	assert.EqualValues(t, 2_500_000, md.Length)
	assert.Equal(t, "file:///a.jpg", md.ArtUrl)
	idA := md.TrackId

	// a different file with identical tags gets its own track id
	songB := songA
	songB.TrackID = mediaprovider.TrackIDForPath("/music/b/song.mp3")
	m.UpdateMetadata(songB)
	md, _ = m.Metadata()
	assert.NotEqual(t, idA, md.TrackId)
	assert.True(t, md.TrackId.IsValid())
	m.UpdateMetadata(songA)
	md, _ = m.Metadata()
	assert.Equal(t, idA, md.TrackId)

	require.NoError(t, m.PlayPause())
	m.UpdatePlaybackState(false)
	require.NoError(t, m.PlayPause())
	require.NoError(t, m.Next())
	require.NoError(t, m.Previous())
	require.NoError(t, m.Stop())
	assert.Equal(t, []string{"pause", "play", "next", "previous", "stop"}, calls)

	assert.ErrorIs(t, m.Seek(1_000_000), errNotSupported)
	assert.ErrorIs(t, m.SetRate(2), errNotSupported)
	assert.ErrorIs(t, m.OpenUri("file:///x.mp3"), errNotSupported)

	m.Close()
	assert.ErrorIs(t, m.Play(), errNotSupported)
	assert.Equal(t, []string{"pause", "play", "next", "previous", "stop"}, calls)
}
