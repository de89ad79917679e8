package ipc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/player"
	"github.com/dweymouth/localsonic/backend/player/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

func testSocketName(t *testing.T) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("localsonic-test-%d", time.Now().UnixNano())
	}
	p, err := nettest.LocalPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(p) })
	return p
}

func startServer(t *testing.T, h Handlers) string {
	name := testSocketName(t)
	l, err := Listen(name)
	require.NoError(t, err)
	s := NewServer(h)
	go s.Serve(l)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return name
}

func newHost() *player.Host {
	e := simulated.New(func(string) (float64, error) { return 120, nil })
	return player.NewHost(e, 1)
}

type fakeFiles struct {
	pickErr error
}

func (f *fakeFiles) PickAudioFiles(context.Context) ([]string, error) {
	if f.pickErr != nil {
		return nil, f.pickErr
	}
	return []string{"/music/a.mp3"}, nil
}

func (f *fakeFiles) PickAudioFolder(context.Context) ([]string, error) {
	return []string{"/music/a.mp3", "/music/b.mp3"}, nil
}

func (f *fakeFiles) GetMetadata(_ context.Context, path string) (*mediaprovider.Track, error) {
	tr := mediaprovider.FallbackTrack(path)
	tr.Artist = "Artist"
	return tr, nil
}

func (f *fakeFiles) GetMultipleMetadata(ctx context.Context, paths []string) ([]*mediaprovider.Track, error) {
	trs := make([]*mediaprovider.Track, len(paths))
	for i, p := range paths {
		trs[i], _ = f.GetMetadata(ctx, p)
	}
	return trs, nil
}

type fakePlayback struct {
	mu    sync.Mutex
	calls []string
	vol   float64
	added []string
}

func (f *fakePlayback) record(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakePlayback) PlayPause()          { f.record("playpause") }
func (f *fakePlayback) Stop()               { f.record("stop") }
func (f *fakePlayback) Pause()              { f.record("pause") }
func (f *fakePlayback) Continue()           { f.record("continue") }
func (f *fakePlayback) SeekBackOrPrevious() { f.record("previous") }
func (f *fakePlayback) SeekNext()           { f.record("next") }

func (f *fakePlayback) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vol = v
}

func (f *fakePlayback) AddFiles(paths []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, paths...)
}

type fakeApp chan struct{}

func (f fakeApp) Quit() { close(f) }

func TestServer_AudioRoundTrip(t *testing.T) {
	name := startServer(t, Handlers{Audio: newHost()})
	ctx := context.Background()
	b, err := ConnectBackend(ctx, name, 5)
	require.NoError(t, err)

	st, err := b.LoadTrack(ctx, "/music/a.mp3")
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, "/music/a.mp3", st.TrackPath())
	assert.Equal(t, 120.0, st.Duration)

	st, err = b.Play(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsPlaying)

	fin, err := b.CheckFinished(ctx)
	require.NoError(t, err)
	assert.False(t, fin)

	st, err = b.SetVolume(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.Volume)

	st, err = b.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsPlaying)

	st, err = b.Stop(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.CurrentTrack)

	fin, err = b.CheckFinished(ctx)
	require.NoError(t, err)
	assert.True(t, fin)
}

func TestServer_BackendErrorsAreForwarded(t *testing.T) {
	name := startServer(t, Handlers{Audio: newHost()})
	ctx := context.Background()
	b, err := ConnectBackend(ctx, name, 5)
	require.NoError(t, err)

	_, err = b.Play(ctx)
	require.Error(t, err)
	assert.Equal(t, player.ErrNoTrackLoaded.Error(), err.Error())
}

func TestServer_Events(t *testing.T) {
	host := newHost()
	name := startServer(t, Handlers{Audio: host})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := ConnectBackend(ctx, name, 5)
	require.NoError(t, err)

	var changed, ended atomic.Int32
	b.OnStateChanged(func(player.PlaybackState) { changed.Add(1) })
	b.OnTrackEnded(func(player.PlaybackState) { ended.Add(1) })
	require.NoError(t, b.ListenEvents(ctx))

	// the subscriber is registered asynchronously after the handshake
	assert.Eventually(t, func() bool {
		host.SetVolume(ctx, 0.5)
		return changed.Load() > 0
	}, 2*time.Second, 20*time.Millisecond)
	assert.Zero(t, ended.Load())
}

func TestServer_FileService(t *testing.T) {
	name := startServer(t, Handlers{Files: &fakeFiles{}})
	ctx := context.Background()
	b, err := ConnectBackend(ctx, name, 5)
	require.NoError(t, err)

	paths, err := b.PickAudioFolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/music/a.mp3", "/music/b.mp3"}, paths)

	tr, err := b.GetMetadata(ctx, "/music/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "Artist", tr.Artist)
	assert.Equal(t, "/music/a.mp3", tr.FilePath)

	trs, err := b.GetMultipleMetadata(ctx, paths)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, "b", trs[1].Title)
}

func TestServer_FilePickerError(t *testing.T) {
	h := Handlers{Files: &fakeFiles{pickErr: errors.New("dialog unavailable")}}
	srv := httptest.NewServer(NewServer(h).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+PickFilesPath, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_RemoteControl(t *testing.T) {
	pb := &fakePlayback{}
	quit := make(fakeApp)
	name := startServer(t, Handlers{Playback: pb, App: quit})

	c, err := Connect(name)
	require.NoError(t, err)
	require.NoError(t, c.Play())
	require.NoError(t, c.Pause())
	require.NoError(t, c.PlayPause())
	require.NoError(t, c.SeekNext())
	require.NoError(t, c.SeekBackOrPrevious())
	require.NoError(t, c.Stop())
	require.NoError(t, c.SetVolume(0.25))
	require.NoError(t, c.AddFiles([]string{"/music/a.mp3"}))

	pb.mu.Lock()
	assert.Equal(t, []string{"continue", "pause", "playpause", "next", "previous", "stop"}, pb.calls)
	assert.Equal(t, 0.25, pb.vol)
	assert.Equal(t, []string{"/music/a.mp3"}, pb.added)
	pb.mu.Unlock()

	require.NoError(t, c.Quit())
	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("quit handler not called")
	}
}

func TestServer_UnregisteredRoutes(t *testing.T) {
	srv := httptest.NewServer(NewServer(Handlers{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + PingPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, path := range []string{LoadTrackPath, PlayPath, MetadataPath, QuitPath} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestConnect_NoServer(t *testing.T) {
	_, err := Connect(testSocketName(t))
	assert.ErrorIs(t, err, ErrPingFail)
}
