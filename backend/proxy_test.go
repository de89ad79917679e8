package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioProxy_ReportsErrorsOnce(t *testing.T) {
	b := newRecordingBackend(nil)
	var reported []string
	a := NewAudioProxy(b, func(msg string) { reported = append(reported, msg) })
	ctx := context.Background()

	require.True(t, a.LoadTrack(ctx, "/music/a.mp3"))
	cached := a.State()

	tests := []struct {
		op   string
		call func() bool
		want string
	}{
		{"load a.mp3", func() bool { return a.LoadTrack(ctx, "/music/a.mp3") }, "Failed to load track: boom"},
		{"play", func() bool { return a.Play(ctx) }, "Failed to play: boom"},
		{"pause", func() bool { return a.Pause(ctx) }, "Failed to pause: boom"},
		{"stop", func() bool { return a.Stop(ctx) }, "Failed to stop: boom"},
		{"volume", func() bool { return a.SetVolume(ctx, 0.5) }, "Failed to set volume: boom"},
	}
	for _, tt := range tests {
		reported = nil
		b.setFail(tt.op, errors.New("boom"))
		assert.False(t, tt.call(), tt.op)
		assert.Equal(t, []string{tt.want}, reported, tt.op)
		assert.Equal(t, tt.want, a.LastError())
		assert.Equal(t, cached, a.State(), "cached state changed by failed %s", tt.op)
	}
}

func TestAudioProxy_CheckFinishedErrorIsNotFinished(t *testing.T) {
	b := newRecordingBackend(nil)
	a := NewAudioProxy(b, nil)
	ctx := context.Background()

	// nothing loaded
	assert.True(t, a.CheckFinished(ctx))

	a.LoadTrack(ctx, "/music/a.mp3")
	a.Play(ctx)
	assert.False(t, a.CheckFinished(ctx))
	a.MarkStopped()
	assert.False(t, a.State().IsPlaying)
}

func TestFileProxy_PickerErrors(t *testing.T) {
	var reported []string
	f := &fakeFiles{pickErr: mediaprovider.ErrNoFilesSelected}
	p := NewFileProxy(f, func(msg string) { reported = append(reported, msg) })

	assert.Empty(t, p.PickAudioFiles(context.Background()))
	assert.Empty(t, p.PickAudioFolder(context.Background()))
	assert.Equal(t, []string{
		"Failed to pick files: no files selected",
		"Failed to pick folder: no files selected",
	}, reported)
}

func TestFileProxy_MetadataFallback(t *testing.T) {
	var reported []string
	f := &fakeFiles{failPaths: map[string]bool{"/music/bad.flac": true}}
	p := NewFileProxy(f, func(msg string) { reported = append(reported, msg) })
	ctx := context.Background()

	tr := p.GetMetadata(ctx, "/music/bad.flac")
	assert.Equal(t, &mediaprovider.Track{
		ID:       mediaprovider.TrackIDForPath("/music/bad.flac"),
		Title:    "bad.flac",
		Artist:   mediaprovider.UnknownArtist,
		FilePath: "/music/bad.flac",
	}, tr)
	assert.Len(t, reported, 1)

	tr = p.GetMetadata(ctx, "/music/good.mp3")
	assert.Equal(t, "Title good", tr.Title)

	assert.Nil(t, p.GetMultipleMetadata(ctx, nil))
	f.batchErr = errors.New("connection refused")
	trs := p.GetMultipleMetadata(ctx, []string{"/music/x.mp3", "/music/y.wav"})
	require.Len(t, trs, 2)
	assert.Equal(t, "x.mp3", trs[0].Title)
	assert.Equal(t, "y.wav", trs[1].Title)
	assert.Equal(t, "Failed to get metadata: connection refused", reported[len(reported)-1])
}
