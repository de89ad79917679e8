package backend

import (
	"errors"
	"log"
	"sync"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/mediaprovider/local"
	"github.com/dweymouth/localsonic/backend/player"
)

// SessionMetadata is the now-playing information shown by the host media session.
type SessionMetadata struct {
	TrackID    string // stable per file path; empty when nothing is loaded
	Title      string
	Artist     string
	Album      string
	Duration   float64
	ArtworkURL string
}

// TransportHandlers are invoked when the host media session's
// transport buttons are pressed. Nil handlers are ignored.
type TransportHandlers struct {
	Play     func()
	Pause    func()
	Stop     func()
	Next     func()
	Previous func()
}

// MediaSession is a host OS media-session surface.
// Updates are fire-and-forget; Close unregisters the transport handlers.
type MediaSession interface {
	UpdateMetadata(SessionMetadata)
	UpdatePlaybackState(isPlaying bool)
	Close()
}

// TransportHandlers returns handlers that queue the matching controller commands.
func (p *PlaybackManager) TransportHandlers() TransportHandlers {
	return TransportHandlers{
		Play:     p.Continue,
		Pause:    p.Pause,
		Stop:     p.Stop,
		Next:     p.SeekNext,
		Previous: p.SeekBackOrPrevious,
	}
}

// ArtworkLookup returns a URL for the embedded cover art of the audio file at path.
type ArtworkLookup func(path string) (string, error)

type mediaSessionBridge struct {
	session MediaSession
	artwork ArtworkLookup

	mu         sync.Mutex
	generation int
	isPlaying  bool
}

// ConnectMediaSession mirrors the now-playing track and play state of pm into s.
// Must be called before pm is started. artwork may be nil.
func ConnectMediaSession(pm *PlaybackManager, s MediaSession, artwork ArtworkLookup) {
	b := &mediaSessionBridge{session: s, artwork: artwork}
	pm.OnSongChange(b.songChanged)
	pm.OnStateChange(b.stateChanged)
}

func (b *mediaSessionBridge) songChanged(tr *mediaprovider.Track) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	meta := sessionMetadata(tr)
	b.session.UpdateMetadata(meta)
	if tr == nil || b.artwork == nil {
		return
	}

	gen := b.generation
	go func() {
		url, err := b.artwork(tr.FilePath)
		if err != nil {
			if !errors.Is(err, local.ErrNoArtwork) {
				log.Printf("failed to load artwork for %s: %v", tr.FilePath, err)
			}
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if gen == b.generation {
			meta.ArtworkURL = url
			b.session.UpdateMetadata(meta)
		}
	}()
}

func (b *mediaSessionBridge) stateChanged(s player.PlaybackState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.IsPlaying != b.isPlaying {
		b.isPlaying = s.IsPlaying
		b.session.UpdatePlaybackState(s.IsPlaying)
	}
}

func sessionMetadata(tr *mediaprovider.Track) SessionMetadata {
	if tr == nil {
		return SessionMetadata{}
	}
	return SessionMetadata{
		TrackID:  tr.ID,
		Title:    tr.Title,
		Artist:   tr.Artist,
		Album:    tr.Album,
		Duration: tr.Duration,
	}
}
