package backend

import (
	"encoding/base32"
	"errors"
	"sync"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/events"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
)

const (
	dbusTrackIDPrefix = "/Localsonic/Track/"
	noTrackObjectPath = "/org/mpris/MediaPlayer2/TrackList/NoTrack"
)

var (
	_ MediaSession                                      = (*MPRISSession)(nil)
	_ types.OrgMprisMediaPlayer2Adapter                 = (*MPRISSession)(nil)
	_ types.OrgMprisMediaPlayer2PlayerAdapter           = (*MPRISSession)(nil)
	_ types.OrgMprisMediaPlayer2PlayerAdapterLoopStatus = (*MPRISSession)(nil)
)

var (
	errNotSupported = errors.New("not supported")
	errClosed       = errors.New("media session closed")
)

// MPRISSession publishes the player on the D-Bus session bus.
// Property reads are answered from the last pushed values.
type MPRISSession struct {
	// Function called if the player is requested to quit through MPRIS.
	// Should *asynchronously* start shutdown and return immediately.
	OnQuit func() error

	// Called when MPRIS clients change the volume or loop status. Optional.
	OnVolume   func(float64)
	OnLoopMode func(LoopMode)

	playerName string
	s          *server.Server
	evt        *events.EventHandler

	mu        sync.Mutex
	connErr   error
	handlers  TransportHandlers
	meta      SessionMetadata
	trackPath string // empty for no track
	isPlaying bool
	hasTrack  bool
	volume    float64
	loopMode  LoopMode
}

func NewMPRISSession(playerName string, h TransportHandlers) *MPRISSession {
	m := &MPRISSession{
		playerName: playerName,
		handlers:   h,
		volume:     1,
		connErr:    errors.New("not started"),
	}
	m.s = server.NewServer(playerName, m, m)
	m.evt = events.NewEventHandler(m.s)
	return m
}

// Starts listening for MPRIS requests.
func (m *MPRISSession) Start() {
	m.mu.Lock()
	m.connErr = nil
	m.mu.Unlock()
	go func() {
		// exits early with err if unable to establish D-Bus connection
		err := m.s.Listen()
		m.mu.Lock()
		if m.connErr == nil {
			m.connErr = err
		}
		m.mu.Unlock()
	}()
}

// Close unregisters the transport handlers and releases any D-Bus resources.
func (m *MPRISSession) Close() {
	m.mu.Lock()
	running := m.connErr == nil
	m.connErr = errClosed
	m.handlers = TransportHandlers{}
	m.OnQuit = nil
	m.OnVolume = nil
	m.OnLoopMode = nil
	m.mu.Unlock()
	if running {
		m.s.Stop()
	}
}

func (m *MPRISSession) UpdateMetadata(meta SessionMetadata) {
	m.mu.Lock()
	m.meta = meta
	m.hasTrack = meta.TrackID != ""
	m.trackPath = ""
	if m.hasTrack {
		m.trackPath = dbusTrackIDPrefix + encodeTrackID(meta.TrackID)
	}
	emit := m.connErr == nil
	m.mu.Unlock()
	if emit {
		m.evt.Player.OnTitle()
	}
}

func (m *MPRISSession) UpdatePlaybackState(isPlaying bool) {
	m.mu.Lock()
	m.isPlaying = isPlaying
	emit := m.connErr == nil
	m.mu.Unlock()
	if emit {
		m.evt.Player.OnPlayPause()
	}
}

// UpdateVolume sets the volume reported to MPRIS clients.
func (m *MPRISSession) UpdateVolume(vol float64) {
	m.mu.Lock()
	m.volume = vol
	emit := m.connErr == nil
	m.mu.Unlock()
	if emit {
		m.evt.Player.OnVolume()
	}
}

// UpdateLoopMode sets the loop status reported to MPRIS clients.
func (m *MPRISSession) UpdateLoopMode(mode LoopMode) {
	m.mu.Lock()
	m.loopMode = mode
	m.mu.Unlock()
}

func (m *MPRISSession) transport(pick func(TransportHandlers) func()) error {
	m.mu.Lock()
	f := pick(m.handlers)
	m.mu.Unlock()
	if f == nil {
		return errNotSupported
	}
	f()
	return nil
}

// OrgMprisMediaPlayer2Adapter implementation

func (m *MPRISSession) Identity() (string, error) {
	return m.playerName, nil
}

func (m *MPRISSession) CanQuit() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OnQuit != nil, nil
}

func (m *MPRISSession) Quit() error {
	m.mu.Lock()
	quit := m.OnQuit
	m.mu.Unlock()
	if quit != nil {
		return quit()
	}
	return errors.New("no quit handler added")
}

func (m *MPRISSession) CanRaise() (bool, error) {
	return false, nil
}

func (m *MPRISSession) Raise() error {
	return errNotSupported
}

func (m *MPRISSession) HasTrackList() (bool, error) {
	return false, nil
}

func (m *MPRISSession) SupportedUriSchemes() ([]string, error) {
	return nil, nil
}

func (m *MPRISSession) SupportedMimeTypes() ([]string, error) {
	return nil, nil
}

// OrgMprisMediaPlayer2PlayerAdapter implementation

func (m *MPRISSession) Next() error {
	return m.transport(func(h TransportHandlers) func() { return h.Next })
}

func (m *MPRISSession) Previous() error {
	return m.transport(func(h TransportHandlers) func() { return h.Previous })
}

func (m *MPRISSession) Pause() error {
	return m.transport(func(h TransportHandlers) func() { return h.Pause })
}

func (m *MPRISSession) PlayPause() error {
	m.mu.Lock()
	playing := m.isPlaying
	m.mu.Unlock()
	if playing {
		return m.Pause()
	}
	return m.Play()
}

func (m *MPRISSession) Stop() error {
	return m.transport(func(h TransportHandlers) func() { return h.Stop })
}

func (m *MPRISSession) Play() error {
	return m.transport(func(h TransportHandlers) func() { return h.Play })
}

func (m *MPRISSession) Seek(types.Microseconds) error {
	return errNotSupported
}

func (m *MPRISSession) SetPosition(string, types.Microseconds) error {
	return errNotSupported
}

func (m *MPRISSession) OpenUri(string) error {
	return errNotSupported
}

func (m *MPRISSession) PlaybackStatus() (types.PlaybackStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.isPlaying:
		return types.PlaybackStatusPlaying, nil
	case m.hasTrack:
		return types.PlaybackStatusPaused, nil
	}
	return types.PlaybackStatusStopped, nil
}

func (m *MPRISSession) LoopStatus() (types.LoopStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.loopMode {
	case LoopAll:
		return types.LoopStatusPlaylist, nil
	case LoopOne:
		return types.LoopStatusTrack, nil
	case LoopNone:
		return types.LoopStatusNone, nil
	}
	return "", errors.New("unknown loop status")
}

func (m *MPRISSession) SetLoopStatus(status types.LoopStatus) error {
	var mode LoopMode
	switch status {
	case types.LoopStatusPlaylist:
		mode = LoopAll
	case types.LoopStatusTrack:
		mode = LoopOne
	case types.LoopStatusNone:
		mode = LoopNone
	default:
		return errors.New("unknown loop status")
	}
	m.mu.Lock()
	set := m.OnLoopMode
	m.mu.Unlock()
	if set == nil {
		return errNotSupported
	}
	set(mode)
	return nil
}

func (m *MPRISSession) Rate() (float64, error) {
	return 1, nil
}

func (m *MPRISSession) SetRate(float64) error {
	return errNotSupported
}

func (m *MPRISSession) Metadata() (types.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trackObjPath := noTrackObjectPath
	if m.trackPath != "" {
		trackObjPath = m.trackPath
	}
	var artist []string
	if m.meta.Artist != "" && m.meta.Artist != mediaprovider.UnknownArtist {
		artist = []string{m.meta.Artist}
	}
	return types.Metadata{
		TrackId: dbus.ObjectPath(trackObjPath),
		Length:  secondsToMicroseconds(m.meta.Duration),
		Title:   m.meta.Title,
		Album:   m.meta.Album,
		Artist:  artist,
		ArtUrl:  m.meta.ArtworkURL,
	}, nil
}

func (m *MPRISSession) Volume() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume, nil
}

func (m *MPRISSession) SetVolume(v float64) error {
	m.mu.Lock()
	set := m.OnVolume
	m.mu.Unlock()
	if set == nil {
		return errNotSupported
	}
	set(v)
	return nil
}

// Position is not tracked; the controller only knows whether a track has finished.
func (m *MPRISSession) Position() (int64, error) {
	return 0, nil
}

func (m *MPRISSession) MinimumRate() (float64, error) {
	return 1, nil
}

func (m *MPRISSession) MaximumRate() (float64, error) {
	return 1, nil
}

func (m *MPRISSession) CanGoNext() (bool, error) {
	return true, nil
}

func (m *MPRISSession) CanGoPrevious() (bool, error) {
	return true, nil
}

func (m *MPRISSession) CanPlay() (bool, error) {
	return true, nil
}

func (m *MPRISSession) CanPause() (bool, error) {
	return true, nil
}

func (m *MPRISSession) CanSeek() (bool, error) {
	return false, nil
}

func (m *MPRISSession) CanControl() (bool, error) {
	return true, nil
}

func secondsToMicroseconds(s float64) types.Microseconds {
	return types.Microseconds(s * 1_000_000)
}

func encodeTrackID(id string) string {
	return base32.StdEncoding.WithPadding('0').EncodeToString([]byte(id))
}
