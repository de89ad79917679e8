package backend

import (
	"context"
	"log"
	"math/rand"
	"slices"
	"time"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/player"
	"github.com/dweymouth/localsonic/sharedutil"
)

const defaultPollInterval = 500 * time.Millisecond

// The playback loop mode (LoopNone, LoopAll, LoopOne).
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopAll
	LoopOne
)

func (l LoopMode) String() string {
	switch l {
	case LoopAll:
		return "All"
	case LoopOne:
		return "One"
	default:
		return "None"
	}
}

// LoopModeFromString parses the config representation of a loop mode.
// Unknown values are LoopNone.
func LoopModeFromString(s string) LoopMode {
	switch s {
	case "All":
		return LoopAll
	case "One":
		return LoopOne
	}
	return LoopNone
}

// PlaybackSnapshot is a copy of the playlist and playback state
// at a point in time.
type PlaybackSnapshot struct {
	Playlist     []*mediaprovider.Track
	CurrentIndex int
	LoopMode     LoopMode
	Shuffled     bool
	State        player.PlaybackState
	LastError    string
}

// NowPlaying returns the current playlist entry, or nil if the playlist is empty.
func (s PlaybackSnapshot) NowPlaying() *mediaprovider.Track {
	if len(s.Playlist) == 0 {
		return nil
	}
	return s.Playlist[s.CurrentIndex]
}

// playbackEngine owns the playlist and drives the audio backend.
// All methods must be called from the playback loop goroutine.
type playbackEngine struct {
	ctx   context.Context
	audio *AudioProxy
	files *FileProxy
	rand  *rand.Rand

	playlist      []*mediaprovider.Track
	nowPlayingIdx int
	loopMode      LoopMode
	shuffled      bool
	originalOrder []*mediaprovider.Track // playlist order before shuffle was enabled

	pollInterval time.Duration
	cancelPoll   context.CancelFunc
	onPollTick   func()

	// last values passed to listeners
	lastNowPlaying *mediaprovider.Track
	lastState      player.PlaybackState

	callbacksDisabled bool

	// registered callbacks
	onPlaylistChange []func([]*mediaprovider.Track)
	onSongChange     []func(*mediaprovider.Track)
	onStateChange    []func(player.PlaybackState)
	onLoopModeChange []func(LoopMode)
	onShuffleChange  []func(bool)
	onVolumeChange   []func(float64)
	onError          []func(string)
}

func newPlaybackEngine(
	ctx context.Context,
	backend player.Backend,
	files mediaprovider.FileService,
	loopMode LoopMode,
	pollInterval time.Duration,
	r *rand.Rand,
	onPollTick func(),
) *playbackEngine {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	p := &playbackEngine{
		ctx:          ctx,
		rand:         r,
		loopMode:     loopMode,
		pollInterval: pollInterval,
		onPollTick:   onPollTick,
	}
	p.audio = NewAudioProxy(backend, p.invokeOnError)
	p.files = NewFileProxy(files, p.invokeOnError)
	p.lastState = p.audio.State()
	return p
}

func (p *playbackEngine) NowPlaying() *mediaprovider.Track {
	if len(p.playlist) == 0 {
		return nil
	}
	return p.playlist[p.nowPlayingIdx]
}

func (p *playbackEngine) Snapshot() PlaybackSnapshot {
	return PlaybackSnapshot{
		Playlist:     p.copyPlaylist(),
		CurrentIndex: p.nowPlayingIdx,
		LoopMode:     p.loopMode,
		Shuffled:     p.shuffled,
		State:        p.audio.State(),
		LastError:    p.audio.LastError(),
	}
}

// AddTracks appends the tracks at paths to the playlist.
// If the playlist was empty the first new track is loaded, but not played.
func (p *playbackEngine) AddTracks(paths []string) {
	if len(paths) == 0 {
		return
	}
	tracks := p.files.GetMultipleMetadata(p.ctx, paths)
	wasEmpty := len(p.playlist) == 0
	p.playlist = append(p.playlist, tracks...)
	if p.shuffled {
		// keep new tracks when the original order is restored
		p.originalOrder = append(p.originalOrder, tracks...)
	}
	p.invokeOnPlaylistChange()

	if wasEmpty && len(tracks) > 0 {
		p.nowPlayingIdx = 0
		p.audio.LoadTrack(p.ctx, tracks[0].FilePath)
		p.stateUpdated()
	}
}

// ChangeTrack loads and plays the track at idx.
func (p *playbackEngine) ChangeTrack(idx int) {
	if idx < 0 || idx >= len(p.playlist) {
		return
	}
	p.nowPlayingIdx = idx
	if p.audio.LoadTrack(p.ctx, p.playlist[idx].FilePath) {
		p.audio.Play(p.ctx)
	}
	p.stateUpdated()
}

// SelectTrack toggles play/pause if idx is the current track,
// and otherwise changes to it.
func (p *playbackEngine) SelectTrack(idx int) {
	if idx == p.nowPlayingIdx && idx < len(p.playlist) {
		p.PlayPause()
		return
	}
	p.ChangeTrack(idx)
}

func (p *playbackEngine) Next() {
	if idx, ok := p.nextIndex(p.nowPlayingIdx); ok {
		p.ChangeTrack(idx)
	}
}

func (p *playbackEngine) Previous() {
	if idx, ok := p.prevIndex(p.nowPlayingIdx); ok {
		p.ChangeTrack(idx)
	}
}

// SeekFwdBackN moves n tracks forward (n > 0) or back (n < 0)
// and plays the track landed on.
func (p *playbackEngine) SeekFwdBackN(n int) {
	idx, moved := p.nowPlayingIdx, false
	for ; n > 0; n-- {
		i, ok := p.nextIndex(idx)
		if !ok {
			break
		}
		idx, moved = i, true
	}
	for ; n < 0; n++ {
		i, ok := p.prevIndex(idx)
		if !ok {
			break
		}
		idx, moved = i, true
	}
	if moved {
		p.ChangeTrack(idx)
	}
}

// Seeking within a track is not supported by the audio backend.
func (p *playbackEngine) SeekSeconds(sec float64) {
	log.Printf("seek to %0.1fs ignored: seek not supported by the audio backend", sec)
}

// DeleteTrack stops playback and removes the track at idx.
func (p *playbackEngine) DeleteTrack(idx int) {
	if idx < 0 || idx >= len(p.playlist) {
		return
	}
	p.audio.Stop(p.ctx)

	removed := p.playlist[idx]
	p.playlist = slices.Delete(p.playlist, idx, idx+1)
	if p.shuffled {
		p.originalOrder = sharedutil.FilterSlice(p.originalOrder, func(t *mediaprovider.Track) bool {
			return t.FilePath != removed.FilePath
		})
	}

	switch {
	case len(p.playlist) == 0:
		p.nowPlayingIdx = 0
	case idx == p.nowPlayingIdx:
		p.nowPlayingIdx = idx % len(p.playlist)
	case idx < p.nowPlayingIdx:
		p.nowPlayingIdx--
	}
	p.invokeOnPlaylistChange()
	p.stateUpdated()
}

// MoveTracks moves the tracks at idxs to just before insertIdx.
// The current track stays current; playback is not interrupted.
func (p *playbackEngine) MoveTracks(idxs []int, insertIdx int) {
	if len(idxs) == 0 || len(p.playlist) == 0 {
		return
	}
	current := p.NowPlaying()
	p.playlist = sharedutil.ReorderItems(p.playlist, idxs, insertIdx)
	p.nowPlayingIdx = slices.Index(p.playlist, current)
	p.invokeOnPlaylistChange()
}

func (p *playbackEngine) ClearPlaylist() {
	p.audio.Stop(p.ctx)
	p.playlist = nil
	p.originalOrder = nil
	p.nowPlayingIdx = 0
	if p.shuffled {
		p.shuffled = false
		p.invokeOnShuffleChange()
	}
	p.invokeOnPlaylistChange()
	p.stateUpdated()
}

// ToggleShuffle shuffles the playlist, keeping the current track first,
// or restores the order it had before shuffling.
func (p *playbackEngine) ToggleShuffle() {
	p.shuffled = !p.shuffled
	defer p.invokeOnShuffleChange()

	if len(p.playlist) == 0 {
		p.originalOrder = nil
		return
	}

	if p.shuffled {
		p.originalOrder = slices.Clone(p.playlist)
		current := p.playlist[p.nowPlayingIdx]
		rest := make([]*mediaprovider.Track, 0, len(p.playlist)-1)
		rest = append(rest, p.playlist[:p.nowPlayingIdx]...)
		rest = append(rest, p.playlist[p.nowPlayingIdx+1:]...)
		for i := len(rest) - 1; i > 0; i-- {
			j := p.rand.Intn(i + 1)
			rest[i], rest[j] = rest[j], rest[i]
		}
		p.playlist = append([]*mediaprovider.Track{current}, rest...)
		p.nowPlayingIdx = 0
	} else {
		currentPath := p.playlist[p.nowPlayingIdx].FilePath
		p.playlist = p.originalOrder
		p.originalOrder = nil
		p.nowPlayingIdx = max(0, slices.IndexFunc(p.playlist, func(t *mediaprovider.Track) bool {
			return t.FilePath == currentPath
		}))
	}
	p.invokeOnPlaylistChange()
}

func (p *playbackEngine) SetLoopMode(mode LoopMode) {
	p.loopMode = mode
	if p.callbacksDisabled {
		return
	}
	for _, cb := range p.onLoopModeChange {
		cb(mode)
	}
}

// NextLoopMode cycles None -> All -> One -> None.
func (p *playbackEngine) NextLoopMode() {
	p.SetLoopMode((p.loopMode + 1) % 3)
}

func (p *playbackEngine) SetVolume(vol float64) {
	p.audio.SetVolume(p.ctx, player.ClampVolume(vol))
	p.stateUpdated()
}

func (p *playbackEngine) Continue() {
	p.audio.Play(p.ctx)
	p.stateUpdated()
}

func (p *playbackEngine) Pause() {
	p.audio.Pause(p.ctx)
	p.stateUpdated()
}

func (p *playbackEngine) Stop() {
	p.audio.Stop(p.ctx)
	p.stateUpdated()
}

func (p *playbackEngine) PlayPause() {
	if p.audio.State().IsPlaying {
		p.Pause()
	} else {
		p.Continue()
	}
}

// OnTrackFinished replays the current track in LoopOne mode,
// and otherwise advances to the next track.
func (p *playbackEngine) OnTrackFinished() {
	if p.loopMode != LoopOne {
		p.Next()
		return
	}
	if tr := p.NowPlaying(); tr != nil {
		if p.audio.LoadTrack(p.ctx, tr.FilePath) {
			p.audio.Play(p.ctx)
		}
		p.stateUpdated()
	}
}

// ApplyBackendState caches a state pushed by the backend.
func (p *playbackEngine) ApplyBackendState(s player.PlaybackState) {
	p.audio.Apply(s)
	p.stateUpdated()
}

// CheckFinished handles a poll tick.
func (p *playbackEngine) CheckFinished() {
	if !p.audio.State().IsPlaying {
		return // tick from a poll cancelled after it was queued
	}
	if !p.audio.CheckFinished(p.ctx) {
		return
	}
	p.audio.MarkStopped()
	p.stateUpdated()
	p.OnTrackFinished()
}

// Shutdown stops playback and clears the playlist.
// No callbacks are invoked afterwards.
func (p *playbackEngine) Shutdown() {
	p.stopPoll()
	p.callbacksDisabled = true
	if p.audio.State().CurrentTrack != nil {
		p.audio.Stop(p.ctx)
	}
	p.playlist = nil
	p.originalOrder = nil
	p.shuffled = false
	p.nowPlayingIdx = 0
}

// checkSongChange notifies listeners if the current playlist entry has changed.
func (p *playbackEngine) checkSongChange() {
	np := p.NowPlaying()
	if np == p.lastNowPlaying {
		return
	}
	p.lastNowPlaying = np
	if p.callbacksDisabled {
		return
	}
	for _, cb := range p.onSongChange {
		cb(np)
	}
}

func (p *playbackEngine) nextIndex(from int) (int, bool) {
	n := len(p.playlist)
	switch {
	case n == 0:
		return from, false
	case p.shuffled:
		return p.rand.Intn(n), true
	case from+1 < n:
		return from + 1, true
	case p.loopMode == LoopAll:
		return 0, true
	}
	return from, false
}

func (p *playbackEngine) prevIndex(from int) (int, bool) {
	n := len(p.playlist)
	if n < 2 {
		return from, false
	}
	return (from - 1 + n) % n, true
}

// stateUpdated is called whenever the cached backend state may have changed.
// Polling for track completion runs exactly while the cached state is playing.
func (p *playbackEngine) stateUpdated() {
	s := p.audio.State()
	if s.IsPlaying {
		p.startPoll()
	} else {
		p.stopPoll()
	}

	last := p.lastState
	p.lastState = s
	if p.callbacksDisabled {
		return
	}
	if s.Volume != last.Volume {
		for _, cb := range p.onVolumeChange {
			cb(s.Volume)
		}
	}
	if !statesEqual(s, last) {
		for _, cb := range p.onStateChange {
			cb(s)
		}
	}
}

func (p *playbackEngine) startPoll() {
	if p.cancelPoll != nil {
		return
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancelPoll = cancel
	pollingTick := time.NewTicker(p.pollInterval)

	go func() {
		for {
			select {
			case <-ctx.Done():
				pollingTick.Stop()
				return
			case <-pollingTick.C:
				p.onPollTick()
			}
		}
	}()
}

func (p *playbackEngine) stopPoll() {
	if p.cancelPoll != nil {
		p.cancelPoll()
		p.cancelPoll = nil
	}
}

func (p *playbackEngine) isPolling() bool {
	return p.cancelPoll != nil
}

func (p *playbackEngine) copyPlaylist() []*mediaprovider.Track {
	if p.playlist == nil {
		return []*mediaprovider.Track{}
	}
	return sharedutil.MapSlice(p.playlist, (*mediaprovider.Track).Copy)
}

func (p *playbackEngine) invokeOnPlaylistChange() {
	if p.callbacksDisabled {
		return
	}
	for _, cb := range p.onPlaylistChange {
		cb(p.copyPlaylist())
	}
}

func (p *playbackEngine) invokeOnShuffleChange() {
	if p.callbacksDisabled {
		return
	}
	for _, cb := range p.onShuffleChange {
		cb(p.shuffled)
	}
}

// May be called from the file picker goroutine.
func (p *playbackEngine) invokeOnError(msg string) {
	for _, cb := range p.onError {
		cb(msg)
	}
}

func statesEqual(a, b player.PlaybackState) bool {
	return a.IsPlaying == b.IsPlaying &&
		a.CurrentTime == b.CurrentTime &&
		a.Duration == b.Duration &&
		a.Volume == b.Volume &&
		a.TrackPath() == b.TrackPath() &&
		(a.CurrentTrack == nil) == (b.CurrentTrack == nil)
}
