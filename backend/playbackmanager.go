package backend

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/dweymouth/localsonic/backend/ipc"
	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/player"
)

var _ ipc.PlaybackHandler = (*PlaybackManager)(nil)

// A high-level playlist-aware playback controller.
// All playlist and playback state is owned by a single goroutine;
// the exported methods queue commands for it and return immediately.
type PlaybackManager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	engine   *playbackEngine
	cmdQueue *CommandQueue
	files    *FileProxy

	unsubscribe []func()
	started     sync.Once
	stopped     sync.Once
	done        chan struct{} // closed when the playback loop exits
}

func NewPlaybackManager(
	ctx context.Context,
	backend player.Backend,
	files mediaprovider.FileService,
	playbackCfg *PlaybackConfig,
) *PlaybackManager {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return newPlaybackManager(ctx, backend, files, playbackCfg, r)
}

func newPlaybackManager(
	ctx context.Context,
	backend player.Backend,
	files mediaprovider.FileService,
	playbackCfg *PlaybackConfig,
	r *rand.Rand,
) *PlaybackManager {
	ctx, cancel := context.WithCancel(ctx)
	pm := &PlaybackManager{
		ctx:      ctx,
		cancel:   cancel,
		cmdQueue: NewCommandQueue(),
		done:     make(chan struct{}),
	}
	pollInterval := time.Duration(playbackCfg.PollIntervalMs) * time.Millisecond
	pm.engine = newPlaybackEngine(ctx, backend, files,
		LoopModeFromString(playbackCfg.RepeatMode), pollInterval, r, pm.cmdQueue.PollFinished)
	pm.files = pm.engine.files

	switch b := backend.(type) {
	case interface{ State() player.PlaybackState }:
		pm.engine.audio.Apply(b.State())
	case interface {
		State(context.Context) (player.PlaybackState, error)
	}:
		if s, err := b.State(ctx); err == nil {
			pm.engine.audio.Apply(s)
		} else {
			log.Printf("failed to read initial backend state: %v", err)
		}
	}
	pm.engine.lastState = pm.engine.audio.State()

	pm.unsubscribe = append(pm.unsubscribe,
		backend.OnStateChanged(pm.cmdQueue.BackendState),
		backend.OnTrackEnded(pm.cmdQueue.BackendState),
	)
	return pm
}

// Start runs the playback loop. Callbacks should be registered before Start.
func (p *PlaybackManager) Start() {
	p.started.Do(func() {
		go p.runCmdQueue()
	})
}

// Shutdown stops playback, clears the playlist and ends the playback loop.
// Commands queued after Shutdown are ignored.
func (p *PlaybackManager) Shutdown() {
	p.stopped.Do(func() {
		p.Start() // the loop performs the shutdown
		ack := make(chan struct{})
		if p.cmdQueue.add(PlaybackCommand{Type: cmdShutdown, Arg: ack}) {
			select {
			case <-ack:
			case <-p.done:
			}
		}
		p.cancel()
	})
}

// Sets a callback that is notified whenever the playlist contents or order change.
func (p *PlaybackManager) OnPlaylistChange(cb func([]*mediaprovider.Track)) {
	p.engine.onPlaylistChange = append(p.engine.onPlaylistChange, cb)
}

// Sets a callback that is notified whenever the current playlist entry changes.
// The track is nil when the playlist becomes empty.
func (p *PlaybackManager) OnSongChange(cb func(nowPlaying *mediaprovider.Track)) {
	p.engine.onSongChange = append(p.engine.onSongChange, cb)
}

// Registers a callback that is notified whenever the cached backend state changes.
func (p *PlaybackManager) OnStateChange(cb func(player.PlaybackState)) {
	p.engine.onStateChange = append(p.engine.onStateChange, cb)
}

// Registers a callback that is notified whenever the loop mode changes.
func (p *PlaybackManager) OnLoopModeChange(cb func(LoopMode)) {
	p.engine.onLoopModeChange = append(p.engine.onLoopModeChange, cb)
}

func (p *PlaybackManager) OnShuffleChange(cb func(bool)) {
	p.engine.onShuffleChange = append(p.engine.onShuffleChange, cb)
}

// Registers a callback that is notified whenever the volume changes.
func (p *PlaybackManager) OnVolumeChange(cb func(float64)) {
	p.engine.onVolumeChange = append(p.engine.onVolumeChange, cb)
}

// Registers a callback that receives user-visible error messages.
// It may be invoked from any goroutine.
func (p *PlaybackManager) OnError(cb func(string)) {
	p.engine.onError = append(p.engine.onError, cb)
}

// Snapshot returns a copy of the playlist and playback state.
// It is answered in order with previously queued commands.
func (p *PlaybackManager) Snapshot() PlaybackSnapshot {
	ch := make(chan PlaybackSnapshot, 1)
	if !p.cmdQueue.Snapshot(ch) {
		return PlaybackSnapshot{}
	}
	select {
	case s := <-ch:
		return s
	case <-p.done:
		return PlaybackSnapshot{}
	}
}

// AddTracks appends the audio files at paths to the playlist.
func (p *PlaybackManager) AddTracks(paths []string) {
	if len(paths) > 0 {
		p.cmdQueue.AddTracks(paths)
	}
}

// AddFiles is AddTracks, for remote control requests.
func (p *PlaybackManager) AddFiles(paths []string) {
	p.AddTracks(paths)
}

// PickAndAddFiles shows the file picker and adds the chosen files.
func (p *PlaybackManager) PickAndAddFiles() {
	go func() {
		p.AddTracks(p.files.PickAudioFiles(p.ctx))
	}()
}

// PickAndAddFolder shows the folder picker and adds the audio files found in it.
func (p *PlaybackManager) PickAndAddFolder() {
	go func() {
		p.AddTracks(p.files.PickAudioFolder(p.ctx))
	}()
}

func (p *PlaybackManager) ChangeTrack(idx int) {
	p.cmdQueue.ChangeTrack(idx)
}

func (p *PlaybackManager) SelectTrack(idx int) {
	p.cmdQueue.SelectTrack(idx)
}

func (p *PlaybackManager) DeleteTrack(idx int) {
	p.cmdQueue.DeleteTrack(idx)
}

// MoveTracks moves the tracks at idxs, in that order, to just before
// the track at insertIdx. An insertIdx past the end moves them to the end.
func (p *PlaybackManager) MoveTracks(idxs []int, insertIdx int) {
	p.cmdQueue.MoveTracks(idxs, insertIdx)
}

func (p *PlaybackManager) ClearPlaylist() {
	p.cmdQueue.ClearPlaylist()
}

func (p *PlaybackManager) ToggleShuffle() {
	p.cmdQueue.ToggleShuffle()
}

// NextLoopMode cycles the loop mode None -> All -> One.
func (p *PlaybackManager) NextLoopMode() {
	p.cmdQueue.NextLoopMode()
}

func (p *PlaybackManager) SetLoopMode(mode LoopMode) {
	p.cmdQueue.SetLoopMode(mode)
}

// SetVolume sets the volume, clamped to [0, 1].
func (p *PlaybackManager) SetVolume(vol float64) {
	p.cmdQueue.SetVolume(player.ClampVolume(vol))
}

func (p *PlaybackManager) SeekNext() {
	p.cmdQueue.SeekNext()
}

func (p *PlaybackManager) SeekBackOrPrevious() {
	p.cmdQueue.SeekBackOrPrevious()
}

func (p *PlaybackManager) SeekSeconds(sec float64) {
	p.cmdQueue.SeekSeconds(sec)
}

func (p *PlaybackManager) Stop() {
	p.cmdQueue.Stop()
}

func (p *PlaybackManager) Pause() {
	p.cmdQueue.Pause()
}

func (p *PlaybackManager) Continue() {
	p.cmdQueue.Continue()
}

func (p *PlaybackManager) PlayPause() {
	p.cmdQueue.PlayPause()
}

func (p *PlaybackManager) runCmdQueue() {
	defer close(p.done)
	shutdown := false
	for c := range p.cmdQueue.C() {
		if shutdown {
			continue
		}
		if c.Type == cmdShutdown {
			p.handleShutdown()
			close(c.Arg.(chan struct{}))
			shutdown = true
			continue
		}
		p.handleCommand(c)
		p.engine.checkSongChange()
	}
}

func (p *PlaybackManager) handleCommand(c PlaybackCommand) {
	e := p.engine
	switch c.Type {
	case cmdStop:
		e.Stop()
	case cmdContinue:
		e.Continue()
	case cmdPause:
		e.Pause()
	case cmdPlayPause:
		e.PlayPause()
	case cmdChangeTrack:
		e.ChangeTrack(c.Arg.(int))
	case cmdSelectTrack:
		e.SelectTrack(c.Arg.(int))
	case cmdSeekSeconds:
		e.SeekSeconds(c.Arg.(float64))
	case cmdSeekFwdBackN:
		e.SeekFwdBackN(c.Arg.(int))
	case cmdVolume:
		e.SetVolume(c.Arg.(float64))
	case cmdLoopMode:
		e.SetLoopMode(c.Arg.(LoopMode))
	case cmdNextLoopMode:
		e.NextLoopMode()
	case cmdToggleShuffle:
		e.ToggleShuffle()
	case cmdAddTracks:
		e.AddTracks(c.Arg.([]string))
	case cmdDeleteTrack:
		e.DeleteTrack(c.Arg.(int))
	case cmdMoveTracks:
		e.MoveTracks(c.Arg.([]int), c.Arg2.(int))
	case cmdClearPlaylist:
		e.ClearPlaylist()
	case cmdBackendState:
		e.ApplyBackendState(c.Arg.(player.PlaybackState))
	case cmdPollFinished:
		e.CheckFinished()
	case cmdSnapshot:
		c.Arg.(chan PlaybackSnapshot) <- e.Snapshot()
	}
}

func (p *PlaybackManager) handleShutdown() {
	for _, unsub := range p.unsubscribe {
		unsub()
	}
	p.engine.Shutdown()
	p.cmdQueue.Close()
}
