package backend

import (
	"slices"
	"sync"

	"github.com/dweymouth/localsonic/backend/player"
)

type playbackCommandType int

const (
	cmdStop playbackCommandType = iota
	cmdContinue
	cmdPause
	cmdPlayPause
	cmdChangeTrack  // arg: int
	cmdSelectTrack  // arg: int
	cmdSeekSeconds  // arg: float64
	cmdSeekFwdBackN // arg: int
	cmdVolume       // arg: float64
	cmdLoopMode     // arg: LoopMode
	cmdNextLoopMode
	cmdToggleShuffle
	cmdAddTracks   // arg: []string
	cmdDeleteTrack // arg: int
	cmdMoveTracks  // arg: []int, arg2: int (insert index)
	cmdClearPlaylist
	cmdBackendState // arg: player.PlaybackState
	cmdPollFinished
	cmdSnapshot // arg: chan PlaybackSnapshot
	cmdShutdown // arg: chan struct{}, closed when done
)

var transportCommands = []playbackCommandType{cmdContinue, cmdPause, cmdPlayPause, cmdStop}

type PlaybackCommand struct {
	Type playbackCommandType
	Arg  any
	Arg2 any
}

// CommandQueue serializes playback commands for the playback loop.
// Commands whose effect would be overwritten by a newer command of the
// same kind are dropped when the newer one is queued.
type CommandQueue struct {
	mutex        sync.Mutex
	queue        []PlaybackCommand
	closed       bool
	cmdAvailable *sync.Cond
	nextChan     chan PlaybackCommand
}

func NewCommandQueue() *CommandQueue {
	c := &CommandQueue{nextChan: make(chan PlaybackCommand)}
	c.cmdAvailable = sync.NewCond(&c.mutex)
	go c.chanWriter()
	return c
}

// C returns the channel commands are delivered on.
// It is closed once the queue is closed and drained of the current command.
func (c *CommandQueue) C() <-chan PlaybackCommand {
	return c.nextChan
}

// Close discards pending commands and stops delivery.
func (c *CommandQueue) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	c.queue = nil
	c.cmdAvailable.Broadcast()
}

func (c *CommandQueue) Stop() {
	c.filterCommandsAndAdd(transportCommands, PlaybackCommand{Type: cmdStop})
}

func (c *CommandQueue) Continue() {
	c.filterCommandsAndAdd(transportCommands, PlaybackCommand{Type: cmdContinue})
}

func (c *CommandQueue) Pause() {
	c.filterCommandsAndAdd(transportCommands, PlaybackCommand{Type: cmdPause})
}

// PlayPause is not coalesced with earlier toggles, since two toggles cancel out.
func (c *CommandQueue) PlayPause() {
	c.add(PlaybackCommand{Type: cmdPlayPause})
}

func (c *CommandQueue) ChangeTrack(idx int) {
	c.filterCommandsAndAdd([]playbackCommandType{cmdChangeTrack, cmdSeekFwdBackN},
		PlaybackCommand{Type: cmdChangeTrack, Arg: idx})
}

func (c *CommandQueue) SelectTrack(idx int) {
	c.add(PlaybackCommand{Type: cmdSelectTrack, Arg: idx})
}

func (c *CommandQueue) SetVolume(vol float64) {
	c.filterCommandsAndAdd([]playbackCommandType{cmdVolume},
		PlaybackCommand{Type: cmdVolume, Arg: vol})
}

func (c *CommandQueue) SetLoopMode(mode LoopMode) {
	c.filterCommandsAndAdd([]playbackCommandType{cmdLoopMode},
		PlaybackCommand{Type: cmdLoopMode, Arg: mode})
}

func (c *CommandQueue) NextLoopMode() {
	c.add(PlaybackCommand{Type: cmdNextLoopMode})
}

func (c *CommandQueue) ToggleShuffle() {
	c.add(PlaybackCommand{Type: cmdToggleShuffle})
}

func (c *CommandQueue) SeekSeconds(s float64) {
	c.filterCommandsAndAdd([]playbackCommandType{cmdSeekSeconds},
		PlaybackCommand{Type: cmdSeekSeconds, Arg: s})
}

func (c *CommandQueue) SeekNext() {
	c.seekBackOrFwd(1)
}

func (c *CommandQueue) SeekBackOrPrevious() {
	c.seekBackOrFwd(-1)
}

func (c *CommandQueue) AddTracks(paths []string) {
	c.add(PlaybackCommand{Type: cmdAddTracks, Arg: paths})
}

func (c *CommandQueue) DeleteTrack(idx int) {
	c.add(PlaybackCommand{Type: cmdDeleteTrack, Arg: idx})
}

func (c *CommandQueue) MoveTracks(idxs []int, insertIdx int) {
	c.add(PlaybackCommand{Type: cmdMoveTracks, Arg: idxs, Arg2: insertIdx})
}

func (c *CommandQueue) ClearPlaylist() {
	c.add(PlaybackCommand{Type: cmdClearPlaylist})
}

// BackendState queues a state pushed by the audio backend.
// Only the latest pending state is kept. A track-ended notification
// carries a finished state and needs no separate command.
func (c *CommandQueue) BackendState(s player.PlaybackState) {
	c.filterCommandsAndAdd([]playbackCommandType{cmdBackendState},
		PlaybackCommand{Type: cmdBackendState, Arg: s})
}

func (c *CommandQueue) PollFinished() {
	c.filterCommandsAndAdd([]playbackCommandType{cmdPollFinished},
		PlaybackCommand{Type: cmdPollFinished})
}

// Snapshot queues a read of the playback state, delivered on ch.
func (c *CommandQueue) Snapshot(ch chan PlaybackSnapshot) bool {
	return c.add(PlaybackCommand{Type: cmdSnapshot, Arg: ch})
}

func (c *CommandQueue) add(command PlaybackCommand) bool {
	return c.filterCommandsAndAdd(nil, command)
}

func (c *CommandQueue) filterCommandsAndAdd(excludeTypes []playbackCommandType, command PlaybackCommand) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return false
	}

	j := 0
	for _, cmd := range c.queue {
		if slices.Contains(excludeTypes, cmd.Type) {
			continue
		}
		c.queue[j] = cmd
		j++
	}
	c.queue = c.queue[:j]
	c.queue = append(c.queue, command)
	c.cmdAvailable.Signal()
	return true
}

func (c *CommandQueue) seekBackOrFwd(direction int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}

	j := 0
	n := 0
	for _, cmd := range c.queue {
		if cmd.Type == cmdSeekFwdBackN {
			n += cmd.Arg.(int)
		} else {
			c.queue[j] = cmd
			j++
		}
	}
	c.queue = c.queue[:j]
	c.queue = append(c.queue, PlaybackCommand{
		Type: cmdSeekFwdBackN,
		Arg:  n + direction})
	c.cmdAvailable.Signal()
}

func (c *CommandQueue) chanWriter() {
	defer close(c.nextChan)
	for {
		c.mutex.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cmdAvailable.Wait()
		}
		if c.closed {
			c.mutex.Unlock()
			return
		}
		cmd := c.queue[0]
		copy(c.queue, c.queue[1:])
		c.queue = c.queue[:len(c.queue)-1]
		c.mutex.Unlock()
		c.nextChan <- cmd
	}
}
