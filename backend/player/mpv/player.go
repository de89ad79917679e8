package mpv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dweymouth/localsonic/backend/player"
	"github.com/supersonic-app/go-mpv"
)

// Error returned by many Player functions if called before the player has not been initialized.
var ErrUnitialized error = errors.New("mpv player uninitialized")

var errLoadTimeout = errors.New("timed out waiting for mpv to load file")

// how long Load waits for mpv to open a file
const loadTimeout = 5 * time.Second

// Information about a specific audio device.
// Returned by ListAudioDevices.
type AudioDevice struct {
	// The name of the audio device.
	// This is the string to pass to SetAudioDevice.
	Name string

	// The description of the audio device.
	// This is the friendly string that should be used in UIs.
	Description string
}

var _ player.Engine = (*Player)(nil)

// Player encapsulates the mpv instance and implements player.Engine.
// One file is loaded at a time.
type Player struct {
	mpv         *mpv.Mpv
	initialized bool
	vol         int
	clientName  string

	mu         sync.Mutex
	loaded     bool
	reachedEnd bool
	pending    chan error // sent to when a pending load completes
	started    bool       // mpv began opening the pending file

	bgCancel context.CancelFunc
}

// Returns a new player.
// Must call Init on the player before it is ready for playback.
func New() *Player {
	return NewWithClientName("")
}

// Same as New, but sets the application name that mpv
// reports to the system audio API.
func NewWithClientName(c string) *Player {
	return &Player{
		vol:        -1, // use 100 in Init
		clientName: c,
	}
}

// Initializes the Player and makes it ready for playback.
// Most Player functions will return ErrUnitialized if called before Init.
func (p *Player) Init(maxCacheMB int) error {
	if !p.initialized {
		m := mpv.Create()

		m.SetOptionString("idle", "yes")
		m.SetOptionString("video", "no")
		m.SetOptionString("audio-display", "no")
		m.SetOptionString("keep-open", "no")
		m.SetOptionString("terminal", "no")

		// limit in-memory cache size
		maxBackMB := maxCacheMB / 3
		maxForwardMB := maxBackMB + maxBackMB
		m.SetOptionString("demuxer-max-bytes", fmt.Sprintf("%dMiB", maxForwardMB))
		m.SetOptionString("demuxer-max-back-bytes", fmt.Sprintf("%dMiB", maxBackMB))

		if p.vol < 0 {
			p.vol = 100
		}
		m.SetOption("volume", mpv.FORMAT_INT64, p.vol)

		if p.clientName != "" {
			m.SetOptionString("audio-client-name", p.clientName)
		}

		if err := m.Initialize(); err != nil {
			return fmt.Errorf("error initializing mpv: %s", err.Error())
		}

		p.mpv = m
	}
	ctx, cancel := context.WithCancel(context.Background())
	go p.eventHandler(ctx)
	p.bgCancel = cancel
	p.initialized = true
	return nil
}

// Load replaces the current file with path, paused at the start,
// and waits for mpv to open it.
func (p *Player) Load(path string) (float64, error) {
	if !p.initialized {
		return 0, ErrUnitialized
	}
	if err := p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, true); err != nil {
		return 0, err
	}

	done := make(chan error, 1)
	p.mu.Lock()
	p.pending = done
	p.started = false
	p.loaded = false
	p.reachedEnd = false
	p.mu.Unlock()

	if err := p.mpv.Command([]string{"loadfile", path, "replace"}); err != nil {
		p.clearPending(done)
		return 0, err
	}

	select {
	case err := <-done:
		if err != nil {
			return 0, err
		}
	case <-time.After(loadTimeout):
		p.clearPending(done)
		return 0, errLoadTimeout
	}

	var dur float64
	if d, err := p.mpv.GetProperty("duration", mpv.FORMAT_DOUBLE); err == nil && d != nil {
		dur = d.(float64)
	}
	return dur, nil
}

func (p *Player) Play() error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, false)
}

func (p *Player) Pause() error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, true)
}

// Unload stops playback and clears the mpv playlist.
func (p *Player) Unload() error {
	if !p.initialized {
		return ErrUnitialized
	}
	p.mu.Lock()
	p.loaded = false
	p.reachedEnd = false
	p.mu.Unlock()
	return p.mpv.Command([]string{"stop"})
}

// Sets the volume of the player (0-1).
// Unlike most Player functions, SetVolume can be called before Init,
// to set the initial volume of the player on startup.
func (p *Player) SetVolume(vol float64) error {
	v := int(player.ClampVolume(vol)*100 + 0.5)
	if p.initialized {
		err := p.mpv.SetProperty("volume", mpv.FORMAT_INT64, int64(v))
		if err == nil {
			p.vol = v
		}
		return err
	}
	p.vol = v
	return nil
}

// Gets the current volume of the player (0-1).
func (p *Player) GetVolume() float64 {
	return float64(p.vol) / 100
}

func (p *Player) Position() float64 {
	if !p.initialized {
		return 0
	}
	pos, _ := p.mpv.GetProperty("playback-time", mpv.FORMAT_DOUBLE)
	if pos == nil {
		return 0
	}
	return pos.(float64)
}

func (p *Player) IsFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.loaded || p.reachedEnd
}

// List available audio devices.
func (p *Player) ListAudioDevices() ([]AudioDevice, error) {
	if !p.initialized {
		return nil, ErrUnitialized
	}
	n, err := p.mpv.GetProperty("audio-device-list", mpv.FORMAT_NODE)
	if err != nil {
		return nil, err
	}
	nodeArr := n.(*mpv.Node).Data.([]*mpv.Node)

	devices := make([]AudioDevice, len(nodeArr))
	for i, node := range nodeArr {
		dev := node.Data.(map[string]*mpv.Node)
		name := dev["name"].Data.(string)
		desc := dev["description"].Data.(string)
		devices[i] = AudioDevice{Name: name, Description: desc}
	}
	return devices, nil
}

func (p *Player) SetAudioDevice(deviceName string) error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.SetPropertyString("audio-device", deviceName)
}

// Destroy the player.
func (p *Player) Destroy() {
	if p.bgCancel != nil {
		p.bgCancel()
	}
	if p.initialized {
		p.mpv.Command([]string{"stop"})
		p.mpv.TerminateDestroy()
		p.initialized = false
	}
}

func (p *Player) clearPending(ch chan error) {
	p.mu.Lock()
	if p.pending == ch {
		p.pending = nil
		p.started = false
	}
	p.mu.Unlock()
}

func (p *Player) completePending(err error) {
	p.mu.Lock()
	ch := p.pending
	p.pending = nil
	p.started = false
	if err == nil && ch != nil {
		p.loaded = true
		p.reachedEnd = false
	}
	p.mu.Unlock()
	if ch != nil {
		ch <- err
	}
}

func (p *Player) eventHandler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			e := p.mpv.WaitEvent(1 /*timeout seconds*/)
			switch e.Event_Id {
			case mpv.EVENT_FILE_LOADED:
				p.completePending(nil)
			case mpv.EVENT_START_FILE:
				p.mu.Lock()
				p.started = p.pending != nil
				p.mu.Unlock()
			case mpv.EVENT_END_FILE:
				// the replaced file ends before the pending one starts;
				// a pending file that ends before FILE_LOADED failed to open
				p.mu.Lock()
				failed := p.started
				p.mu.Unlock()
				if failed {
					p.completePending(errors.New("mpv could not open file"))
				}
			case mpv.EVENT_IDLE:
				p.mu.Lock()
				if p.loaded {
					p.reachedEnd = true
				}
				p.mu.Unlock()
			}
		}
	}
}
