package backend

import (
	"os"
	"sync"

	"github.com/dweymouth/localsonic/backend/ipc"
	"github.com/pelletier/go-toml/v2"
)

const (
	AudioEngineMPV       = "mpv"
	AudioEngineSimulated = "simulated"
)

type AppConfig struct {
	LastLaunchedVersion string
	AllowMultiInstance  bool
}

type LocalPlaybackConfig struct {
	// "mpv" or "simulated"
	AudioEngine         string
	AudioDeviceName     string
	InMemoryCacheSizeMB int
	Volume              float64
}

type PlaybackConfig struct {
	// "None", "All" or "One"
	RepeatMode     string
	PollIntervalMs int
}

type LibraryConfig struct {
	// folder the console lists and scans when no path is given
	MusicFolder string
}

type MediaSessionConfig struct {
	EnableMPRIS    bool
	ArtworkCacheMB int
}

type BackendConfig struct {
	// run the audio backend in a separate process
	Remote bool
	// socket of the remote audio backend
	SocketName string
	// how many times to ping a starting backend before giving up
	ConnectAttempts int
}

type Config struct {
	Application   AppConfig
	LocalPlayback LocalPlaybackConfig
	Playback      PlaybackConfig
	Library       LibraryConfig
	MediaSession  MediaSessionConfig
	Backend       BackendConfig
}

func DefaultConfig(appVersionTag string) *Config {
	return &Config{
		Application: AppConfig{
			LastLaunchedVersion: "",
			AllowMultiInstance:  false,
		},
		LocalPlayback: LocalPlaybackConfig{
			AudioEngine: AudioEngineMPV,
			// "auto" is the name to pass to MPV for autoselecting the output device
			AudioDeviceName:     "auto",
			InMemoryCacheSizeMB: 30,
			Volume:              1,
		},
		Playback: PlaybackConfig{
			RepeatMode:     LoopNone.String(),
			PollIntervalMs: 500,
		},
		MediaSession: MediaSessionConfig{
			EnableMPRIS:    true,
			ArtworkCacheMB: 20,
		},
		Backend: BackendConfig{
			Remote:          false,
			SocketName:      ipc.EngineSocket,
			ConnectAttempts: 20,
		},
	}
}

func ReadConfigFile(filepath, appVersionTag string) (*Config, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := DefaultConfig(appVersionTag)
	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}

	// repair values a hand-edited config may have out of range
	if c.LocalPlayback.Volume < 0 || c.LocalPlayback.Volume > 1 {
		c.LocalPlayback.Volume = 1
	}
	if c.Playback.PollIntervalMs <= 0 {
		c.Playback.PollIntervalMs = 500
	}
	switch c.LocalPlayback.AudioEngine {
	case AudioEngineMPV, AudioEngineSimulated:
	default:
		c.LocalPlayback.AudioEngine = AudioEngineMPV
	}

	return c, nil
}

var writeLock sync.Mutex

func (c *Config) WriteConfigFile(filepath string) error {
	if !writeLock.TryLock() {
		return nil // another write in progress
	}
	defer writeLock.Unlock()

	b, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, b, 0644)
}
