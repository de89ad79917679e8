package backend

import (
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dweymouth/localsonic/backend/mediaprovider/local"
)

var (
	VolumeCLIArg float64 = -1
	AddCLIArgs   []string

	FlagPlay       = flag.Bool("play", false, "unpause or begin playback")
	FlagPause      = flag.Bool("pause", false, "pause playback")
	FlagPlayPause  = flag.Bool("play-pause", false, "toggle play/pause state")
	FlagStop       = flag.Bool("stop", false, "stop playback")
	FlagPrevious   = flag.Bool("previous", false, "play the previous track")
	FlagNext       = flag.Bool("next", false, "play the next track")
	FlagEngineOnly = flag.Bool("engine-only", false, "run only the audio backend, serving it on the engine socket")
	FlagNoAudio    = flag.Bool("no-audio", false, "use the simulated audio engine")
	FlagVersion    = flag.Bool("version", false, "print app version and exit")
	FlagHelp       = flag.Bool("help", false, "print command line options and exit")
)

func init() {
	flag.Func("volume", "sets the playback volume (0.0-1.0)", func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		VolumeCLIArg = v
		return err
	})
	flag.Func("add", "adds an audio file or folder to the playlist (may be repeated)", func(s string) error {
		AddCLIArgs = append(AddCLIArgs, s)
		return nil
	})
}

// HaveRemoteCommandLineOptions reports whether any flag that controls
// a running instance was given.
func HaveRemoteCommandLineOptions() bool {
	visitedAny := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "engine-only", "no-audio", "version", "help":
		default:
			visitedAny = true
		}
	})
	return visitedAny
}

// RemoteControl is the playback control surface the command line drives,
// either a running instance over IPC or the local PlaybackManager.
type RemoteControl interface {
	Play() error
	Pause() error
	PlayPause() error
	Stop() error
	SeekNext() error
	SeekBackOrPrevious() error
	SetVolume(float64) error
	AddFiles([]string) error
}

// ApplyCommandLineOptions sends the actions requested on the command line to rc.
// Files are added before any transport action is applied.
func ApplyCommandLineOptions(rc RemoteControl) error {
	var errs []error
	if paths := ExpandPaths(AddCLIArgs); len(paths) > 0 {
		errs = append(errs, rc.AddFiles(paths))
	}
	if VolumeCLIArg >= 0 {
		errs = append(errs, rc.SetVolume(VolumeCLIArg))
	}
	if *FlagPlay {
		errs = append(errs, rc.Play())
	}
	if *FlagPause {
		errs = append(errs, rc.Pause())
	}
	if *FlagPlayPause {
		errs = append(errs, rc.PlayPause())
	}
	if *FlagStop {
		errs = append(errs, rc.Stop())
	}
	if *FlagPrevious {
		errs = append(errs, rc.SeekBackOrPrevious())
	}
	if *FlagNext {
		errs = append(errs, rc.SeekNext())
	}
	return errors.Join(errs...)
}

// ExpandPaths makes paths absolute, replacing folders
// with the audio files found in them.
func ExpandPaths(args []string) []string {
	var paths []string
	for _, arg := range args {
		p, err := filepath.Abs(arg)
		if err != nil {
			log.Printf("ignoring %s: %v", arg, err)
			continue
		}
		if s, err := os.Stat(p); err == nil && s.IsDir() {
			found, err := local.ScanDirectory(p)
			if err != nil {
				log.Printf("ignoring %s: %v", arg, err)
			}
			paths = append(paths, found...)
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

type localControl struct {
	pm *PlaybackManager
}

var _ RemoteControl = localControl{}

func (l localControl) Play() error               { l.pm.Continue(); return nil }
func (l localControl) Pause() error              { l.pm.Pause(); return nil }
func (l localControl) PlayPause() error          { l.pm.PlayPause(); return nil }
func (l localControl) Stop() error               { l.pm.Stop(); return nil }
func (l localControl) SeekNext() error           { l.pm.SeekNext(); return nil }
func (l localControl) SeekBackOrPrevious() error { l.pm.SeekBackOrPrevious(); return nil }
func (l localControl) SetVolume(v float64) error { l.pm.SetVolume(v); return nil }
func (l localControl) AddFiles(p []string) error { l.pm.AddFiles(p); return nil }
