package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/20after4/configdir"
	"github.com/dweymouth/localsonic/backend/ipc"
	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/mediaprovider/local"
	"github.com/dweymouth/localsonic/backend/player"
	"github.com/dweymouth/localsonic/backend/player/mpv"
	"github.com/dweymouth/localsonic/backend/player/simulated"
	"github.com/dweymouth/localsonic/backend/util"
)

const (
	configFile      = "config.toml"
	portableDir     = "localsonic_portable"
	artworkCacheDir = "artwork"

	// duration the simulated engine plays files it cannot read a duration from
	simulatedTrackSeconds = 180

	engineQuitTimeout = 3 * time.Second
)

var ErrAnotherInstance = errors.New("another instance is running")

var _ RemoteControl = (*ipc.Client)(nil)

type App struct {
	Config          *Config
	PlaybackManager *PlaybackManager
	Files           mediaprovider.FileService
	Artwork         *ArtworkCache
	MPRIS           *MPRISSession

	// UI callback to be set in main
	OnExit func()

	appName       string
	appVersionTag string
	configDir     string
	cacheDir      string

	isFirstLaunch bool // set by config file reader
	bgrndCtx      context.Context
	cancel        context.CancelFunc

	backend   player.Backend
	host      *player.Host       // nil with a remote backend
	remote    *ipc.BackendClient // nil with a local backend
	engineCmd *exec.Cmd          // spawned backend process, if any
	ipcServer *ipc.Server

	cfgLock        sync.Mutex
	lastWrittenCfg Config
	shutdownOnce   sync.Once
}

// StartupApp reads the config and builds the playback stack.
// If another instance is running, the command line actions are forwarded
// to it and ErrAnotherInstance is returned.
// Callbacks may be registered on the PlaybackManager until Start is called.
func StartupApp(appName, displayAppName, appVersionTag string) (*App, error) {
	confDir, cacheDir, portableMode := appDirs(appName)
	// ensure config and cache dirs exist
	configdir.MakePath(confDir)
	configdir.MakePath(cacheDir)

	a := &App{
		appName:       appName,
		appVersionTag: appVersionTag,
		configDir:     confDir,
		cacheDir:      cacheDir,
	}
	a.readConfig()

	if !a.Config.Application.AllowMultiInstance || HaveRemoteCommandLineOptions() {
		if cli, err := ipc.Connect(ipc.AppSocket); err == nil {
			log.Println("Another instance is running. Forwarding command line options...")
			if err := ApplyCommandLineOptions(cli); err != nil {
				log.Printf("failed to forward command line options: %v", err)
			}
			return nil, ErrAnotherInstance
		}
	}

	log.Printf("Starting %s...", appName)
	if portableMode {
		log.Println("Running in portable mode")
	}
	log.Printf("Using config dir: %s", confDir)
	log.Printf("Using cache dir: %s", cacheDir)

	a.bgrndCtx, a.cancel = context.WithCancel(context.Background())
	a.Config.Application.LastLaunchedVersion = appVersionTag
	a.startConfigWriter(a.bgrndCtx)

	if err := a.initBackend(); err != nil {
		a.cancel()
		return nil, err
	}
	a.PlaybackManager = NewPlaybackManager(a.bgrndCtx, a.backend, a.Files, &a.Config.Playback)
	a.PlaybackManager.OnLoopModeChange(func(mode LoopMode) {
		a.cfgLock.Lock()
		a.Config.Playback.RepeatMode = mode.String()
		a.cfgLock.Unlock()
	})
	a.PlaybackManager.OnVolumeChange(func(vol float64) {
		a.cfgLock.Lock()
		a.Config.LocalPlayback.Volume = vol
		a.cfgLock.Unlock()
	})
	a.PlaybackManager.OnError(func(msg string) {
		log.Printf("playback error: %s", msg)
	})

	a.Artwork = NewArtworkCache(path.Join(cacheDir, artworkCacheDir), a.Config.MediaSession.ArtworkCacheMB)
	if a.Config.MediaSession.EnableMPRIS {
		a.setupMPRIS(displayAppName)
	}
	return a, nil
}

// Start runs the playback loop and begins serving remote control requests.
func (a *App) Start() {
	a.PlaybackManager.Start()
	if a.host == nil {
		// a remote backend keeps its own volume; apply the saved one
		a.PlaybackManager.SetVolume(a.Config.LocalPlayback.Volume)
	}

	if l, err := ipc.Listen(ipc.AppSocket); err != nil {
		log.Printf("failed to start remote control socket: %v", err)
	} else {
		a.ipcServer = ipc.NewServer(ipc.Handlers{Playback: a.PlaybackManager, App: a})
		go func() {
			if err := a.ipcServer.Serve(l); err != nil {
				log.Printf("remote control server exited: %v", err)
			}
		}()
	}

	if a.MPRIS != nil {
		a.MPRIS.Start()
	}
	if err := ApplyCommandLineOptions(localControl{pm: a.PlaybackManager}); err != nil {
		log.Printf("failed to apply command line options: %v", err)
	}
}

func (a *App) IsFirstLaunch() bool {
	return a.isFirstLaunch
}

// MusicFolder returns the configured music folder, if any.
func (a *App) MusicFolder() string {
	a.cfgLock.Lock()
	defer a.cfgLock.Unlock()
	return a.Config.Library.MusicFolder
}

// Quit asks the UI to exit. It is called for remote quit requests.
func (a *App) Quit() {
	if a.OnExit != nil {
		a.OnExit()
	}
}

func appDirs(appName string) (confDir, cacheDir string, portable bool) {
	if p := checkPortablePath(); p != "" {
		return path.Join(p, "config"), path.Join(p, "cache"), true
	}
	return configdir.LocalConfig(appName), configdir.LocalCache(appName), false
}

func checkPortablePath() string {
	if p, err := os.Executable(); err == nil {
		pdirPath := path.Join(filepath.Dir(p), portableDir)
		if s, err := os.Stat(pdirPath); err == nil && s.IsDir() {
			return pdirPath
		}
	}
	return ""
}

func (a *App) readConfig() {
	a.Config, a.isFirstLaunch = loadConfig(a.configDir, a.appVersionTag)
}

// loadConfig reads the config file in configDir, falling back to defaults.
// A config file that cannot be read is copied to config.toml.bak.
func loadConfig(configDir, appVersionTag string) (cfg *Config, firstLaunch bool) {
	cfgPath := path.Join(configDir, configFile)
	var cfgExists bool
	if _, err := os.Stat(cfgPath); err == nil {
		cfgExists = true
	}
	cfg, err := ReadConfigFile(cfgPath, appVersionTag)
	if err != nil {
		if cfgExists {
			log.Printf("Error reading app config file: %v", err)
		}
		cfg = DefaultConfig(appVersionTag)
		if cfgExists {
			backupCfgName := fmt.Sprintf("%s.bak", configFile)
			log.Printf("Config file may be malformed: copying to %s", backupCfgName)
			_ = util.CopyFile(cfgPath, path.Join(configDir, backupCfgName))
		}
	}
	return cfg, !cfgExists
}

// periodically save config file so abnormal exit won't lose settings
func (a *App) startConfigWriter(ctx context.Context) {
	tick := time.NewTicker(2 * time.Minute)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				a.SaveConfigFile()
			}
		}
	}()
}

func (a *App) initBackend() error {
	if a.Config.Backend.Remote {
		return a.startRemoteBackend()
	}
	engine := newEngine(a.appName, &a.Config.LocalPlayback, *FlagNoAudio)
	a.host = player.NewHost(engine, a.Config.LocalPlayback.Volume)
	a.backend = a.host
	a.Files = local.NewProvider(local.NativePicker{StartDir: a.Config.Library.MusicFolder})
	return nil
}

// startRemoteBackend runs this executable in engine-only mode
// and connects to it as audio backend and file service.
func (a *App) startRemoteBackend() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"-engine-only"}
	if *FlagNoAudio {
		args = append(args, "-no-audio")
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start audio backend: %w", err)
	}
	a.engineCmd = cmd

	client, err := ipc.ConnectBackend(a.bgrndCtx, a.Config.Backend.SocketName, a.Config.Backend.ConnectAttempts)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return fmt.Errorf("failed to connect to audio backend: %w", err)
	}
	go func() {
		if err := client.ListenEvents(a.bgrndCtx); err != nil {
			log.Printf("audio backend events: %v", err)
		}
	}()
	a.remote = client
	a.backend = client
	a.Files = client
	return nil
}

// newEngine returns the mpv engine, or the simulated engine if it is
// configured, requested with noAudio, or mpv fails to initialize.
func newEngine(appName string, c *LocalPlaybackConfig, noAudio bool) player.Engine {
	if noAudio || c.AudioEngine == AudioEngineSimulated {
		return newSimulatedEngine()
	}
	p, err := initMPV(appName, c)
	if err != nil {
		log.Printf("%v; using the simulated audio engine", err)
		return newSimulatedEngine()
	}
	return p
}

func newSimulatedEngine() *simulated.Engine {
	return simulated.New(func(path string) (float64, error) {
		if err := local.ValidateAudioFile(path); err != nil {
			return 0, err
		}
		if d, err := local.ReadDuration(path); err == nil && d > 0 {
			return d, nil
		}
		return simulatedTrackSeconds, nil
	})
}

func initMPV(appName string, c *LocalPlaybackConfig) (*mpv.Player, error) {
	p := mpv.NewWithClientName(appName)
	c.InMemoryCacheSizeMB = clamp(c.InMemoryCacheSizeMB, 10, 500)
	p.SetVolume(c.Volume)
	if err := p.Init(c.InMemoryCacheSizeMB); err != nil {
		return nil, fmt.Errorf("failed to initialize mpv player: %s", err.Error())
	}

	devs, err := p.ListAudioDevices()
	if err != nil {
		return p, nil
	}
	desiredDevice := c.AudioDeviceName
	var desiredDeviceAvailable bool
	for _, dev := range devs {
		if dev.Name == desiredDevice {
			desiredDeviceAvailable = true
			break
		}
	}
	if !desiredDeviceAvailable {
		// The audio device the user has configured is not available.
		// Use the default (autoselect) device but leave the setting unchanged,
		// in case the device is later available on a subsequent run of the app
		// (e.g. a USB audio device that is currently unplugged)
		desiredDevice = "auto"
	}
	p.SetAudioDevice(desiredDevice)
	return p, nil
}

func (a *App) setupMPRIS(mprisAppName string) {
	pm := a.PlaybackManager
	a.MPRIS = NewMPRISSession(mprisAppName, pm.TransportHandlers())
	a.MPRIS.OnVolume = pm.SetVolume
	a.MPRIS.OnLoopMode = pm.SetLoopMode
	a.MPRIS.OnQuit = func() error {
		if a.OnExit == nil {
			return errors.New("no quit handler registered")
		}
		go func() {
			time.Sleep(10 * time.Millisecond)
			a.OnExit()
		}()
		return nil
	}
	a.MPRIS.UpdateVolume(a.Config.LocalPlayback.Volume)
	a.MPRIS.UpdateLoopMode(LoopModeFromString(a.Config.Playback.RepeatMode))
	pm.OnVolumeChange(a.MPRIS.UpdateVolume)
	pm.OnLoopModeChange(a.MPRIS.UpdateLoopMode)
	ConnectMediaSession(pm, a.MPRIS, a.Artwork.URLForFile)
}

// RunEngineOnly serves the audio backend and file service on the engine socket
// until a quit request is received or ctx is cancelled.
func RunEngineOnly(ctx context.Context, appName, appVersionTag string) error {
	confDir, _, _ := appDirs(appName)
	cfg, _ := loadConfig(confDir, appVersionTag)
	host := player.NewHost(newEngine(appName, &cfg.LocalPlayback, *FlagNoAudio), cfg.LocalPlayback.Volume)
	defer host.Destroy()
	files := local.NewProvider(local.NativePicker{StartDir: cfg.Library.MusicFolder})

	l, err := ipc.Listen(cfg.Backend.SocketName)
	if err != nil {
		return fmt.Errorf("failed to listen on engine socket: %w", err)
	}
	defer ipc.DestroyConn(cfg.Backend.SocketName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv := ipc.NewServer(ipc.Handlers{Audio: host, Files: files, App: quitFunc(cancel)})
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		srv.Shutdown(sctx)
	}()
	log.Printf("Audio backend listening on %s", ipc.SocketPath(cfg.Backend.SocketName))
	return srv.Serve(l)
}

type quitFunc func()

func (q quitFunc) Quit() { q() }

// Shutdown stops playback, saves the volume and config
// and releases the audio backend.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	if a.ipcServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		a.ipcServer.Shutdown(ctx)
		cancel()
		ipc.DestroyConn(ipc.AppSocket)
	}
	if a.MPRIS != nil {
		a.MPRIS.Close()
	}

	a.PlaybackManager.Shutdown()

	if a.remote != nil {
		a.stopRemoteBackend()
	}
	a.cancel()
	if a.host != nil {
		a.host.Destroy()
	}
	a.SaveConfigFile()
}

func (a *App) stopRemoteBackend() {
	ctx, cancel := context.WithTimeout(context.Background(), engineQuitTimeout)
	defer cancel()
	if err := a.remote.Quit(ctx); err != nil {
		log.Printf("failed to stop audio backend: %v", err)
	}
	if a.engineCmd == nil {
		return
	}
	exited := make(chan struct{})
	go func() {
		a.engineCmd.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-ctx.Done():
		log.Println("audio backend did not exit, killing it")
		a.engineCmd.Process.Kill()
		<-exited
	}
}

func (a *App) SaveConfigFile() {
	a.cfgLock.Lock()
	defer a.cfgLock.Unlock()
	if reflect.DeepEqual(&a.lastWrittenCfg, a.Config) {
		return
	}
	if err := a.Config.WriteConfigFile(a.configFilePath()); err != nil {
		log.Printf("failed to save config: %v", err)
		return
	}
	a.lastWrittenCfg = *a.Config
}

func (a *App) configFilePath() string {
	return path.Join(a.configDir, configFile)
}

func clamp(i, min, max int) int {
	if i < min {
		i = min
	} else if i > max {
		i = max
	}
	return i
}
