package backend

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadConfigFile_Repairs(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, configFile)
	cfg := `
[LocalPlayback]
AudioEngine = "pulseaudio"
Volume = 4.5

[Playback]
RepeatMode = "All"
PollIntervalMs = -20

[Library]
MusicFolder = "/srv/music"
`
	if err := os.WriteFile(p, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := ReadConfigFile(p, "v0.3.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.LocalPlayback.AudioEngine != AudioEngineMPV {
		t.Errorf("expected unknown engine to be replaced, got %q", c.LocalPlayback.AudioEngine)
	}
	if c.LocalPlayback.Volume != 1 {
		t.Errorf("expected out of range volume to be reset, got %v", c.LocalPlayback.Volume)
	}
	if c.Playback.PollIntervalMs != 500 {
		t.Errorf("expected default poll interval, got %d", c.Playback.PollIntervalMs)
	}
	if LoopModeFromString(c.Playback.RepeatMode) != LoopAll {
		t.Errorf("expected repeat mode All, got %q", c.Playback.RepeatMode)
	}
	if c.Library.MusicFolder != "/srv/music" {
		t.Errorf("music folder not read: %q", c.Library.MusicFolder)
	}
	// unset sections keep their defaults
	if c.Backend.SocketName != "localsonic-engine" || !c.MediaSession.EnableMPRIS {
		t.Errorf("defaults not kept: %+v %+v", c.Backend, c.MediaSession)
	}
}

func TestWriteConfigFile_RoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), configFile)
	c := DefaultConfig("v0.3.0")
	c.LocalPlayback.Volume = 0.25
	c.Playback.RepeatMode = LoopOne.String()
	if err := c.WriteConfigFile(p); err != nil {
		t.Fatal(err)
	}
	read, err := ReadConfigFile(p, "v0.3.0")
	if err != nil {
		t.Fatal(err)
	}
	if read.LocalPlayback.Volume != 0.25 || read.Playback.RepeatMode != "One" {
		t.Errorf("config not preserved: %+v %+v", read.LocalPlayback, read.Playback)
	}
}

func TestLoadConfig_BacksUpMalformedFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, configFile)
	if err := os.WriteFile(p, []byte("[Playback\nRepeatMode = "), 0644); err != nil {
		t.Fatal(err)
	}

	c, firstLaunch := loadConfig(dir, "v0.3.0")
	if firstLaunch {
		t.Error("existing config file should not count as first launch")
	}
	if c.Playback.RepeatMode != "None" {
		t.Errorf("expected defaults, got %+v", c.Playback)
	}
	b, err := os.ReadFile(filepath.Join(dir, configFile+".bak"))
	if err != nil {
		t.Fatalf("backup not written: %v", err)
	}
	if string(b) != "[Playback\nRepeatMode = " {
		t.Errorf("unexpected backup contents %q", b)
	}
}

func TestLoadConfig_FirstLaunch(t *testing.T) {
	dir := t.TempDir()
	c, firstLaunch := loadConfig(dir, "v0.3.0")
	if !firstLaunch {
		t.Error("expected first launch without a config file")
	}
	if c.LocalPlayback.Volume != 1 {
		t.Errorf("expected default volume, got %v", c.LocalPlayback.Volume)
	}
	if _, err := os.Stat(filepath.Join(dir, configFile+".bak")); !os.IsNotExist(err) {
		t.Error("no backup expected without a config file")
	}
}
