// Package console is a line-oriented terminal front end for the playback controller.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dweymouth/localsonic/backend"
	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/mediaprovider/helpers"
	"github.com/dweymouth/localsonic/backend/player"
	"github.com/dweymouth/localsonic/ui/util"
	"golang.org/x/term"
)

const prompt = "> "

// Console reads commands and prints playback changes.
type Console struct {
	pm *backend.PlaybackManager

	// folder added by "add" without arguments
	MusicFolder string

	mu        sync.Mutex
	out       io.Writer
	isPlaying bool
	restore   func() // restores the terminal state changed by Run
}

// New returns a Console printing to out. Call Attach before the
// PlaybackManager is started.
func New(pm *backend.PlaybackManager, out io.Writer) *Console {
	return &Console{pm: pm, out: out}
}

// Attach registers the callbacks that print playback changes.
func (c *Console) Attach() {
	c.pm.OnSongChange(func(tr *mediaprovider.Track) {
		if tr != nil {
			c.printf("Now: %s", trackLine(tr))
		}
	})
	c.pm.OnStateChange(func(s player.PlaybackState) {
		c.mu.Lock()
		changed := s.IsPlaying != c.isPlaying
		c.isPlaying = s.IsPlaying
		c.mu.Unlock()
		if changed {
			c.printf("%s", playStateName(s))
		}
	})
	c.pm.OnLoopModeChange(func(mode backend.LoopMode) {
		c.printf("Repeat: %s", mode)
	})
	c.pm.OnShuffleChange(func(on bool) {
		c.printf("Shuffle: %s", onOff(on))
	})
	c.pm.OnError(func(msg string) {
		c.printf("Error: %s", msg)
	})
}

// Run reads commands from in until "quit", end of input, or ctx is done.
// An interactive terminal gets line editing and command completion.
func (c *Console) Run(ctx context.Context, in *os.File) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return c.RunLines(ctx, in)
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return c.RunLines(ctx, in)
	}
	c.mu.Lock()
	c.restore = func() { term.Restore(fd, oldState) }
	c.mu.Unlock()
	defer c.Close()

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, os.Stdout}, prompt)
	t.AutoCompleteCallback = completeCommand
	c.mu.Lock()
	c.out = t
	c.mu.Unlock()

	for ctx.Err() == nil {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if c.Exec(line) {
			return nil
		}
	}
	return nil
}

// Close restores the terminal if Run is still reading from it.
func (c *Console) Close() {
	c.mu.Lock()
	restore := c.restore
	c.restore = nil
	c.mu.Unlock()
	if restore != nil {
		restore()
	}
}

// RunLines reads one command per line from r.
func (c *Console) RunLines(ctx context.Context, r io.Reader) error {
	s := bufio.NewScanner(r)
	for ctx.Err() == nil && s.Scan() {
		if c.Exec(s.Text()) {
			return nil
		}
	}
	return s.Err()
}

type command struct {
	usage string
	run   func(c *Console, args []string)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"files":   {"pick audio files to add", func(c *Console, _ []string) { c.pm.PickAndAddFiles() }},
		"folder":  {"pick a folder to add", func(c *Console, _ []string) { c.pm.PickAndAddFolder() }},
		"add":     {"add <path>... (files or folders)", (*Console).add},
		"play":    {"start or resume playback", func(c *Console, _ []string) { c.pm.Continue() }},
		"pause":   {"pause playback", func(c *Console, _ []string) { c.pm.Pause() }},
		"toggle":  {"toggle play/pause", func(c *Console, _ []string) { c.pm.PlayPause() }},
		"stop":    {"stop playback", func(c *Console, _ []string) { c.pm.Stop() }},
		"next":    {"play the next track", func(c *Console, _ []string) { c.pm.SeekNext() }},
		"prev":    {"play the previous track", func(c *Console, _ []string) { c.pm.SeekBackOrPrevious() }},
		"select":  {"select <n>: play track n, or toggle it if current", (*Console).selectTrack},
		"del":     {"del <n>: remove track n", (*Console).deleteTrack},
		"move":    {"move <n> <to>: move track n to position to", (*Console).moveTrack},
		"clear":   {"remove all tracks", func(c *Console, _ []string) { c.pm.ClearPlaylist() }},
		"shuffle": {"toggle shuffle", func(c *Console, _ []string) { c.pm.ToggleShuffle() }},
		"repeat":  {"repeat [none|all|one]: cycle or set the repeat mode", (*Console).repeat},
		"vol":     {"vol <0-1>: set the volume", (*Console).volume},
		"seek":    {"seek <seconds>", (*Console).seek},
		"find":    {"find <text>: search the playlist", (*Console).find},
		"list":    {"show the playlist", (*Console).list},
		"status":  {"show the playback state", (*Console).status},
		"help":    {"show this help", (*Console).help},
		"quit":    {"exit", nil},
	}
}

// Exec runs one command line. It returns true if the console should exit.
func (c *Console) Exec(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	if name == "quit" || name == "exit" {
		return true
	}
	cmd, ok := commands[name]
	if !ok {
		c.printf("Unknown command %q, type help for a list of commands", name)
		return false
	}
	cmd.run(c, args)
	return false
}

func (c *Console) add(args []string) {
	if len(args) == 0 && c.MusicFolder != "" {
		args = []string{c.MusicFolder}
	}
	if len(args) == 0 {
		c.printf("usage: add <path>...")
		return
	}
	paths := backend.ExpandPaths(args)
	if len(paths) == 0 {
		c.printf("No audio files found")
		return
	}
	c.pm.AddTracks(paths)
	c.printf("Adding %d file(s)", len(paths))
}

func (c *Console) selectTrack(args []string) {
	if idx, ok := c.trackArg(args); ok {
		c.pm.SelectTrack(idx)
	}
}

func (c *Console) deleteTrack(args []string) {
	if idx, ok := c.trackArg(args); ok {
		c.pm.DeleteTrack(idx)
	}
}

func (c *Console) moveTrack(args []string) {
	if len(args) != 2 {
		c.printf("usage: move <n> <to>")
		return
	}
	from, ok := c.trackArg(args[:1])
	if !ok {
		return
	}
	to, ok := c.trackArg(args[1:])
	if !ok {
		return
	}
	// ReorderItems inserts before an index of the unmodified playlist
	if to > from {
		to++
	}
	c.pm.MoveTracks([]int{from}, to)
}

// trackArg parses a 1-based track number into a playlist index.
func (c *Console) trackArg(args []string) (int, bool) {
	if len(args) != 1 {
		c.printf("expected a track number")
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		c.printf("invalid track number %q", args[0])
		return 0, false
	}
	if l := len(c.pm.Snapshot().Playlist); n > l {
		c.printf("no track %d, the playlist has %d", n, l)
		return 0, false
	}
	return n - 1, true
}

func (c *Console) repeat(args []string) {
	if len(args) == 0 {
		c.pm.NextLoopMode()
		return
	}
	switch strings.ToLower(args[0]) {
	case "none", "off":
		c.pm.SetLoopMode(backend.LoopNone)
	case "all":
		c.pm.SetLoopMode(backend.LoopAll)
	case "one":
		c.pm.SetLoopMode(backend.LoopOne)
	default:
		c.printf("unknown repeat mode %q", args[0])
	}
}

func (c *Console) volume(args []string) {
	if len(args) != 1 {
		c.printf("Volume: %d%%", int(c.pm.Snapshot().State.Volume*100+0.5))
		return
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		c.printf("invalid volume %q", args[0])
		return
	}
	c.pm.SetVolume(v)
}

func (c *Console) seek(args []string) {
	if len(args) != 1 {
		c.printf("usage: seek <seconds>")
		return
	}
	s, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		c.printf("invalid position %q", args[0])
		return
	}
	c.pm.SeekSeconds(s)
	c.printf("Seeking is not supported by the audio backend")
}

func (c *Console) find(args []string) {
	s := c.pm.Snapshot()
	results := helpers.SearchTracks(s.Playlist, strings.Join(args, " "))
	if len(results) == 0 {
		c.printf("No matches")
		return
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%3d. %s\n", r.Index+1, trackLine(r.Track))
	}
	c.print(b.String())
}

func (c *Console) list([]string) {
	s := c.pm.Snapshot()
	if len(s.Playlist) == 0 {
		c.printf("The playlist is empty")
		return
	}
	var b strings.Builder
	var total float64
	for i, tr := range s.Playlist {
		marker := " "
		if i == s.CurrentIndex {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s%3d. %s\n", marker, i+1, trackLine(tr))
		total += tr.Duration
	}
	fmt.Fprintf(&b, "%d tracks, %s\n", len(s.Playlist), util.SecondsToLongTimeString(total))
	c.print(b.String())
}

func (c *Console) status([]string) {
	s := c.pm.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "%s", playStateName(s.State))
	if np := s.NowPlaying(); np != nil {
		fmt.Fprintf(&b, " %d/%d: %s", s.CurrentIndex+1, len(s.Playlist), trackLine(np))
	}
	fmt.Fprintf(&b, "\nRepeat: %s  Shuffle: %s  Volume: %d%%\n",
		s.LoopMode, onOff(s.Shuffled), int(s.State.Volume*100+0.5))
	if s.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", s.LastError)
	}
	c.print(b.String())
}

func (c *Console) help([]string) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "  %-8s %s\n", name, commands[name].usage)
	}
	c.print(b.String())
}

func (c *Console) printf(format string, args ...any) {
	c.print(fmt.Sprintf(format, args...) + "\n")
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, s)
}

// completeCommand completes the command name on tab.
func completeCommand(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || strings.Contains(line[:pos], " ") {
		return "", 0, false
	}
	var match string
	for name := range commands {
		if strings.HasPrefix(name, line[:pos]) {
			if match != "" {
				return "", 0, false // ambiguous
			}
			match = name
		}
	}
	if match == "" {
		return "", 0, false
	}
	return match + " ", len(match) + 1, true
}

func trackLine(tr *mediaprovider.Track) string {
	s := tr.Title
	if tr.Artist != "" && tr.Artist != mediaprovider.UnknownArtist {
		s += " - " + tr.Artist
	}
	if tr.Duration > 0 {
		s += " [" + util.SecondsToTimeString(tr.Duration) + "]"
	}
	return s
}

func playStateName(s player.PlaybackState) string {
	switch {
	case s.IsPlaying:
		return "Playing"
	case s.CurrentTrack != nil:
		return "Paused"
	}
	return "Stopped"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
