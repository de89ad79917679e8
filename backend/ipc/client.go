package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/player"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
)

var ErrPingFail = errors.New("ping failed")

const baseURL = "http://localsonic"

// conn issues HTTP requests over a named IPC socket.
// Each request dials its own connection.
type conn struct {
	name  string
	httpC *http.Client
}

func newConn(name string) *conn {
	return &conn{name: name, httpC: &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return DialContext(ctx, name)
			},
		},
	}}
}

func (c *conn) ping(ctx context.Context) error {
	if c.do(ctx, http.MethodGet, PingPath, nil, nil) != nil {
		return ErrPingFail
	}
	return nil
}

// waitForServer pings the server, retrying while it starts up.
func (c *conn) waitForServer(ctx context.Context, attempts int) error {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = c.httpC
	rc.RetryMax = attempts
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, baseURL+PingPath, nil)
	if err != nil {
		return err
	}
	resp, err := rc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPingFail, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrPingFail
	}
	return nil
}

// do sends body as JSON (if non-nil) and decodes the response into out (if non-nil).
func (c *conn) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var r Response
		json.NewDecoder(resp.Body).Decode(&r)
		if r.Error == "" {
			r.Error = resp.Status
		}
		return errors.New(r.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Client remote-controls a running app.
type Client struct {
	c *conn
}

// Connect attempts to connect to the named IPC socket as client.
func Connect(name string) (*Client, error) {
	client := &Client{c: newConn(name)}
	if err := client.Ping(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) Ping() error {
	return c.c.ping(context.Background())
}

func (c *Client) Play() error {
	return c.post(PlayPath)
}

func (c *Client) Pause() error {
	return c.post(PausePath)
}

func (c *Client) PlayPause() error {
	return c.post(PlayPausePath)
}

func (c *Client) Stop() error {
	return c.post(StopPath)
}

func (c *Client) SeekNext() error {
	return c.post(NextPath)
}

func (c *Client) SeekBackOrPrevious() error {
	return c.post(PreviousPath)
}

func (c *Client) SetVolume(vol float64) error {
	return c.post(SetVolumePath(vol))
}

func (c *Client) AddFiles(paths []string) error {
	return c.c.do(context.Background(), http.MethodPost, AddFilesPath, FilePaths{FilePaths: paths}, nil)
}

func (c *Client) Quit() error {
	return c.post(QuitPath)
}

func (c *Client) post(path string) error {
	return c.c.do(context.Background(), http.MethodPost, path, nil, nil)
}

var (
	_ player.Backend            = (*BackendClient)(nil)
	_ mediaprovider.FileService = (*BackendClient)(nil)
)

// BackendClient is a player.Backend and mediaprovider.FileService
// served by another process.
type BackendClient struct {
	player.BackendCallbackImpl

	c      *conn
	dialer websocket.Dialer
}

// ConnectBackend connects to the named backend socket, retrying
// up to attempts times while the backend starts.
func ConnectBackend(ctx context.Context, name string, attempts int) (*BackendClient, error) {
	c := newConn(name)
	if err := c.waitForServer(ctx, attempts); err != nil {
		return nil, err
	}
	return &BackendClient{
		c: c,
		dialer: websocket.Dialer{
			NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return DialContext(ctx, name)
			},
			HandshakeTimeout: 5 * time.Second,
		},
	}, nil
}

func (b *BackendClient) LoadTrack(ctx context.Context, path string) (player.PlaybackState, error) {
	return b.state(ctx, LoadTrackPath, FilePath{FilePath: path})
}

func (b *BackendClient) Play(ctx context.Context) (player.PlaybackState, error) {
	return b.state(ctx, AudioPlayPath, nil)
}

func (b *BackendClient) Pause(ctx context.Context) (player.PlaybackState, error) {
	return b.state(ctx, AudioPausePath, nil)
}

func (b *BackendClient) Stop(ctx context.Context) (player.PlaybackState, error) {
	return b.state(ctx, AudioStopPath, nil)
}

func (b *BackendClient) SetVolume(ctx context.Context, vol float64) (player.PlaybackState, error) {
	return b.state(ctx, AudioVolumePath, Volume{Volume: vol})
}

func (b *BackendClient) CheckFinished(ctx context.Context) (bool, error) {
	var f Finished
	err := b.c.do(ctx, http.MethodGet, CheckFinishedPath, nil, &f)
	return f.Finished, err
}

// State fetches the backend state without changing it.
func (b *BackendClient) State(ctx context.Context) (player.PlaybackState, error) {
	var st player.PlaybackState
	err := b.c.do(ctx, http.MethodGet, AudioStatePath, nil, &st)
	return st, err
}

func (b *BackendClient) PickAudioFiles(ctx context.Context) ([]string, error) {
	var fp FilePaths
	err := b.c.do(ctx, http.MethodPost, PickFilesPath, nil, &fp)
	return fp.FilePaths, err
}

func (b *BackendClient) PickAudioFolder(ctx context.Context) ([]string, error) {
	var fp FilePaths
	err := b.c.do(ctx, http.MethodPost, PickFolderPath, nil, &fp)
	return fp.FilePaths, err
}

func (b *BackendClient) GetMetadata(ctx context.Context, path string) (*mediaprovider.Track, error) {
	var tr mediaprovider.Track
	if err := b.c.do(ctx, http.MethodPost, MetadataPath, FilePath{FilePath: path}, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (b *BackendClient) GetMultipleMetadata(ctx context.Context, paths []string) ([]*mediaprovider.Track, error) {
	var trs []*mediaprovider.Track
	err := b.c.do(ctx, http.MethodPost, MetadataBatchPath, FilePaths{FilePaths: paths}, &trs)
	return trs, err
}

// Quit asks the backend process to exit.
func (b *BackendClient) Quit(ctx context.Context) error {
	return b.c.do(ctx, http.MethodPost, QuitPath, nil, nil)
}

// ListenEvents receives push notifications until ctx is cancelled,
// reconnecting if the connection drops. Blocks until the first
// connection is established or fails.
func (b *BackendClient) ListenEvents(ctx context.Context) error {
	ws, err := b.dialEvents(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			b.readEvents(ctx, ws)
			if ctx.Err() != nil {
				return
			}
			log.Println("backend event stream disconnected, reconnecting")
			if ws = b.redialEvents(ctx); ws == nil {
				return
			}
		}
	}()
	return nil
}

func (b *BackendClient) redialEvents(ctx context.Context) *websocket.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
		if ws, err := b.dialEvents(ctx); err == nil {
			return ws
		}
	}
}

func (b *BackendClient) dialEvents(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := b.dialer.DialContext(ctx, "ws://localsonic"+EventsPath, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws, err
}

func (b *BackendClient) readEvents(ctx context.Context, ws *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()
	defer ws.Close()
	for {
		var e Event
		if err := ws.ReadJSON(&e); err != nil {
			return
		}
		switch e.Event {
		case player.EventStateChanged:
			b.InvokeOnStateChanged(e.Payload)
		case player.EventTrackEnded:
			b.InvokeOnTrackEnded(e.Payload)
		}
	}
}

func (b *BackendClient) state(ctx context.Context, path string, body any) (player.PlaybackState, error) {
	var st player.PlaybackState
	err := b.c.do(ctx, http.MethodPost, path, body, &st)
	return st, err
}
