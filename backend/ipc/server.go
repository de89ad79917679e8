package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/dweymouth/localsonic/backend/mediaprovider"
	"github.com/dweymouth/localsonic/backend/player"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"
)

// maximum simultaneous connections accepted on the socket
const maxConns = 16

var upgrader = websocket.Upgrader{
	// only reachable through the local socket
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PlaybackHandler receives remote-control requests for a running app.
type PlaybackHandler interface {
	PlayPause()
	Stop()
	Pause()
	Continue()
	SeekBackOrPrevious()
	SeekNext()
	SetVolume(float64)
	AddFiles([]string)
}

type AppHandler interface {
	Quit()
}

// Handlers selects the endpoints a Server exposes.
// Endpoints of nil handlers are not registered.
type Handlers struct {
	Audio    player.Backend
	Files    mediaprovider.FileService
	Playback PlaybackHandler
	App      AppHandler
}

type Server struct {
	h           Handlers
	srv         *http.Server
	hub         *eventHub
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe []func()
}

func NewServer(h Handlers) *Server {
	s := &Server{h: h, hub: newEventHub()}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.srv = &http.Server{Handler: s.createHandler()}
	go s.hub.run(s.ctx)

	if h.Audio != nil {
		s.unsubscribe = append(s.unsubscribe,
			h.Audio.OnStateChanged(func(st player.PlaybackState) {
				s.publish(Event{Event: player.EventStateChanged, Payload: st})
			}),
			h.Audio.OnTrackEnded(func(st player.PlaybackState) {
				s.publish(Event{Event: player.EventTrackEnded, Payload: st})
			}),
		)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	err := s.srv.Serve(netutil.LimitListener(l, maxConns))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server and disconnects event subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) publish(e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("failed to encode event: %v", err)
		return
	}
	select {
	case s.hub.broadcast <- b:
	case <-s.ctx.Done():
	}
}

func (s *Server) createHandler() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("The given path is not valid"))
	})
	r.Get(PingPath, s.makeSimpleEndpointHandler(func() error { return nil }))

	if s.h.Audio != nil {
		s.addAudioRoutes(r)
	}
	if s.h.Files != nil {
		s.addFileRoutes(r)
	}
	if pb := s.h.Playback; pb != nil {
		r.Post(PlayPath, s.makeSimpleEndpointHandler(noErr(pb.Continue)))
		r.Post(PausePath, s.makeSimpleEndpointHandler(noErr(pb.Pause)))
		r.Post(PlayPausePath, s.makeSimpleEndpointHandler(noErr(pb.PlayPause)))
		r.Post(StopPath, s.makeSimpleEndpointHandler(noErr(pb.Stop)))
		r.Post(PreviousPath, s.makeSimpleEndpointHandler(noErr(pb.SeekBackOrPrevious)))
		r.Post(NextPath, s.makeSimpleEndpointHandler(noErr(pb.SeekNext)))
		r.Post(VolumePath, func(w http.ResponseWriter, r *http.Request) {
			v, err := strconv.ParseFloat(r.URL.Query().Get("v"), 64)
			if err != nil {
				s.writeErr(w, err)
				return
			}
			pb.SetVolume(v)
			s.writeOK(w)
		})
		r.Post(AddFilesPath, func(w http.ResponseWriter, r *http.Request) {
			var req FilePaths
			if !s.decode(w, r, &req) {
				return
			}
			pb.AddFiles(req.FilePaths)
			s.writeOK(w)
		})
	}
	if s.h.App != nil {
		r.Post(QuitPath, s.makeSimpleEndpointHandler(func() error {
			go s.h.App.Quit()
			return nil
		}))
	}
	return r
}

func (s *Server) addAudioRoutes(r chi.Router) {
	audio := s.h.Audio
	r.Post(LoadTrackPath, func(w http.ResponseWriter, r *http.Request) {
		var req FilePath
		if !s.decode(w, r, &req) {
			return
		}
		st, err := audio.LoadTrack(r.Context(), req.FilePath)
		s.writeResult(w, st, err)
	})
	r.Post(AudioPlayPath, s.makeStateEndpointHandler(audio.Play))
	r.Post(AudioPausePath, s.makeStateEndpointHandler(audio.Pause))
	r.Post(AudioStopPath, s.makeStateEndpointHandler(audio.Stop))
	r.Post(AudioVolumePath, func(w http.ResponseWriter, r *http.Request) {
		var req Volume
		if !s.decode(w, r, &req) {
			return
		}
		st, err := audio.SetVolume(r.Context(), req.Volume)
		s.writeResult(w, st, err)
	})
	r.Get(CheckFinishedPath, func(w http.ResponseWriter, r *http.Request) {
		fin, err := audio.CheckFinished(r.Context())
		s.writeResult(w, Finished{Finished: fin}, err)
	})
	if sp, ok := audio.(interface{ State() player.PlaybackState }); ok {
		r.Get(AudioStatePath, func(w http.ResponseWriter, r *http.Request) {
			s.writeResult(w, sp.State(), nil)
		})
	}
	r.Get(EventsPath, s.handleEvents)
}

func (s *Server) addFileRoutes(r chi.Router) {
	files := s.h.Files
	r.Post(PickFilesPath, func(w http.ResponseWriter, r *http.Request) {
		paths, err := files.PickAudioFiles(r.Context())
		s.writeResult(w, FilePaths{FilePaths: paths}, err)
	})
	r.Post(PickFolderPath, func(w http.ResponseWriter, r *http.Request) {
		paths, err := files.PickAudioFolder(r.Context())
		s.writeResult(w, FilePaths{FilePaths: paths}, err)
	})
	r.Post(MetadataPath, func(w http.ResponseWriter, r *http.Request) {
		var req FilePath
		if !s.decode(w, r, &req) {
			return
		}
		tr, err := files.GetMetadata(r.Context(), req.FilePath)
		s.writeResult(w, tr, err)
	})
	r.Post(MetadataBatchPath, func(w http.ResponseWriter, r *http.Request) {
		var req FilePaths
		if !s.decode(w, r, &req) {
			return
		}
		trs, err := files.GetMultipleMetadata(r.Context(), req.FilePaths)
		s.writeResult(w, trs, err)
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events upgrade failed: %v", err)
		return
	}
	client := &eventClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	select {
	case s.hub.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump(s.ctx)
}

func (s *Server) makeSimpleEndpointHandler(f func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeSimpleResponse(w, f())
	}
}

func (s *Server) makeStateEndpointHandler(f func(context.Context) (player.PlaybackState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := f(r.Context())
		s.writeResult(w, st, err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeErr(w, err)
		return false
	}
	return true
}

func (s *Server) writeSimpleResponse(w http.ResponseWriter, err error) {
	if err == nil {
		s.writeOK(w)
	} else {
		s.writeErr(w, err)
	}
}

func (s *Server) writeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		s.writeErr(w, err)
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

func (s *Server) writeOK(w http.ResponseWriter) (int, error) {
	var r Response
	b, err := json.Marshal(&r)
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

func (s *Server) writeErr(w http.ResponseWriter, err error) (int, error) {
	r := Response{Error: err.Error()}
	b, err := json.Marshal(&r)
	if err != nil {
		return 0, err
	}
	w.WriteHeader(http.StatusInternalServerError)
	return w.Write(b)
}

func noErr(f func()) func() error {
	return func() error {
		f()
		return nil
	}
}
