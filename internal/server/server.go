// Package server exposes the HTTP surface: static controller/viewer pages
// and the control/watch WebSocket endpoints.
package server

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/livecaster/liveasr/internal/config"
	"github.com/livecaster/liveasr/internal/session"
)

// Server routes page and socket traffic to the session registry.
type Server struct {
	sessions *session.Registry
	settings config.Settings
	upgrader websocket.Upgrader
}

// New creates a server over an existing registry.
func New(sessions *session.Registry, settings config.Settings) *Server {
	return &Server{
		sessions: sessions,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Controller and viewer pages are served from this process;
			// cross-origin pages are allowed for local tooling.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/liveasr/watch/{id}", s.viewerPage).Methods(http.MethodGet)
	r.HandleFunc("/liveasr/{id}", s.controllerPage).Methods(http.MethodGet)
	r.HandleFunc("/ws/liveasr/control/{id}", s.controlSocket)
	r.HandleFunc("/ws/liveasr/watch/{id}", s.watchSocket)
	r.PathPrefix("/js/").Handler(http.StripPrefix("/js/",
		http.FileServer(http.Dir(filepath.Join(s.settings.WebDir, "js")))))
	return r
}

func (s *Server) controllerPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.settings.WebDir, "index.html"))
}

func (s *Server) viewerPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.settings.WebDir, "watch.html"))
}

// controlSocket runs the controller connection: text frames are control
// messages, binary frames are encoded audio.
func (s *Server) controlSocket(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["id"]
	logger := logrus.WithField("stream_id", streamID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("Controller upgrade failed")
		return
	}
	client := newWSClient(conn)
	logger = logger.WithField("conn_id", client.ID())

	sess := s.sessions.GetOrCreate(streamID)
	if err := sess.ConnectController(client); err != nil {
		logger.WithError(err).Warn("Controller rejected")
		client.CloseWithPolicy(err.Error())
		s.sessions.RemoveIfEmpty(streamID)
		return
	}

	defer func() {
		sess.DisconnectController()
		client.Close()
		s.sessions.RemoveIfEmpty(streamID)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Warn("Controller connection lost")
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if err := sess.HandleControl(data); err != nil {
				if errors.Is(err, session.ErrMalformedControl) {
					logger.WithError(err).Warn("Closing controller on protocol violation")
					client.CloseWithPolicy("malformed control message")
					return
				}
				logger.WithError(err).Error("Control message failed")
			}
		case websocket.BinaryMessage:
			sess.HandleAudio(data)
		}
	}
}

// watchSocket runs a viewer connection: hydrate, then discard inbound
// frames (pings) until the socket dies.
func (s *Server) watchSocket(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["id"]
	logger := logrus.WithField("stream_id", streamID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("Viewer upgrade failed")
		return
	}
	client := newWSClient(conn)
	logger = logger.WithField("conn_id", client.ID())

	sess := s.sessions.GetOrCreate(streamID)
	if err := sess.AddViewer(client); err != nil {
		logger.WithError(err).Warn("Viewer hydration failed")
		s.sessions.RemoveIfEmpty(streamID)
		return
	}

	defer func() {
		sess.RemoveViewer(client)
		client.Close()
		s.sessions.RemoveIfEmpty(streamID)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
