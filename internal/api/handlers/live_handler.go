package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"prettyqr/internal/api/middleware"
	"prettyqr/internal/engine/studio"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveEvent is the JSON frame sent for every pipeline event.
type LiveEvent struct {
	Kind        studio.EventKind `json:"kind"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Generation  uint64           `json:"generation,omitempty"`
	DataURI     string           `json:"data_uri,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func newLiveEvent(evt studio.Event) LiveEvent {
	le := LiveEvent{Kind: evt.Kind}
	if evt.Artifact != nil {
		le.Fingerprint = evt.Artifact.Fingerprint
		le.Generation = evt.Artifact.Generation
		le.DataURI = evt.Artifact.DataURI
	}
	if evt.Err != nil {
		le.Error = evt.Err.Error()
	}
	return le
}

type LiveHandler struct{}

func NewLiveHandler() *LiveHandler {
	return &LiveHandler{}
}

// Stream upgrades to a websocket and forwards the session's regeneration
// events until either side goes away. The current artifact, if any, is sent
// first as a rendered event.
func (h *LiveHandler) Stream(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("websocket upgrade failed")
		return
	}

	events, unsubscribe := session.Pipeline.Subscribe()
	done := make(chan struct{})
	go readPump(conn, done)

	log.Debug().Str("session_id", session.ID).Msg("live client connected")
	defer func() {
		unsubscribe()
		conn.Close()
		log.Debug().Str("session_id", session.ID).Msg("live client disconnected")
	}()

	if art := session.Pipeline.Artifact(); art != nil {
		if err := writeEvent(conn, studio.Event{Kind: studio.EventRendered, Artifact: art}); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := writeEvent(conn, evt); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, evt studio.Event) error {
	data, err := json.Marshal(newLiveEvent(evt))
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump discards client messages and closes done when the connection
// fails.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
