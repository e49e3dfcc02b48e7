package imustream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultBacklog = 32
	writeTimeout   = 5 * time.Second
)

// Server streams records from a Broadcaster to websocket clients. Each client
// first receives a text message naming the session, then one binary message
// per record.
type Server struct {
	Broadcaster *Broadcaster

	// Sent in the greeting so clients can tell daemon restarts apart.
	Session string

	// Records buffered per client before the oldest is dropped.
	Backlog int

	upgrader websocket.Upgrader
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	backlog := s.Backlog
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	records := s.Broadcaster.Subscribe(backlog)
	defer s.Broadcaster.Unsubscribe(records)

	log.Info("client %s connected", r.RemoteAddr)
	defer log.Info("client %s disconnected", r.RemoteAddr)

	// Read and discard client messages; a read error means the client is gone.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.write(ws, websocket.TextMessage, []byte("surfacerelay session "+s.Session)); err != nil {
		return
	}

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed")
				ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
				return
			}
			p, err := Encode(rec)
			if err != nil {
				log.Warn("frame %d: %v", rec.Index, err)
				continue
			}
			if err := s.write(ws, websocket.BinaryMessage, p); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) write(ws *websocket.Conn, kind int, p []byte) error {
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := ws.WriteMessage(kind, p)
	if err != nil {
		log.Debug("write: %v", err)
	}
	return err
}
