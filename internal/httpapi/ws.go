package httpapi

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eloquence-ai/eloquence/internal/protocol"
)

const (
	writeTimeout  = 10 * time.Second
	readDeadline  = 120 * time.Second
	maxFrameBytes = 2 << 20
)

// handleSessionWS binds one websocket to an existing session. Binary frames
// are raw audio; text frames are control JSON. A dropped connection pauses
// the session instead of ending it, so the client can come back.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if _, err := s.registry.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ws := newWSSink(conn, s, sessionID)
	go ws.writeLoop()

	if err := s.orch.Attach(sessionID, ws); err != nil {
		log.Printf("[gateway] session %s: attach: %v", sessionID, err)
		ws.close()
		return
	}

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		switch msgType {
		case websocket.BinaryMessage:
			s.metrics.WSMessages.WithLabelValues("inbound", "audio").Inc()
			if err := s.orch.IngestAudio(sessionID, data); err != nil {
				log.Printf("[gateway] session %s: ingest: %v", sessionID, err)
			}

		case websocket.TextMessage:
			msg, err := protocol.ParseControlMessage(data)
			if err != nil {
				// Malformed control payloads never close the socket.
				log.Printf("[gateway] session %s: malformed control: %v", sessionID, err)
				s.metrics.WSMessages.WithLabelValues("inbound", "malformed").Inc()
				continue
			}
			s.metrics.WSMessages.WithLabelValues("inbound", string(msg.Event)).Inc()
			if !msg.Recognized() {
				log.Printf("[gateway] session %s: unrecognized control event %q", sessionID, msg.Event)
				continue
			}
			if err := s.orch.HandleControl(sessionID, msg); err != nil {
				log.Printf("[gateway] session %s: control: %v", sessionID, err)
			}
		}
	}

	if err := s.orch.Detach(sessionID, ws); err != nil {
		log.Printf("[gateway] session %s: detach: %v", sessionID, err)
	}
	ws.close()
}

type outboundMsg struct {
	payload any
	audio   []byte
}

// wsSink serializes all writes for one connection through a single goroutine,
// preserving the order the orchestrator produced them.
type wsSink struct {
	conn      *websocket.Conn
	server    *Server
	sessionID string

	outbound  chan outboundMsg
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSink(conn *websocket.Conn, server *Server, sessionID string) *wsSink {
	return &wsSink{
		conn:      conn,
		server:    server,
		sessionID: sessionID,
		outbound:  make(chan outboundMsg, 256),
		done:      make(chan struct{}),
	}
}

func (ws *wsSink) SendJSON(v any) error {
	select {
	case ws.outbound <- outboundMsg{payload: v}:
		return nil
	case <-ws.done:
		return websocket.ErrCloseSent
	}
}

func (ws *wsSink) SendBinary(data []byte) error {
	select {
	case ws.outbound <- outboundMsg{audio: data}:
		return nil
	case <-ws.done:
		return websocket.ErrCloseSent
	}
}

func (ws *wsSink) writeLoop() {
	for {
		select {
		case <-ws.done:
			return
		case msg := <-ws.outbound:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			var err error
			if msg.audio != nil {
				err = ws.conn.WriteMessage(websocket.BinaryMessage, msg.audio)
				ws.server.metrics.WSMessages.WithLabelValues("outbound", "audio").Inc()
			} else {
				err = ws.conn.WriteJSON(msg.payload)
				ws.server.metrics.WSMessages.WithLabelValues("outbound", "json").Inc()
			}
			if err != nil {
				log.Printf("[gateway] session %s: write: %v", ws.sessionID, err)
				ws.close()
				return
			}
		}
	}
}

func (ws *wsSink) close() {
	ws.closeOnce.Do(func() {
		close(ws.done)
		_ = ws.conn.Close()
	})
}
