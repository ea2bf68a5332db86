package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/util"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 50 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Session descriptions with the
	// full default codec list run past 8 KiB.
	maxMessageSize = 64 * 1024

	// Outgoing event queue capacity per session.
	sendBufferSize = 64
)

var errSessionClosed = errors.New("session closed")

// session is one authenticated WebSocket connection.
type session struct {
	id       string
	platform string
	conn     *websocket.Conn

	send      chan *protocol.Event
	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

func newSession(id, platform string, conn *websocket.Conn) *session {
	return &session{
		id:       id,
		platform: platform,
		conn:     conn,
		send:     make(chan *protocol.Event, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// enqueue queues ev for the writer. A full queue drops the event.
func (s *session) enqueue(ev *protocol.Event) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.send <- ev:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		util.Stats.AddDropped()
		util.LogWarning("session %s/%s queue full, dropping %s event", s.id, s.platform, ev.Type)
		return ErrQueueFull
	}
}

// shutdown stops the writer, which sends a close frame carrying reason.
func (s *session) shutdown(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// writer is the single goroutine writing to the connection. It returns when
// the session is shut down or a write fails.
func (s *session) writer() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				util.LogDebug("session %s/%s write failed: %v", s.id, s.platform, err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, s.reason))
			return
		}
	}
}

// reader consumes events until the connection fails or the peer goes away.
func (s *session) reader(hub *Hub) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				util.LogWarning("session %s/%s closed unexpectedly: %v", s.id, s.platform, err)
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			s.enqueue(protocol.NewError(err.Error()))
			continue
		}
		s.dispatch(hub, ev)
	}
}

func (s *session) dispatch(hub *Hub, ev *protocol.Event) {
	util.LogDebug("event from %s: type=%s to=%s", s.id, ev.Type, ev.To)

	switch {
	case protocol.Relayable(ev.Type):
		to, err := protocol.Destination(ev.To)
		if err != nil {
			s.enqueue(protocol.NewError(err.Error()))
			return
		}

		// The relay is the authority on who sent what.
		ev.From = s.id
		ev.To = to
		if ev.ID == "" {
			ev.ID = protocol.NewID()
		}
		ev.Created = time.Now().Unix()

		if err := hub.Route(ev); err != nil {
			s.enqueue(protocol.NewError(err.Error()))
			return
		}
		s.enqueue(&protocol.Event{ID: ev.ID, Type: protocol.TypeReceived})

	case ev.Type == protocol.TypeUsers:
		body, _ := json.Marshal(hub.Online())
		s.enqueue(&protocol.Event{Type: protocol.TypeUsers, Body: body})

	case ev.Type == protocol.TypeAuth:
		s.enqueue(protocol.NewError("already authenticated"))

	default:
		s.enqueue(protocol.NewError(protocol.ErrUnsupportedType.Error()))
	}
}
