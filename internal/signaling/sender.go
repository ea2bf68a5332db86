package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcall/internal/protocol"
)

const writeWait = 10 * time.Second

// sender serializes outgoing events to the WebSocket.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes an event to the WebSocket, guarded by a mutex.
func (s *sender) send(ev *protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// close writes a normal closure frame. Errors are ignored: the connection is
// going away regardless.
func (s *sender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
