package signaling

import (
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/util"
)

// receiver reads events from the WebSocket and dispatches them.
type receiver struct {
	conn    *websocket.Conn
	handler func(*protocol.Event)
}

// watch runs until a read fails. A normal closure returns nil.
func (r *receiver) watch() error {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return errors.Wrap(err, "read relay event")
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			util.LogWarning("ignoring relay frame: %v", err)
			continue
		}

		switch ev.Type {
		case protocol.TypeReceived:
			util.LogDebug("relay acked %s", ev.ID)
		case protocol.TypeError:
			util.LogWarning("relay error: %s", ev.Text())
		default:
			r.handler(ev)
		}
	}
}
