// Package signaling is the client side of the relay: it dials the WebSocket,
// authenticates, and exchanges events for a call.
package signaling

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/protocol"
)

// authWait bounds how long Authenticate waits for the relay's verdict.
const authWait = 10 * time.Second

var ErrAuthRejected = errors.New("relay rejected auth")

// Connect dials the given relay URL, e.g. ws://localhost:8082/chat/stream.
func Connect(ctx context.Context, url string) (*Channel, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to relay")
	}
	return newChannel(conn), nil
}

// Channel is an authenticated signaling connection.
type Channel struct {
	conn   *websocket.Conn
	sender *sender
	id     string
}

func newChannel(conn *websocket.Conn) *Channel {
	return &Channel{
		conn:   conn,
		sender: &sender{conn: conn},
	}
}

// ID returns the user id this channel authenticated as.
func (c *Channel) ID() string { return c.id }

// Authenticate sends the auth event and waits for the relay to accept it.
// It must be called before Watch.
func (c *Channel) Authenticate(id, password, platform string) error {
	auth := protocol.NewAuth(id, password, platform)
	auth.ID = protocol.NewID()
	if err := c.sender.send(auth); err != nil {
		return errors.Wrap(err, "send auth")
	}

	c.conn.SetReadDeadline(time.Now().Add(authWait))
	defer c.conn.SetReadDeadline(time.Time{})

	var reply protocol.Event
	if err := c.conn.ReadJSON(&reply); err != nil {
		return errors.Wrap(err, "read auth reply")
	}
	switch reply.Type {
	case protocol.TypeReceived:
		c.id = id
		return nil
	case protocol.TypeError:
		return errors.Wrap(ErrAuthRejected, reply.Text())
	default:
		return errors.Errorf("unexpected auth reply %q", reply.Type)
	}
}

// Send writes an event to the relay. Safe for concurrent use.
func (c *Channel) Send(ev *protocol.Event) error {
	return c.sender.send(ev)
}

// SendMessage sends a chat message to a user.
func (c *Channel) SendMessage(to, text string) error {
	return c.sender.send(protocol.NewText(protocol.TypeMessage, to, text))
}

// RequestUsers asks the relay for the online user list; the reply arrives
// as a users event in Watch.
func (c *Channel) RequestUsers() error {
	return c.sender.send(&protocol.Event{Type: protocol.TypeUsers})
}

// Watch reads events until the connection fails or ctx is cancelled, handing
// everything but acks and relay errors to fn.
func (c *Channel) Watch(ctx context.Context, fn func(*protocol.Event)) error {
	r := &receiver{conn: c.conn, handler: fn}

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.Close()
		<-errCh
		return ctx.Err()
	}
}

// Close sends a close frame and closes the connection.
func (c *Channel) Close() error {
	c.sender.close()
	return c.conn.Close()
}
