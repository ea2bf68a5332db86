// Package config holds the CLI configuration and its loading from flags,
// environment variables and an optional .env file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Role represents the process's role in a call.
type Role string

const (
	RoleRelay  Role = "relay"  // run the WebSocket signaling relay
	RoleCaller Role = "caller" // headless peer that sends the offer
	RoleCallee Role = "callee" // headless peer that answers
)

// DefaultSTUNServers are used when no STUN servers are configured. There is
// no TURN: connectivity is left entirely to ICE.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config stores all parameters gathered from flags, environment or prompts.
type Config struct {
	Role  Role
	Debug bool

	// Relay.
	Listen string // address to listen on, e.g. ":8082" or "127.0.0.1:0"
	PIN    string // shared secret required in auth, empty disables the check

	// Peer.
	URL         string        // relay WebSocket URL
	ID          string        // own user id
	Peer        string        // remote user id
	Platform    string        // platform label sent on auth
	Password    string        // sent as auth password (the relay PIN)
	Source      string        // VP8 IVF file published as the local video track
	Loop        bool          // restart the source at EOF
	Record      string        // WebM file the remote video is written to
	STUN        []string      // ICE servers
	StartDelay  time.Duration // wait before starting negotiation
	Chat        bool          // forward stdin lines as message events
	DialTimeout time.Duration
}

// Initiator reports whether this peer sends the offer.
func (c *Config) Initiator() bool {
	return c.Role == RoleCaller
}

// Validate checks the fields required by the configured role and normalizes
// the relay URL.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleRelay:
		if c.Listen == "" {
			return errors.New("missing listen address for relay role")
		}
		return nil

	case RoleCaller, RoleCallee:
		if c.ID == "" {
			return errors.New("missing --id")
		}
		if c.Peer == "" {
			return errors.New("missing --peer")
		}
		if c.ID == c.Peer {
			return errors.New("--id and --peer must differ")
		}
		if c.URL == "" {
			return errors.New("missing --url")
		}
		u, err := NormalizeWSURL(c.URL)
		if err != nil {
			return err
		}
		c.URL = u
		if len(c.STUN) == 0 {
			c.STUN = DefaultSTUNServers
		}
		return nil

	case "":
		return errors.New("missing --role")

	default:
		return errors.Errorf("invalid role %q: must be relay, caller or callee", c.Role)
	}
}

// NormalizeWSURL validates a raw relay address and returns a ws(s) URL
// pointing at the stream endpoint. A bare host defaults to ws.
func NormalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", errors.Errorf("invalid WebSocket URL: %s", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("invalid WebSocket URL scheme: %s", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = StreamPath
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path), nil
}

// StreamPath is the relay's WebSocket endpoint.
const StreamPath = "/chat/stream"
