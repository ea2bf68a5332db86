// Package protocol defines the JSON envelope exchanged over the signaling socket.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeAuth      = "auth"
	TypeSDP       = "sdp"
	TypeCandidate = "candidate"
	TypeMessage   = "message"
	TypeReceipt   = "receipt"
	TypeUsers     = "users"
	TypeReceived  = "received" // relay ack carrying the relayed event id
	TypeError     = "error"
)

// DefaultPlatform is assumed when an auth body names none.
const DefaultPlatform = "web"

var knownTypes = map[string]bool{
	TypeAuth:      true,
	TypeSDP:       true,
	TypeCandidate: true,
	TypeMessage:   true,
	TypeReceipt:   true,
	TypeUsers:     true,
	TypeReceived:  true,
	TypeError:     true,
}

// Event is the signaling envelope. Body is kept raw so both JSON objects
// (session descriptions, candidates) and plain strings pass through untouched.
type Event struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	Created int64           `json:"created,omitempty"`
}

// AuthBody is the body of an auth event.
type AuthBody struct {
	ID       string `json:"id"`
	Password string `json:"password,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Relayable reports whether events of type t are forwarded between users.
func Relayable(t string) bool {
	switch t {
	case TypeSDP, TypeCandidate, TypeMessage, TypeReceipt:
		return true
	}
	return false
}

// NewID returns a fresh event id: a UUID without dashes.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewText builds an event whose body is a JSON string.
func NewText(typ, to, text string) *Event {
	body, _ := json.Marshal(text)
	return &Event{Type: typ, To: to, Body: body}
}

// NewError builds an error event for the given reason.
func NewError(reason string) *Event {
	return NewText(TypeError, "", reason)
}

// Text returns the body as a string. A JSON string body is unquoted, any
// other body is returned verbatim.
func (e *Event) Text() string {
	if len(e.Body) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Body, &s); err == nil {
		return s
	}
	return string(e.Body)
}
