package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

var (
	ErrEmptyType       = errors.New("event type is empty")
	ErrUnsupportedType = errors.New("not support event type")
	ErrNoDestination   = errors.New("event has no destination")
	ErrRoomDestination = errors.New("room destinations are not supported")
	ErrEmptyBody       = errors.New("event body is empty")
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Decode parses a single WebSocket frame into an Event.
func Decode(data []byte) (*Event, error) {
	data = bytes.TrimSpace(bytes.ReplaceAll(data, newline, space))

	ev := &Event{}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}
	if ev.Type == "" {
		return nil, ErrEmptyType
	}
	if !knownTypes[ev.Type] {
		return nil, errors.Wrapf(ErrUnsupportedType, "%q", ev.Type)
	}
	return ev, nil
}

// Encode serializes an Event for transmission.
func Encode(ev *Event) ([]byte, error) {
	if ev.Type == "" {
		return nil, ErrEmptyType
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return data, nil
}

// Destination resolves the user id an event is addressed to. The "room/user"
// form is recognised but rooms are rejected.
func Destination(to string) (string, error) {
	room, user := "", to
	if i := strings.Index(to, "/"); i >= 0 {
		room, user = to[:i], to[i+1:]
	}
	if room != "" {
		return "", errors.Wrapf(ErrRoomDestination, "%q", to)
	}
	if user == "" {
		return "", ErrNoDestination
	}
	return user, nil
}

// ParseAuth extracts credentials from an auth event. The envelope's from is
// used when the body carries no id.
func ParseAuth(ev *Event) (*AuthBody, error) {
	if ev.Type != TypeAuth {
		return nil, errors.Errorf("expected auth event, got %q", ev.Type)
	}

	body := &AuthBody{}
	if len(ev.Body) > 0 {
		// Body may arrive as an object or as a JSON-encoded string.
		raw := []byte(ev.Body)
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			raw = []byte(s)
		}
		if err := json.Unmarshal(raw, body); err != nil {
			return nil, errors.Wrap(err, "decode auth body")
		}
	}
	if body.ID == "" {
		body.ID = ev.From
	}
	if body.ID == "" {
		return nil, errors.New("auth has no user id")
	}
	if body.Platform == "" {
		body.Platform = DefaultPlatform
	}
	return body, nil
}

// NewAuth builds an auth event.
func NewAuth(id, password, platform string) *Event {
	body, _ := json.Marshal(&AuthBody{ID: id, Password: password, Platform: platform})
	return &Event{Type: TypeAuth, From: id, Body: body}
}

// NewSDP builds an sdp event addressed to a peer.
func NewSDP(to string, desc webrtc.SessionDescription) (*Event, error) {
	body, err := json.Marshal(desc)
	if err != nil {
		return nil, errors.Wrap(err, "encode session description")
	}
	return &Event{Type: TypeSDP, To: to, Body: body}, nil
}

// NewCandidate builds a candidate event addressed to a peer.
func NewCandidate(to string, init webrtc.ICECandidateInit) (*Event, error) {
	body, err := json.Marshal(init)
	if err != nil {
		return nil, errors.Wrap(err, "encode ice candidate")
	}
	return &Event{Type: TypeCandidate, To: to, Body: body}, nil
}

// SessionDescription decodes the body of an sdp event.
func (e *Event) SessionDescription() (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if len(e.Body) == 0 {
		return desc, ErrEmptyBody
	}
	if err := json.Unmarshal(e.Body, &desc); err != nil {
		return desc, errors.Wrap(err, "decode session description")
	}
	return desc, nil
}

// ICECandidate decodes the body of a candidate event.
func (e *Event) ICECandidate() (webrtc.ICECandidateInit, error) {
	var init webrtc.ICECandidateInit
	if len(e.Body) == 0 {
		return init, ErrEmptyBody
	}
	if err := json.Unmarshal(e.Body, &init); err != nil {
		return init, errors.Wrap(err, "decode ice candidate")
	}
	return init, nil
}
