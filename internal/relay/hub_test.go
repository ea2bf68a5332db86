package relay

import (
	"io"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/util"
)

func init() {
	util.SetLogOutput(io.Discard)
}

// testSession builds a session without a connection; only its queue is used.
func testSession(id, platform string) *session {
	return newSession(id, platform, nil)
}

func isClosed(s *session) bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func TestHubRouteToAllPlatforms(t *testing.T) {
	hub := NewHub()
	webSess := testSession("bob", "web")
	cli := testSession("bob", "cli")
	hub.Register(webSess)
	hub.Register(cli)

	ev := &protocol.Event{ID: "1", Type: protocol.TypeSDP, From: "alice", To: "bob"}
	if err := hub.Route(ev); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	for _, s := range []*session{webSess, cli} {
		select {
		case got := <-s.send:
			if got != ev {
				t.Errorf("%s got %+v, want routed event", s.platform, got)
			}
		default:
			t.Errorf("%s received nothing", s.platform)
		}
	}
}

func TestHubRouteOffline(t *testing.T) {
	hub := NewHub()
	err := hub.Route(&protocol.Event{Type: protocol.TypeCandidate, To: "nobody"})
	if !errors.Is(err, ErrUserOffline) {
		t.Fatalf("Route error = %v, want %v", err, ErrUserOffline)
	}
}

func TestHubRegisterKicksSamePlatform(t *testing.T) {
	hub := NewHub()
	first := testSession("alice", "web")
	other := testSession("alice", "cli")
	second := testSession("alice", "web")

	hub.Register(first)
	if isClosed(first) {
		t.Fatal("first session closed on its own registration")
	}
	hub.Register(other)
	hub.Register(second)

	if !isClosed(first) {
		t.Error("first session was not shut down")
	}
	if isClosed(other) || isClosed(second) {
		t.Error("sessions on other platforms must stay open")
	}

	// The stale session's cleanup must not remove its replacement.
	hub.Unregister(first)
	if err := hub.Route(&protocol.Event{Type: protocol.TypeMessage, To: "alice"}); err != nil {
		t.Fatalf("Route after stale unregister failed: %v", err)
	}
	if len(second.send) != 1 {
		t.Errorf("replacement session queue = %d, want 1", len(second.send))
	}
}

func TestHubOnlineAndUnregister(t *testing.T) {
	hub := NewHub()
	a := testSession("carol", "web")
	b := testSession("alice", "web")
	hub.Register(a)
	hub.Register(b)

	if got, want := hub.Online(), []string{"alice", "carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Online() = %v, want %v", got, want)
	}

	hub.Unregister(a)
	if got, want := hub.Online(), []string{"alice"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Online() = %v, want %v", got, want)
	}
}

func TestHubKick(t *testing.T) {
	hub := NewHub()
	webSess := testSession("dave", "web")
	cli := testSession("dave", "cli")
	hub.Register(webSess)
	hub.Register(cli)

	if n := hub.Kick("dave", "cli"); n != 1 {
		t.Errorf("Kick(cli) = %d, want 1", n)
	}
	if !isClosed(cli) || isClosed(webSess) {
		t.Error("only the cli session should be closed")
	}

	if n := hub.Kick("dave", PlatformAll); n != 2 {
		t.Errorf("Kick(all) = %d, want 2", n)
	}
	if !isClosed(webSess) {
		t.Error("web session should be closed")
	}
}

func TestSessionEnqueue(t *testing.T) {
	s := testSession("erin", "web")

	for i := 0; i < sendBufferSize; i++ {
		if err := s.enqueue(&protocol.Event{Type: protocol.TypeMessage}); err != nil {
			t.Fatalf("enqueue %d failed before the queue was full: %v", i, err)
		}
	}
	if err := s.enqueue(&protocol.Event{Type: protocol.TypeMessage}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("enqueue on a full queue = %v, want ErrQueueFull", err)
	}

	s.shutdown("bye")
	s.shutdown("twice")
	if s.reason != "bye" {
		t.Errorf("reason = %q, want the first one", s.reason)
	}
	if err := s.enqueue(&protocol.Event{Type: protocol.TypeMessage}); !errors.Is(err, errSessionClosed) {
		t.Errorf("enqueue after shutdown = %v, want errSessionClosed", err)
	}
}

func TestHubRouteQueueFull(t *testing.T) {
	hub := NewHub()
	webSess := testSession("frank", "web")
	cli := testSession("frank", "cli")
	hub.Register(webSess)
	hub.Register(cli)

	for i := 0; i < sendBufferSize; i++ {
		webSess.send <- &protocol.Event{Type: protocol.TypeMessage}
	}
	cli.shutdown("gone")

	err := hub.Route(&protocol.Event{Type: protocol.TypeMessage, To: "frank"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Route error = %v, want ErrQueueFull", err)
	}
	if errors.Is(err, ErrUserOffline) {
		t.Fatal("a backed-up user must not be reported offline")
	}

	// Draining one slot lets routing succeed again.
	<-webSess.send
	if err := hub.Route(&protocol.Event{Type: protocol.TypeMessage, To: "frank"}); err != nil {
		t.Fatalf("Route after drain: %v", err)
	}
}

func TestHubRouteClosedSessionsAreOffline(t *testing.T) {
	hub := NewHub()
	s := testSession("grace", "web")
	hub.Register(s)
	s.shutdown("gone")

	err := hub.Route(&protocol.Event{Type: protocol.TypeMessage, To: "grace"})
	if !errors.Is(err, ErrUserOffline) {
		t.Fatalf("Route error = %v, want ErrUserOffline", err)
	}
}
