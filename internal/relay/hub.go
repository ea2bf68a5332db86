// Package relay implements the WebSocket signaling relay: authenticated
// sessions keyed by user id, and one-to-one forwarding of signaling events.
package relay

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/util"
)

// PlatformAll matches every platform of a user in Kick.
const PlatformAll = "all"

var (
	ErrUserOffline = errors.New("user is offline")
	ErrQueueFull   = errors.New("recipient queue is full")
)

// Hub tracks live sessions by user id and platform.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[string]*session
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{users: make(map[string]map[string]*session)}
}

// Register adds s to the hub. A session already registered for the same user
// and platform is shut down.
func (h *Hub) Register(s *session) {
	h.mu.Lock()
	platforms, ok := h.users[s.id]
	if !ok {
		platforms = make(map[string]*session)
		h.users[s.id] = platforms
	}
	prev := platforms[s.platform]
	platforms[s.platform] = s
	h.mu.Unlock()

	util.LogDebug("hub register: %s/%s", s.id, s.platform)

	if prev != nil && prev != s {
		util.LogInfo("%s signed in again on %s, closing previous session", s.id, s.platform)
		prev.shutdown("signed in elsewhere")
	}
}

// Unregister removes s if it is still the registered session for its user
// and platform.
func (h *Hub) Unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	platforms := h.users[s.id]
	if platforms[s.platform] != s {
		return
	}
	delete(platforms, s.platform)
	if len(platforms) == 0 {
		delete(h.users, s.id)
	}
	util.LogDebug("hub unregister: %s/%s", s.id, s.platform)
}

// Route delivers ev to every session of ev.To. It fails with ErrQueueFull
// when every session is online but backed up.
func (h *Hub) Route(ev *protocol.Event) error {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.users[ev.To]))
	for _, s := range h.users[ev.To] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return errors.Wrapf(ErrUserOffline, "%q", ev.To)
	}

	delivered, full := false, false
	for _, s := range targets {
		switch err := s.enqueue(ev); {
		case err == nil:
			delivered = true
		case errors.Is(err, ErrQueueFull):
			full = true
		}
	}
	if !delivered {
		if full {
			return errors.Wrapf(ErrQueueFull, "%q", ev.To)
		}
		return errors.Wrapf(ErrUserOffline, "%q", ev.To)
	}

	util.Stats.AddRelayed()
	return nil
}

// Online returns the sorted ids of users with at least one session.
func (h *Hub) Online() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Kick forces a user offline on one platform, or on all of them with
// PlatformAll. It returns the number of sessions closed.
func (h *Hub) Kick(id, platform string) int {
	h.mu.RLock()
	var targets []*session
	for p, s := range h.users[id] {
		if platform == PlatformAll || p == platform {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.shutdown("forced offline")
	}
	return len(targets)
}
