package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/util"
)

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// HandleEvent applies one relay event. Events from users other than the bound
// peer, and types other than sdp and candidate, are ignored.
func (c *Call) HandleEvent(ev *protocol.Event) error {
	if ev.From != c.opts.Peer {
		util.LogDebug("ignoring %s from %q", ev.Type, ev.From)
		return nil
	}

	switch ev.Type {
	case protocol.TypeSDP:
		desc, err := ev.SessionDescription()
		if err != nil {
			return err
		}
		return c.handleDescription(desc)

	case protocol.TypeCandidate:
		candidate, err := ev.ICECandidate()
		if err != nil {
			return err
		}
		return c.handleCandidate(candidate)
	}
	return nil
}

func (c *Call) handleDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if desc.Type == webrtc.SDPTypeOffer && c.opts.Initiator {
		return errors.Errorf("unexpected offer from %s", c.opts.Peer)
	}

	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return errors.Wrapf(err, "set remote %s", desc.Type)
	}
	util.LogDebug("remote %s applied", desc.Type)

	for _, candidate := range c.pending {
		if err := c.pc.AddICECandidate(candidate); err != nil {
			util.LogWarning("add buffered candidate: %v", err)
		}
	}
	c.pending = nil

	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return errors.Wrap(err, "create answer")
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return errors.Wrap(err, "set local answer")
	}
	return c.sendDescription(answer)
}

// handleCandidate adds a remote candidate, or buffers it until a remote
// description exists.
func (c *Call) handleCandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, candidate)
		return nil
	}
	if err := c.pc.AddICECandidate(candidate); err != nil {
		return errors.Wrap(err, "add candidate")
	}
	return nil
}

// negotiate creates and sends an offer unless one is already outstanding.
func (c *Call) negotiate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc.SignalingState() != webrtc.SignalingStateStable {
		return nil
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return errors.Wrap(err, "create offer")
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return errors.Wrap(err, "set local offer")
	}
	return c.sendDescription(offer)
}

func (c *Call) sendDescription(desc webrtc.SessionDescription) error {
	ev, err := protocol.NewSDP(c.opts.Peer, desc)
	if err != nil {
		return err
	}
	if err := c.signaler.Send(ev); err != nil {
		return errors.Wrapf(err, "send %s", desc.Type)
	}
	return nil
}

// pendingCandidates returns how many remote candidates await a description.
func (c *Call) pendingCandidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
