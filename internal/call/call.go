// Package call drives one RTCPeerConnection against one remote user, using
// relay events for offer/answer exchange and trickle ICE.
package call

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/util"
)

var ErrFailed = errors.New("peer connection failed")

// Signaler delivers events to the relay.
type Signaler interface {
	Send(ev *protocol.Event) error
}

// Options configures a Call.
type Options struct {
	// Peer is the remote user id every signaling event is addressed to.
	Peer string
	// Initiator makes this side send the offer. The other side only answers.
	Initiator bool
	STUN      []string
	// OnTrack receives each remote track on its own goroutine.
	OnTrack func(*webrtc.TrackRemote)
}

// Call wraps a PeerConnection bound to a single remote user.
//
// Its lifecycle is governed by the PeerConnection state and the context
// passed at construction time: a failed or closed connection ends the call.
type Call struct {
	pc       *webrtc.PeerConnection
	signaler Signaler
	opts     Options

	connected     chan struct{}
	connectedOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	err     error
}

// New creates a Call. Nothing is sent until Start.
func New(ctx context.Context, api *webrtc.API, signaler Signaler, opts Options) (*Call, error) {
	if opts.Peer == "" {
		return nil, errors.New("call needs a peer id")
	}

	pc, err := newPeerConnection(api, opts.STUN)
	if err != nil {
		return nil, errors.Wrap(err, "create peer connection")
	}

	cCtx, cCancel := context.WithCancel(ctx)

	c := &Call{
		pc:        pc,
		signaler:  signaler,
		opts:      opts,
		connected: make(chan struct{}),
		ctx:       cCtx,
		cancel:    cCancel,
	}

	pc.OnICECandidate(c.onICECandidate)
	pc.OnTrack(c.onTrack)
	pc.OnConnectionStateChange(c.onStateChange)
	pc.OnNegotiationNeeded(func() {
		if !c.started.Load() || !c.opts.Initiator {
			return
		}
		// Runs off pion's operation queue, which negotiate would block.
		go func() {
			if err := c.negotiate(); err != nil {
				util.LogError("renegotiation failed: %v", err)
			}
		}()
	})

	return c, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// AddTrack publishes a local track and drains RTCP from its sender so that
// interceptors see receiver reports.
func (c *Call) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return errors.Wrap(err, "add track")
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// Start begins negotiation. The initiator sends an offer right away; a
// receive-only initiator asks for a video transceiver first. The answering
// side waits for the offer in HandleEvent.
func (c *Call) Start() error {
	c.started.Store(true)

	if !c.opts.Initiator {
		util.LogInfo("waiting for an offer from %s", c.opts.Peer)
		return nil
	}

	if len(c.pc.GetTransceivers()) == 0 {
		_, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return errors.Wrap(err, "add transceiver")
		}
	}
	return c.negotiate()
}

// Connected returns a channel closed once the PeerConnection is connected.
func (c *Call) Connected() <-chan struct{} {
	return c.connected
}

// Done returns a channel closed when the call ends.
func (c *Call) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err reports why the call ended, or nil while it is running or after Close.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the call and releases the PeerConnection.
func (c *Call) Close() error {
	c.cancel()
	return c.pc.Close()
}

// ConnectionState returns the current PeerConnection state.
func (c *Call) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

func (c *Call) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.cancel()
}

// ---------------------------------------------------------------------------
// PeerConnection callbacks
// ---------------------------------------------------------------------------

func (c *Call) onICECandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		util.LogDebug("ICE gathering complete")
		return
	}

	ev, err := protocol.NewCandidate(c.opts.Peer, candidate.ToJSON())
	if err != nil {
		util.LogError("encode candidate: %v", err)
		return
	}
	if err := c.signaler.Send(ev); err != nil {
		util.LogWarning("send candidate: %v", err)
	}
}

func (c *Call) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	util.LogInfo("remote %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
		if err := c.pc.WriteRTCP(pli); err != nil {
			util.LogWarning("send PLI: %v", err)
		}
	}

	if c.opts.OnTrack != nil {
		go c.opts.OnTrack(track)
	}
}

func (c *Call) onStateChange(state webrtc.PeerConnectionState) {
	util.LogDebug("PeerConnection state: %s", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		c.connectedOnce.Do(func() {
			util.LogSuccess("connected to %s", c.opts.Peer)
			close(c.connected)
		})
	case webrtc.PeerConnectionStateDisconnected:
		util.LogWarning("connection to %s interrupted", c.opts.Peer)
	case webrtc.PeerConnectionStateFailed:
		c.fail(ErrFailed)
	case webrtc.PeerConnectionStateClosed:
		c.cancel()
	}
}

