package app

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"

	"github.com/1ureka/rtcall/internal/call"
	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/media"
	"github.com/1ureka/rtcall/internal/protocol"
	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/util"
)

var ErrSignalingClosed = errors.New("signaling connection closed")

// RunPeer orchestrates the headless peer lifecycle:
//  1. Connect to the relay and authenticate
//  2. Create the call, publishing the source file if any
//  3. Watch signaling and hand sdp/candidate events to the call
//  4. After the optional delay, start negotiation
//  5. Record the remote video and relay chat until shutdown
func RunPeer(ctx context.Context, cfg *config.Config) error {
	// ── 1. Relay ───────────────────────────────────────────────────────
	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.DialTimeout)
	ch, err := signaling.Connect(dialCtx, cfg.URL)
	cancelDial()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Authenticate(cfg.ID, cfg.Password, cfg.Platform); err != nil {
		return err
	}
	util.LogSuccess("signed in to %s as %s", cfg.URL, cfg.ID)

	// ── 2. Call ────────────────────────────────────────────────────────
	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()

	var recorder *media.Recorder
	if cfg.Record != "" {
		recorder = media.NewRecorder(cfg.Record)
		defer func() {
			if err := recorder.Close(); err != nil {
				util.LogError("finalize recording: %v", err)
			}
		}()
	}

	api, err := call.NewAPI()
	if err != nil {
		return err
	}
	c, err := call.New(callCtx, api, ch, call.Options{
		Peer:      cfg.Peer,
		Initiator: cfg.Initiator(),
		STUN:      cfg.STUN,
		OnTrack:   func(track *webrtc.TrackRemote) { consumeTrack(callCtx, track, recorder) },
	})
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Source != "" {
		src, err := media.NewSource(cfg.Source, cfg.Loop)
		if err != nil {
			return err
		}
		if err := c.AddTrack(src.Track()); err != nil {
			return err
		}
		go publish(callCtx, c, src)
	} else {
		util.LogInfo("no source configured, receiving only")
	}

	// ── 3. Signaling ───────────────────────────────────────────────────
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- ch.Watch(callCtx, func(ev *protocol.Event) { handleEvent(c, ev) })
	}()

	// ── 4. Negotiation ─────────────────────────────────────────────────
	if cfg.StartDelay > 0 {
		util.LogInfo("starting in %s", cfg.StartDelay)
		select {
		case <-time.After(cfg.StartDelay):
		case <-ctx.Done():
			return nil
		}
	}
	if err := c.Start(); err != nil {
		return err
	}

	if cfg.Chat {
		go func() {
			err := forwardLines(os.Stdin, func(text string) error {
				return ch.SendMessage(cfg.Peer, text)
			})
			if err != nil {
				util.LogWarning("chat input stopped: %v", err)
			}
		}()
	}

	// ── 5. Run until something ends ────────────────────────────────────
	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		if err := c.Err(); err != nil {
			return err
		}
		util.LogInfo("call with %s ended", cfg.Peer)
		return nil
	case err := <-watchErr:
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		return ErrSignalingClosed
	}
}

func handleEvent(c *call.Call, ev *protocol.Event) {
	switch ev.Type {
	case protocol.TypeSDP, protocol.TypeCandidate:
		if err := c.HandleEvent(ev); err != nil {
			util.LogWarning("%s from %s: %v", ev.Type, ev.From, err)
		}
	case protocol.TypeMessage:
		pterm.Printfln("%s %s", pterm.Cyan("["+ev.From+"]"), ev.Text())
	case protocol.TypeUsers:
		util.LogInfo("online: %s", string(ev.Body))
	default:
		util.LogDebug("unhandled %s from %s", ev.Type, ev.From)
	}
}

// publish streams the source once the call is connected.
func publish(ctx context.Context, c *call.Call, src *media.Source) {
	select {
	case <-c.Connected():
	case <-ctx.Done():
		return
	}

	if err := unlessDone(ctx, src.Run(ctx)); err != nil {
		util.LogError("source stopped: %v", err)
	}
}

// consumeTrack records a remote track, or drains it when not recording.
func consumeTrack(ctx context.Context, track *webrtc.TrackRemote, recorder *media.Recorder) {
	if recorder != nil && track.Kind() == webrtc.RTPCodecTypeVideo {
		if err := unlessDone(ctx, recorder.Consume(ctx, track)); err != nil {
			util.LogWarning("recording stopped: %v", err)
		}
		return
	}

	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		util.Stats.AddRecv(n)
	}
}

// unlessDone drops err once ctx has ended, cancelled or past its deadline.
func unlessDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// forwardLines sends each non-empty line of r until EOF.
func forwardLines(r io.Reader, send func(string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
