package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/relay"
	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/util"
)

func startRelay(t *testing.T, pin string) string {
	t.Helper()
	server := relay.NewServer(pin)
	port, err := server.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Close(ctx)
	})
	return "ws://127.0.0.1:" + strconv.Itoa(port) + config.StreamPath
}

func peerConfig(url string) *config.Config {
	return &config.Config{
		Role:        config.RoleCallee,
		URL:         url,
		ID:          "bob",
		Peer:        "alice",
		Platform:    "cli",
		DialTimeout: 2 * time.Second,
	}
}

func TestForwardLines(t *testing.T) {
	var sent []string
	err := forwardLines(strings.NewReader("hello\n\n  world  \n"), func(s string) error {
		sent = append(sent, s)
		return nil
	})
	if err != nil {
		t.Fatalf("forwardLines: %v", err)
	}
	if len(sent) != 2 || sent[0] != "hello" || sent[1] != "world" {
		t.Fatalf("sent = %q", sent)
	}
}

func TestForwardLinesStopsOnSendError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := forwardLines(strings.NewReader("a\nb\n"), func(string) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRunRelayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunRelay(ctx, &config.Config{Role: config.RoleRelay, Listen: "127.0.0.1:0"})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunRelay: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunRelay did not return")
	}
}

func TestRunRelayBadAddress(t *testing.T) {
	err := RunRelay(context.Background(), &config.Config{Role: config.RoleRelay, Listen: "256.0.0.1:bad"})
	if err == nil {
		t.Fatal("expected listen error")
	}
}

func TestRunPeerDialFailure(t *testing.T) {
	cfg := peerConfig("ws://127.0.0.1:1" + config.StreamPath)
	if err := RunPeer(context.Background(), cfg); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestRunPeerAuthRejected(t *testing.T) {
	cfg := peerConfig(startRelay(t, "1234"))
	cfg.Password = "0000"

	err := RunPeer(context.Background(), cfg)
	if !errors.Is(err, signaling.ErrAuthRejected) {
		t.Fatalf("err = %v, want ErrAuthRejected", err)
	}
}

func TestRunPeerStopsOnCancel(t *testing.T) {
	cfg := peerConfig(startRelay(t, ""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunPeer(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunPeer: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunPeer did not return")
	}
}

func TestRunPeerMissingSource(t *testing.T) {
	cfg := peerConfig(startRelay(t, ""))
	cfg.Source = t.TempDir() + "/missing.ivf"

	if err := RunPeer(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestUnlessDone(t *testing.T) {
	boom := errors.New("boom")
	if err := unlessDone(context.Background(), boom); !errors.Is(err, boom) {
		t.Fatalf("live context: err = %v, want boom", err)
	}

	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()
	if err := unlessDone(expired, expired.Err()); err != nil {
		t.Fatalf("expired context: err = %v, want nil", err)
	}
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeKeyframeIVF writes a VP8 IVF file of n identical keyframes at 30 fps.
func writeKeyframeIVF(t *testing.T, path string, n int) {
	t.Helper()
	frame := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 64, 0, 64, 0, 0xAA, 0xBB}

	var buf bytes.Buffer
	header := make([]byte, 32)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:], "VP80")
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 64)
	binary.LittleEndian.PutUint32(header[16:], 30)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(n))
	buf.Write(header)

	for i := 0; i < n; i++ {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		buf.Write(fh)
		buf.Write(frame)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunPeerCallRecordsRemoteVideo(t *testing.T) {
	url := startRelay(t, "")
	dir := t.TempDir()
	source := filepath.Join(dir, "source.ivf")
	record := filepath.Join(dir, "remote.webm")
	writeKeyframeIVF(t, source, 60)

	logs := &syncBuffer{}
	util.SetLogOutput(logs)
	t.Cleanup(func() { util.SetLogOutput(os.Stdout) })

	callee := peerConfig(url)
	callee.Record = record

	caller := peerConfig(url)
	caller.Role = config.RoleCaller
	caller.ID, caller.Peer = "alice", "bob"
	caller.Source = source
	caller.Loop = true
	caller.StartDelay = 500 * time.Millisecond

	// Both peers stop at the deadline, which is a clean shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	done := make(chan error, 2)
	go func() { done <- RunPeer(ctx, callee) }()
	go func() { done <- RunPeer(ctx, caller) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("RunPeer: %v", err)
			}
		case <-time.After(20 * time.Second):
			t.Fatal("RunPeer did not return")
		}
	}

	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("recording missing: %v\n%s", err, logs.String())
	}
	if !bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		t.Fatalf("recording is not WebM: % x", data[:min(8, len(data))])
	}

	out := logs.String()
	for _, unwanted := range []string{"source stopped", "recording stopped"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("shutdown logged %q:\n%s", unwanted, out)
		}
	}
}
