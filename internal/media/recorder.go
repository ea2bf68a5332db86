package media

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/util"
)

// maxLate is how many packets the sample builder holds for reordering.
const maxLate = 128

// Recorder writes one remote VP8 track to a WebM file. The file is created on
// the first keyframe, whose header supplies the frame size.
type Recorder struct {
	open func() (io.WriteCloser, error)

	mu        sync.Mutex
	builder   *samplebuilder.SampleBuilder
	writer    webm.BlockWriteCloser
	timestamp time.Duration
	frames    int
	closed    bool
}

// NewRecorder returns a recorder writing to path.
func NewRecorder(path string) *Recorder {
	return newRecorder(func() (io.WriteCloser, error) {
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	})
}

func newRecorder(open func() (io.WriteCloser, error)) *Recorder {
	return &Recorder{
		open:    open,
		builder: samplebuilder.New(maxLate, &codecs.VP8Packet{}, 90000),
	}
}

// Consume reads RTP from track until it ends or ctx is cancelled. Tracks that
// are not VP8 are drained without recording.
func (r *Recorder) Consume(ctx context.Context, track *webrtc.TrackRemote) error {
	vp8 := strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeVP8)
	if !vp8 {
		util.LogWarning("not recording %s track", track.Codec().MimeType)
	}

	for ctx.Err() == nil {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "read remote track")
		}
		util.Stats.AddRecv(len(pkt.Payload))

		if vp8 {
			if err := r.push(pkt); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func (r *Recorder) push(pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.builder.Push(pkt)
	for {
		sample := r.builder.Pop()
		if sample == nil {
			return nil
		}
		if err := r.writeFrame(sample.Data, sample.Duration); err != nil {
			return err
		}
	}
}

// writeFrame appends one VP8 frame. Frames before the first keyframe are
// dropped. Callers hold r.mu.
func (r *Recorder) writeFrame(frame []byte, duration time.Duration) error {
	if r.closed {
		return nil
	}
	keyframe := IsKeyframe(frame)

	if r.writer == nil {
		width, height, ok := KeyframeSize(frame)
		if !ok {
			return nil
		}
		if err := r.start(width, height); err != nil {
			return err
		}
	}

	if _, err := r.writer.Write(keyframe, r.timestamp.Milliseconds(), frame); err != nil {
		return errors.Wrap(err, "write webm block")
	}
	r.timestamp += duration
	r.frames++
	return nil
}

func (r *Recorder) start(width, height int) error {
	w, err := r.open()
	if err != nil {
		return errors.Wrap(err, "open recording")
	}

	writers, err := webm.NewSimpleBlockWriter(w, []webm.TrackEntry{{
		Name:            "Video",
		TrackNumber:     1,
		TrackUID:        67890,
		CodecID:         "V_VP8",
		TrackType:       1,
		DefaultDuration: 33333333,
		Video: &webm.Video{
			PixelWidth:  uint64(width),
			PixelHeight: uint64(height),
		},
	}})
	if err != nil {
		w.Close()
		return errors.Wrap(err, "init webm writer")
	}

	r.writer = writers[0]
	util.LogInfo("recording remote video %dx%d", width, height)
	return nil
}

// Frames returns the number of frames written so far.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the WebM file. Frames arriving later are discarded.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}
