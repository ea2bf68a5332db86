package media

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pkg/errors"

	"github.com/1ureka/rtcall/internal/util"
)

const (
	vp8FourCC            = "VP80"
	defaultFrameDuration = 33 * time.Millisecond
)

var ErrUnsupportedCodec = errors.New("unsupported codec")

// Source publishes a VP8 IVF file as a local video track.
type Source struct {
	path  string
	loop  bool
	track *webrtc.TrackLocalStaticSample
	sink  func(media.Sample) error
}

// NewSource validates the IVF file at path and creates the track it feeds.
func NewSource(path string, loop bool) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open source")
	}
	defer f.Close()

	if _, _, err := openIVF(f); err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"rtcall",
	)
	if err != nil {
		return nil, errors.Wrap(err, "create local track")
	}

	s := &Source{path: path, loop: loop, track: track}
	s.sink = s.writeSample
	return s, nil
}

// Track returns the local track to add to a PeerConnection.
func (s *Source) Track() *webrtc.TrackLocalStaticSample { return s.track }

// Run streams the file into the track until ctx is cancelled, or until EOF
// when looping is off.
func (s *Source) Run(ctx context.Context) error {
	for {
		f, err := os.Open(s.path)
		if err != nil {
			return errors.Wrap(err, "open source")
		}
		err = play(ctx, f, s.sink)
		f.Close()

		if err != nil {
			return err
		}
		if !s.loop || ctx.Err() != nil {
			return ctx.Err()
		}
		util.LogDebug("source %s reached EOF, looping", s.path)
	}
}

func (s *Source) writeSample(sample media.Sample) error {
	if err := s.track.WriteSample(sample); err != nil {
		return err
	}
	util.Stats.AddSent(len(sample.Data))
	return nil
}

func openIVF(r io.Reader) (*ivfreader.IVFReader, time.Duration, error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "read IVF header")
	}
	if header.FourCC != vp8FourCC {
		return nil, 0, errors.Wrapf(ErrUnsupportedCodec, "%q", header.FourCC)
	}

	frameDuration := defaultFrameDuration
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		frameDuration = time.Duration(float64(time.Second) *
			float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	return reader, frameDuration, nil
}

// play writes every frame of an IVF stream at the stream's frame rate. It
// returns nil at EOF.
func play(ctx context.Context, r io.Reader, write func(media.Sample) error) error {
	reader, frameDuration, err := openIVF(r)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for ctx.Err() == nil {
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read IVF frame")
		}

		if err := write(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return errors.Wrap(err, "write sample")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}
