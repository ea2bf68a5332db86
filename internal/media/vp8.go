// Package media stands in for the browser's camera and video elements: a
// Source publishes a VP8 IVF file as a local track, a Recorder writes a remote
// VP8 track to a WebM file.
package media

// IsKeyframe reports whether a VP8 frame is a keyframe (P bit clear).
func IsKeyframe(frame []byte) bool {
	return len(frame) > 0 && frame[0]&0x01 == 0
}

// KeyframeSize parses the frame dimensions from a VP8 keyframe header. It
// reports false for interframes and truncated or malformed keyframes.
func KeyframeSize(frame []byte) (width, height int, ok bool) {
	if len(frame) < 10 || !IsKeyframe(frame) {
		return 0, 0, false
	}
	// Start code follows the 3-byte frame tag.
	if frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return 0, 0, false
	}

	raw := uint(frame[6]) | uint(frame[7])<<8 | uint(frame[8])<<16 | uint(frame[9])<<24
	return int(raw & 0x3FFF), int((raw >> 16) & 0x3FFF), true
}
