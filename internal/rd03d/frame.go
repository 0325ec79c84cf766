package rd03d

import (
	"bytes"
	"errors"
	"fmt"
)

// Wire framing of a target report.
const (
	MinFrameLen = 30
	slotOffset  = 4
	slotLen     = 8
)

var (
	frameStart = []byte{0xAA, 0xFF}
	frameEnd   = []byte{0x55, 0xCC}
	// reportHeader is what the sensor sends in the two header bytes of a
	// target report. It is not validated on decode.
	reportHeader = []byte{0x03, 0x00}
)

// ErrMalformed is returned by Decode for a candidate frame that is too short
// or does not carry both markers.
var ErrMalformed = errors.New("rd03d: malformed frame")

// Candidate locates a marker-delimited frame inside a buffer. End is one past
// the last byte of the end marker.
type Candidate struct {
	Start int
	End   int
}

// Frame returns the candidate's bytes within buf.
func (c Candidate) Frame(buf []byte) []byte {
	return buf[c.Start:c.End]
}

// FindFrame looks for the earliest start marker in buf and the first end
// marker after it. When no start marker exists, ok is false and c.Start is -1.
// When a start marker exists but no end marker follows it yet, ok is false
// and c.Start holds the marker position so the caller can retain the partial
// frame.
func FindFrame(buf []byte) (c Candidate, ok bool) {
	start := bytes.Index(buf, frameStart)
	if start < 0 {
		return Candidate{Start: -1, End: -1}, false
	}
	from := start + len(frameStart)
	end := bytes.Index(buf[from:], frameEnd)
	if end < 0 {
		return Candidate{Start: start, End: -1}, false
	}
	return Candidate{Start: start, End: from + end + len(frameEnd)}, true
}

// LatestFrame scans buf repeatedly and returns the last complete candidate
// frame. discard is the number of leading bytes the caller may drop: through
// the end of the last candidate, plus any following bytes that cannot begin a
// frame. When no start marker remains, everything is discardable except a
// trailing first byte of a start marker, which may be completed by the next
// read.
func LatestFrame(buf []byte) (frame []byte, discard int, ok bool) {
	offset := 0
	for {
		c, found := FindFrame(buf[offset:])
		if !found {
			switch {
			case c.Start >= 0:
				discard = offset + c.Start
			case len(buf) > offset && buf[len(buf)-1] == frameStart[0]:
				discard = len(buf) - 1
			default:
				discard = len(buf)
			}
			return frame, discard, ok
		}
		frame = c.Frame(buf[offset:])
		ok = true
		offset += c.End
	}
}

// Decode validates a candidate frame and decodes its three target slots.
// Slots reporting all zeroes are kept; the sensor uses them for empty slots.
func Decode(frame []byte) (TargetSet, error) {
	if len(frame) < MinFrameLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformed, len(frame), MinFrameLen)
	}
	if !bytes.HasPrefix(frame, frameStart) || !bytes.HasSuffix(frame, frameEnd) {
		return nil, fmt.Errorf("%w: bad markers % X .. % X", ErrMalformed, frame[:2], frame[len(frame)-2:])
	}

	targets := make(TargetSet, 0, MaxTargets)
	for i := 0; i < MaxTargets; i++ {
		b := frame[slotOffset+slotLen*i:]
		x := DecodeSignMagnitude(b[1], b[0])
		y := DecodeSignMagnitude(b[3], b[2])
		speed := DecodeSignMagnitude(b[5], b[4])
		pixelDistance := uint16(b[6]) | uint16(b[7])<<8
		targets = append(targets, NewTarget(x, y, speed, pixelDistance))
	}
	return targets, nil
}

// EncodeFrame builds a minimum-length target report for up to three targets.
// Missing slots are sent as zero bytes, as the sensor does for empty slots.
func EncodeFrame(targets ...Target) []byte {
	frame := make([]byte, 0, MinFrameLen)
	frame = append(frame, frameStart...)
	frame = append(frame, reportHeader...)
	for i := 0; i < MaxTargets; i++ {
		if i >= len(targets) {
			frame = append(frame, make([]byte, slotLen)...)
			continue
		}
		t := targets[i]
		xh, xl := EncodeSignMagnitude(t.X)
		yh, yl := EncodeSignMagnitude(t.Y)
		sh, sl := EncodeSignMagnitude(t.Speed)
		frame = append(frame, xl, xh, yl, yh, sl, sh, byte(t.PixelDistance), byte(t.PixelDistance>>8))
	}
	return append(frame, frameEnd...)
}
