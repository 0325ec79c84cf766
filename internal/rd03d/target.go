// Package rd03d decodes the binary target stream of an RD-03D mmWave radar
// delivered over a serial link with no message boundaries.
package rd03d

import (
	"fmt"
	"math"
)

// MaxTargets is the number of target slots carried by every frame.
const MaxTargets = 3

// Target is one decoded target slot. Distance and Angle are derived from X and
// Y when the Target is built by NewTarget and are never recomputed.
type Target struct {
	X             int     `json:"x_mm"`              // mm, lateral
	Y             int     `json:"y_mm"`              // mm, forward
	Speed         int     `json:"speed_cmps"`        // cm/s, positive = moving away
	PixelDistance uint16  `json:"pixel_distance_mm"` // mm
	Distance      float64 `json:"distance_mm"`
	Angle         float64 `json:"angle_deg"` // 0 is straight ahead, positive towards +X
}

// NewTarget builds a Target from its raw wire fields.
func NewTarget(x, y, speed int, pixelDistance uint16) Target {
	fx, fy := float64(x), float64(y)
	return Target{
		X:             x,
		Y:             y,
		Speed:         speed,
		PixelDistance: pixelDistance,
		Distance:      math.Sqrt(fx*fx + fy*fy),
		Angle:         math.Atan2(fx, fy) * 180 / math.Pi,
	}
}

func (t Target) String() string {
	return fmt.Sprintf("Target(x=%dmm, y=%dmm, speed=%dcm/s, pixel_dist=%dmm, distance=%.1fmm, angle=%.1f°)",
		t.X, t.Y, t.Speed, t.PixelDistance, t.Distance, t.Angle)
}

// TargetSet holds the targets of one decoded frame in slot order. A set is
// replaced as a whole and never modified after it is handed out.
type TargetSet []Target

// Target returns the n-th target, counting from 1.
func (s TargetSet) Target(n int) (Target, bool) {
	if n < 1 || n > len(s) {
		return Target{}, false
	}
	return s[n-1], true
}
