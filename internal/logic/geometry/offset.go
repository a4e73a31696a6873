// Package geometry holds the pure math of guiding: offsets from the frame
// centre, polygon moments and displacement statistics.
package geometry

import "math"

// Offset is the signed position of a point relative to the frame centre.
type Offset struct {
	DX, DY        float64 // pixels, positive = right / down
	PctX, PctY    float64 // |DX| and |DY| in percent of width / height
	Width, Height int
}

// CenterOffset returns the offset of (cx, cy) from the centre of a w×h frame.
func CenterOffset(cx, cy, w, h int) Offset {
	dx := float64(cx) - float64(w)/2
	dy := float64(cy) - float64(h)/2
	o := Offset{DX: dx, DY: dy, Width: w, Height: h}
	if w > 0 {
		o.PctX = math.Abs(dx) * 100 / float64(w)
	}
	if h > 0 {
		o.PctY = math.Abs(dy) * 100 / float64(h)
	}
	return o
}

// SignedPct returns DX and DY in percent of the frame size, keeping the sign.
func (o Offset) SignedPct() (float64, float64) {
	var x, y float64
	if o.Width > 0 {
		x = o.DX * 100 / float64(o.Width)
	}
	if o.Height > 0 {
		y = o.DY * 100 / float64(o.Height)
	}
	return x, y
}

// Exceeds reports whether pct lies strictly outside the dead-zone.
func Exceeds(pct, thresholdPct float64) bool {
	return pct > thresholdPct
}

// Round2 rounds v to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
