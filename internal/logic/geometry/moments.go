package geometry

import "image"

// Moments holds the raw spatial moments of a closed polygon.
type Moments struct {
	M00, M10, M01 float64
}

// ContourMoments computes the area and first moments of the polygon pts
// using Green's theorem. The result does not depend on the winding order.
func ContourMoments(pts []image.Point) Moments {
	n := len(pts)
	if n < 3 {
		return Moments{}
	}
	var a00, a10, a01 float64
	prev := pts[n-1]
	for _, p := range pts {
		xi, yi := float64(p.X), float64(p.Y)
		xj, yj := float64(prev.X), float64(prev.Y)
		cross := xj*yi - xi*yj
		a00 += cross
		a10 += cross * (xj + xi)
		a01 += cross * (yj + yi)
		prev = p
	}
	m := Moments{M00: a00 / 2, M10: a10 / 6, M01: a01 / 6}
	if m.M00 < 0 {
		m = Moments{M00: -m.M00, M10: -m.M10, M01: -m.M01}
	}
	return m
}

// Centroid returns m10/m00 and m01/m00. ok is false for a degenerate polygon.
func (m Moments) Centroid() (cx, cy float64, ok bool) {
	if m.M00 == 0 {
		return 0, 0, false
	}
	return m.M10 / m.M00, m.M01 / m.M00, true
}
