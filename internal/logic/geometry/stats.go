package geometry

import (
	"math"
	"sort"
)

// Median returns the median of values, or 0 for an empty slice.
// values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	s := make([]float64, n)
	copy(s, values)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// ShiftAngle returns atan2(dy, dx) in degrees, in (-180, 180].
func ShiftAngle(dx, dy float64) float64 {
	return math.Atan2(dy, dx) * 180 / math.Pi
}

// Magnitude returns the length of the shift vector.
func Magnitude(dx, dy float64) float64 {
	return math.Hypot(dx, dy)
}
