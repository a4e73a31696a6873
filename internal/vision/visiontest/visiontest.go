// Package visiontest builds synthetic frames for tests.
package visiontest

import (
	"image"
	"image/color"
	"math/rand"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/ScopeGo/internal/vision"
)

// Blank returns a w×h single-channel Mat filled with level.
func Blank(w, h int, level uint8) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(level), 0, 0, 0), h, w, gocv.MatTypeCV8U)
}

func gray(v uint8) color.RGBA {
	return color.RGBA{R: v, G: v, B: v, A: 0}
}

// Disc returns a dark frame with one filled disc of the given radius.
func Disc(w, h, cx, cy, radius int) *vision.Frame {
	m := Blank(w, h, 0)
	gocv.Circle(&m, image.Pt(cx, cy), radius, gray(255), -1)
	return mustFrame(m)
}

// Pattern returns a frame full of random rectangles and discs, rich in
// corners for feature detectors. The same seed gives the same frame.
func Pattern(w, h int, seed int64) *vision.Frame {
	r := rand.New(rand.NewSource(seed))
	m := Blank(w, h, 10)
	for i := 0; i < 120; i++ {
		x, y := r.Intn(w), r.Intn(h)
		level := uint8(60 + r.Intn(196))
		if i%3 == 0 {
			gocv.Circle(&m, image.Pt(x, y), 3+r.Intn(12), gray(level), -1)
			continue
		}
		rect := image.Rect(x, y, x+6+r.Intn(30), y+6+r.Intn(30))
		gocv.Rectangle(&m, rect, gray(level), -1)
	}
	return mustFrame(m)
}

// Shift returns a copy of f translated by (dx, dy) pixels with bilinear
// interpolation. Uncovered pixels are black.
func Shift(f *vision.Frame, dx, dy float64) *vision.Frame {
	t := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer t.Close()
	t.SetDoubleAt(0, 0, 1)
	t.SetDoubleAt(0, 1, 0)
	t.SetDoubleAt(0, 2, dx)
	t.SetDoubleAt(1, 0, 0)
	t.SetDoubleAt(1, 1, 1)
	t.SetDoubleAt(1, 2, dy)

	dst := gocv.NewMat()
	gocv.WarpAffine(f.Mat(), &dst, t, image.Pt(f.Width(), f.Height()))
	return mustFrame(dst)
}

func mustFrame(m gocv.Mat) *vision.Frame {
	f, err := vision.NewFrame(m)
	if err != nil {
		panic(err)
	}
	return f
}
