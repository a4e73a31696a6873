package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/logic/geometry"
)

// StarObservation is the result of one detection on one frame.
// When Found is true, 0 <= CX < FrameW and 0 <= CY < FrameH.
type StarObservation struct {
	Found  bool
	CX, CY int
	FrameW int
	FrameH int
}

// StarDetector finds the centroid of the largest bright blob of a frame.
// It keeps no state; the zero value is ready to use.
type StarDetector struct{}

// Blur kernel applied before thresholding. It hides hot pixels.
var blurKernel = image.Pt(9, 9)

const blurSigma = 2

func (StarDetector) Detect(f *Frame) StarObservation {
	obs := StarObservation{FrameW: f.Width(), FrameH: f.Height()}
	if obs.FrameW == 0 || obs.FrameH == 0 {
		return obs
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(f.Mat(), &blurred, blurKernel, blurSigma, blurSigma, gocv.BorderDefault)

	// Otsu has nothing to separate on a flat image and would mark it all bright.
	if lo, hi, _, _ := gocv.MinMaxLoc(blurred); lo == hi {
		debug.Verbose("StarDetector: flat frame (level %.0f)", lo)
		return obs
	}

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(blurred, &mask, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if area := gocv.ContourArea(contours.At(i)); area > bestArea {
			best, bestArea = i, area
		}
	}
	if best < 0 || bestArea < 1 {
		debug.Verbose("StarDetector: no blob (contours=%d, best area=%.1f)", contours.Size(), bestArea)
		return obs
	}

	cx, cy, ok := geometry.ContourMoments(contours.At(best).ToPoints()).Centroid()
	if !ok {
		return obs
	}
	obs.CX, obs.CY = clamp(int(cx), obs.FrameW), clamp(int(cy), obs.FrameH)
	obs.Found = true
	debug.Verbose("StarDetector: star at (%d, %d), area %.1f", obs.CX, obs.CY, bestArea)
	return obs
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
