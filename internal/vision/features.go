package vision

import (
	"errors"
	"sort"

	"gocv.io/x/gocv"

	"github.com/cjeanneret/ScopeGo/internal/debug"
)

const (
	// MinDescriptors is the fewest descriptors a frame must yield.
	MinDescriptors = 5
	// MaxGoodMatches is how many of the closest matches are kept.
	MaxGoodMatches = 50
	// MinGoodMatches is the fewest kept matches needed for an estimate.
	MinGoodMatches = 3
)

var (
	ErrInsufficientFeatures    = errors.New("insufficient features")
	ErrNoMatches               = errors.New("no matches")
	ErrInsufficientGoodMatches = errors.New("insufficient good matches")
)

// Displacement is the move of one matched keypoint from frame A to frame B.
type Displacement struct {
	DX, DY   float64
	Distance float64 // descriptor distance of the match
}

// FeatureMatcher pairs ORB keypoints between two frames with a cross-checked
// brute-force Hamming matcher.
type FeatureMatcher struct{}

// Match returns the displacements of the best matches, closest first.
func (FeatureMatcher) Match(a, b *Frame) ([]Displacement, error) {
	orb := gocv.NewORB() // 500 keypoints
	defer orb.Close()

	none := gocv.NewMat()
	defer none.Close()

	kpA, descA := orb.DetectAndCompute(a.Mat(), none)
	defer descA.Close()
	kpB, descB := orb.DetectAndCompute(b.Mat(), none)
	defer descB.Close()

	debug.Verbose("FeatureMatcher: %d / %d descriptors", descA.Rows(), descB.Rows())
	if descA.Empty() || descB.Empty() || descA.Rows() < MinDescriptors || descB.Rows() < MinDescriptors {
		return nil, ErrInsufficientFeatures
	}

	bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, true)
	defer bf.Close()

	var matches []gocv.DMatch
	for _, m := range bf.KnnMatch(descA, descB, 1) {
		matches = append(matches, m...)
	}
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > MaxGoodMatches {
		matches = matches[:MaxGoodMatches]
	}
	debug.Verbose("FeatureMatcher: %d matches kept", len(matches))
	if len(matches) < MinGoodMatches {
		return nil, ErrInsufficientGoodMatches
	}

	out := make([]Displacement, 0, len(matches))
	for _, m := range matches {
		pa, pb := kpA[m.QueryIdx], kpB[m.TrainIdx]
		out = append(out, Displacement{
			DX:       pb.X - pa.X,
			DY:       pb.Y - pa.Y,
			Distance: m.Distance,
		})
	}
	return out, nil
}
