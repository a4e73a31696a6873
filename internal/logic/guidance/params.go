package guidance

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/hw/camera"
)

// ErrInvalidParams is wrapped by every Params validation error.
var ErrInvalidParams = errors.New("invalid guidance parameters")

// Params is one complete set of guide settings. Start replaces it as a whole.
type Params struct {
	Interval     time.Duration // wait between two cycles
	ThresholdPct float64       // dead-zone, percent of frame width / height
	StepsCmd     string        // e.g. "s=100"
	SpeedCmd     string        // e.g. "sp=50"
	Camera       *camera.Device
}

// Validate checks p before it reaches the loop.
func (p Params) Validate() error {
	switch {
	case p.Interval <= 0:
		return fmt.Errorf("%w: interval must be > 0, got %v", ErrInvalidParams, p.Interval)
	case math.IsNaN(p.ThresholdPct) || p.ThresholdPct < 0 || p.ThresholdPct > 100:
		return fmt.Errorf("%w: threshold must be within [0, 100], got %v", ErrInvalidParams, p.ThresholdPct)
	case p.StepsCmd == "":
		return fmt.Errorf("%w: steps command is empty", ErrInvalidParams)
	case p.SpeedCmd == "":
		return fmt.Errorf("%w: speed command is empty", ErrInvalidParams)
	case p.Camera == nil:
		return fmt.Errorf("%w: no camera", ErrInvalidParams)
	}
	return nil
}

// StatusParams is Params as shown to callers: the camera is reduced to its name.
type StatusParams struct {
	IntervalS    float64 `json:"interval_s"`
	ThresholdPct float64 `json:"threshold_pct"`
	StepsCmd     string  `json:"steps_cmd"`
	SpeedCmd     string  `json:"speed_cmd"`
	Camera       string  `json:"camera"`
}

// Status is a snapshot of the controller.
type Status struct {
	Active bool          `json:"active"`
	Params *StatusParams `json:"params,omitempty"` // nil until the first Start
}

func statusParams(p Params) *StatusParams {
	return &StatusParams{
		IntervalS:    p.Interval.Seconds(),
		ThresholdPct: p.ThresholdPct,
		StepsCmd:     p.StepsCmd,
		SpeedCmd:     p.SpeedCmd,
		Camera:       p.Camera.DisplayName(),
	}
}

// Report is the result of DebugObserve. Offsets are signed, in percent of
// the frame size, rounded to two decimals.
type Report struct {
	Found      bool    `json:"found"`
	CX         int     `json:"cx"`
	CY         int     `json:"cy"`
	FrameW     int     `json:"frame_w"`
	FrameH     int     `json:"frame_h"`
	OffsetXPct float64 `json:"offset_x_pct"`
	OffsetYPct float64 `json:"offset_y_pct"`
}
