// Package calibration measures how a motor move shows up in the image: it
// captures a frame, moves the mount, captures again and estimates the
// direction in which matched features travelled.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/hw/camera"
	"github.com/cjeanneret/ScopeGo/internal/hw/motor"
	"github.com/cjeanneret/ScopeGo/internal/logic/geometry"
	"github.com/cjeanneret/ScopeGo/internal/metrics"
	"github.com/cjeanneret/ScopeGo/internal/telemetry"
	"github.com/cjeanneret/ScopeGo/internal/vision"
)

// DefaultSettle is how long the mount is given to finish a move.
const DefaultSettle = 5 * time.Second

// MinShift is the smallest median displacement, in pixels, that gives a
// usable direction.
const MinShift = 1.0

// Reason tells operators which stage of a calibration failed.
type Reason string

const (
	ReasonCaptureFailed           Reason = "capture failed"
	ReasonCommandRejected         Reason = "command rejected"
	ReasonInsufficientFeatures    Reason = "insufficient features"
	ReasonNoMatches               Reason = "no matches"
	ReasonInsufficientGoodMatches Reason = "insufficient good matches"
	ReasonMovementTooSmall        Reason = "movement too small"
	ReasonCancelled               Reason = "cancelled"
)

// Error is a failed calibration.
type Error struct {
	Reason Reason
	Stage  string // e.g. "first frame", "move"
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Stage != "" {
		msg += " (" + e.Stage + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf returns the Reason carried by err, or "" when err is not a
// calibration error.
func ReasonOf(err error) Reason {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

// Result is a successful calibration.
type Result struct {
	RunID    string  `json:"run_id"`
	AngleDeg float64 `json:"angle_deg"`
	ShiftX   float64 `json:"shift_x"`
	ShiftY   float64 `json:"shift_y"`
	Message  string  `json:"message"`
}

// FrameSource captures one grayscale frame of a camera.
type FrameSource interface {
	Capture(ctx context.Context, d *camera.Device) (*vision.Frame, error)
}

// Calibrator runs rotation calibrations.
type Calibrator struct {
	source FrameSource
	motor  motor.Channel
	sink   telemetry.Sink
	settle time.Duration
}

// Option customises a Calibrator.
type Option func(*Calibrator)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(c *Calibrator) {
		if d > 0 {
			c.settle = d
		}
	}
}

// WithSink publishes a calibration event after every run.
func WithSink(s telemetry.Sink) Option {
	return func(c *Calibrator) {
		if s != nil {
			c.sink = s
		}
	}
}

func New(source FrameSource, ch motor.Channel, opts ...Option) *Calibrator {
	c := &Calibrator{
		source: source,
		motor:  ch,
		sink:   telemetry.Nop{},
		settle: DefaultSettle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Calibrate captures d, sends moveCmd, waits for the mount to settle,
// captures again and returns the angle of the image shift. When debugDir is
// not empty both frames are saved there. It blocks for the settle time.
func (c *Calibrator) Calibrate(ctx context.Context, d *camera.Device, moveCmd, debugDir string) (Result, error) {
	runID := uuid.NewString()
	res, err := c.calibrate(ctx, runID, d, moveCmd, debugDir)

	fields := map[string]any{"run_id": runID, "camera": d.DisplayName(), "command": moveCmd}
	if err != nil {
		reason := ReasonOf(err)
		metrics.Calibration(string(reason))
		fields["error"] = string(reason)
		debug.Info("Calibration %s failed: %v", runID, err)
	} else {
		metrics.Calibration("ok")
		fields["angle_deg"] = geometry.Round2(res.AngleDeg)
		fields["shift_x"] = geometry.Round2(res.ShiftX)
		fields["shift_y"] = geometry.Round2(res.ShiftY)
		debug.Info("Calibration %s: angle %.2f°, %s", runID, res.AngleDeg, res.Message)
	}
	c.sink.Publish(telemetry.NewEvent(telemetry.KindCalibration, fields))
	return res, err
}

func (c *Calibrator) calibrate(ctx context.Context, runID string, d *camera.Device, moveCmd, debugDir string) (Result, error) {
	debug.Section("Calibration " + runID)

	debug.Step(1, "capture first frame")
	a, err := c.source.Capture(ctx, d)
	if err != nil {
		return Result{}, &Error{Reason: ReasonCaptureFailed, Stage: "first frame", Err: err}
	}
	defer a.Close()
	saveDebug(a, debugDir, runID, 1)

	debug.Step(2, "move mount")
	if err := c.motor.Send(moveCmd); err != nil {
		return Result{}, &Error{Reason: ReasonCommandRejected, Stage: "move", Err: err}
	}

	debug.Step(3, fmt.Sprintf("wait %v", c.settle))
	t := time.NewTimer(c.settle)
	select {
	case <-t.C:
	case <-ctx.Done():
		t.Stop()
		return Result{}, &Error{Reason: ReasonCancelled, Stage: "settle", Err: ctx.Err()}
	}

	debug.Step(4, "capture second frame")
	b, err := c.source.Capture(ctx, d)
	if err != nil {
		return Result{}, &Error{Reason: ReasonCaptureFailed, Stage: "second frame", Err: err}
	}
	defer b.Close()
	saveDebug(b, debugDir, runID, 2)

	debug.Step(5, "match features")
	res, err := EstimateRotation(a, b)
	if err != nil {
		return Result{}, err
	}
	res.RunID = runID
	return res, nil
}

// EstimateRotation matches features of a and b and returns the direction of
// the median displacement from a to b.
func EstimateRotation(a, b *vision.Frame) (Result, error) {
	disp, err := vision.FeatureMatcher{}.Match(a, b)
	if err != nil {
		return Result{}, &Error{Reason: matchReason(err), Stage: "matching", Err: err}
	}

	dxs := make([]float64, len(disp))
	dys := make([]float64, len(disp))
	for i, m := range disp {
		dxs[i], dys[i] = m.DX, m.DY
	}
	dx, dy := geometry.Median(dxs), geometry.Median(dys)
	debug.Verbose("Calibration: median shift %.2f, %.2f over %d matches", dx, dy, len(disp))

	if geometry.Magnitude(dx, dy) < MinShift {
		return Result{}, &Error{
			Reason: ReasonMovementTooSmall,
			Stage:  "estimate",
			Err:    fmt.Errorf("shift %.2f, %.2f is under %.0f px", dx, dy, MinShift),
		}
	}
	return Result{
		AngleDeg: geometry.ShiftAngle(dx, dy),
		ShiftX:   dx,
		ShiftY:   dy,
		Message:  fmt.Sprintf("shift: %.2f, %.2f", dx, dy),
	}, nil
}

func matchReason(err error) Reason {
	switch {
	case errors.Is(err, vision.ErrInsufficientFeatures):
		return ReasonInsufficientFeatures
	case errors.Is(err, vision.ErrNoMatches):
		return ReasonNoMatches
	default:
		return ReasonInsufficientGoodMatches
	}
}

// saveDebug writes f as calib_<run>_<n>.jpg in dir. Failures are only logged.
func saveDebug(f *vision.Frame, dir, runID string, n int) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		debug.Warn("Calibration: debug dir %s: %v", dir, err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("calib_%s_%d.jpg", runID, n))
	if err := f.WriteJPEG(path); err != nil {
		debug.Warn("Calibration: %v", err)
		return
	}
	debug.Verbose("Calibration: saved %s", path)
}
