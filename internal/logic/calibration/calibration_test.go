package calibration

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/ScopeGo/internal/hw/camera"
	"github.com/cjeanneret/ScopeGo/internal/telemetry"
	"github.com/cjeanneret/ScopeGo/internal/vision"
	"github.com/cjeanneret/ScopeGo/internal/vision/visiontest"
)

// scriptedSource hands out prepared frames, or errors, in order.
type scriptedSource struct {
	mu     sync.Mutex
	frames []func() (*vision.Frame, error)
	calls  int
}

func (s *scriptedSource) Capture(ctx context.Context, d *camera.Device) (*vision.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.frames) {
		return nil, camera.ErrNoFrame
	}
	return s.frames[i]()
}

func pattern(seed int64) func() (*vision.Frame, error) {
	return func() (*vision.Frame, error) {
		return visiontest.Pattern(640, 480, seed), nil
	}
}

func shifted(seed int64, dx, dy float64) func() (*vision.Frame, error) {
	return func() (*vision.Frame, error) {
		a := visiontest.Pattern(640, 480, seed)
		defer a.Close()
		return visiontest.Shift(a, dx, dy), nil
	}
}

func failing() (*vision.Frame, error) {
	return nil, camera.ErrNoFrame
}

type recordingMotor struct {
	sent []string
	err  error
}

func (m *recordingMotor) Send(cmd string) error {
	m.sent = append(m.sent, cmd)
	return m.err
}

type recordingSink struct {
	events []telemetry.Event
}

func (s *recordingSink) Publish(e telemetry.Event) { s.events = append(s.events, e) }

var hd = &camera.Device{Name: "hd"}

func newCalibrator(src FrameSource, m *recordingMotor, opts ...Option) *Calibrator {
	return New(src, m, append([]Option{WithSettle(time.Millisecond)}, opts...)...)
}

func TestCalibrate_KnownShift(t *testing.T) {
	cases := []struct {
		name   string
		dx, dy float64
	}{
		{"right", 15, 0},
		{"down left", -9, 11},
		{"up", 0, -14},
		{"diagonal", 12, -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(42), shifted(42, tc.dx, tc.dy)}}
			m := &recordingMotor{}

			res, err := newCalibrator(src, m).Calibrate(context.Background(), hd, "v=0\nd=1\n", "")
			require.NoError(t, err)

			want := math.Atan2(tc.dy, tc.dx) * 180 / math.Pi
			assert.InDelta(t, want, res.AngleDeg, 1)
			assert.InDelta(t, tc.dx, res.ShiftX, 1)
			assert.InDelta(t, tc.dy, res.ShiftY, 1)
			assert.True(t, strings.HasPrefix(res.Message, "shift: "), res.Message)
			assert.NotEmpty(t, res.RunID)
			assert.Equal(t, []string{"v=0\nd=1\n"}, m.sent)
			assert.Equal(t, 2, src.calls)
		})
	}
}

func TestCalibrate_SubPixelShiftIsTooSmall(t *testing.T) {
	src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(42), shifted(42, 0.3, 0.2)}}

	_, err := newCalibrator(src, &recordingMotor{}).Calibrate(context.Background(), hd, "d=1", "")
	require.Error(t, err)
	assert.Equal(t, ReasonMovementTooSmall, ReasonOf(err))
}

// Scenario C: the motor rejects the move; no second frame is captured.
func TestCalibrate_CommandRejected(t *testing.T) {
	src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(1), pattern(1)}}
	m := &recordingMotor{err: errors.New("serial closed")}

	_, err := newCalibrator(src, m).Calibrate(context.Background(), hd, "v=1\nd=1\n", "")
	require.Error(t, err)
	assert.Equal(t, ReasonCommandRejected, ReasonOf(err))
	assert.Contains(t, err.Error(), "command rejected")
	assert.Equal(t, 1, src.calls, "second frame must not be captured")
}

func TestCalibrate_CaptureFailures(t *testing.T) {
	t.Run("first frame", func(t *testing.T) {
		src := &scriptedSource{frames: []func() (*vision.Frame, error){failing}}
		m := &recordingMotor{}
		_, err := newCalibrator(src, m).Calibrate(context.Background(), hd, "d=1", "")
		assert.Equal(t, ReasonCaptureFailed, ReasonOf(err))
		assert.ErrorIs(t, err, camera.ErrNoFrame)
		assert.Empty(t, m.sent, "no move without a first frame")
	})
	t.Run("second frame", func(t *testing.T) {
		src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(1), failing}}
		m := &recordingMotor{}
		_, err := newCalibrator(src, m).Calibrate(context.Background(), hd, "d=1", "")
		assert.Equal(t, ReasonCaptureFailed, ReasonOf(err))
		assert.Len(t, m.sent, 1)
	})
}

func TestCalibrate_InsufficientFeatures(t *testing.T) {
	dark := func() (*vision.Frame, error) { return vision.NewFrame(visiontest.Blank(640, 480, 0)) }
	src := &scriptedSource{frames: []func() (*vision.Frame, error){dark, dark}}

	_, err := newCalibrator(src, &recordingMotor{}).Calibrate(context.Background(), hd, "d=1", "")
	assert.Equal(t, ReasonInsufficientFeatures, ReasonOf(err))
	assert.ErrorIs(t, err, vision.ErrInsufficientFeatures)
}

func TestCalibrate_SettleCancelled(t *testing.T) {
	src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(1), pattern(1)}}
	c := New(src, &recordingMotor{}, WithSettle(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Calibrate(ctx, hd, "d=1", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ReasonCancelled, ReasonOf(err))
	assert.Equal(t, 1, src.calls)
}

func TestCalibrate_WritesDebugFrames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug", "nested")
	src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(3), shifted(3, 10, 0)}}

	res, err := newCalibrator(src, &recordingMotor{}).Calibrate(context.Background(), hd, "d=1", dir)
	require.NoError(t, err)

	for _, n := range []string{"1", "2"} {
		_, err := os.Stat(filepath.Join(dir, "calib_"+res.RunID+"_"+n+".jpg"))
		assert.NoError(t, err, "frame %s", n)
	}
}

func TestCalibrate_DebugDirFailureIsNotFatal(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(3), shifted(3, 10, 0)}}

	_, err := newCalibrator(src, &recordingMotor{}).Calibrate(context.Background(), hd, "d=1", file)
	assert.NoError(t, err)
}

func TestCalibrate_PublishesEvent(t *testing.T) {
	sink := &recordingSink{}
	src := &scriptedSource{frames: []func() (*vision.Frame, error){pattern(5), shifted(5, 0, 12)}}

	res, err := newCalibrator(src, &recordingMotor{}, WithSink(sink)).Calibrate(context.Background(), hd, "d=1", "")
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, telemetry.KindCalibration, e.Kind)
	assert.Equal(t, res.RunID, e.Fields["run_id"])
	assert.InDelta(t, 90, e.Fields["angle_deg"], 1)

	sink.events = nil
	src = &scriptedSource{frames: []func() (*vision.Frame, error){failing}}
	_, err = newCalibrator(src, &recordingMotor{}, WithSink(sink)).Calibrate(context.Background(), hd, "d=1", "")
	require.Error(t, err)
	require.Len(t, sink.events, 1)
	assert.Equal(t, string(ReasonCaptureFailed), sink.events[0].Fields["error"])
}

func TestEstimateRotation_Direct(t *testing.T) {
	a := visiontest.Pattern(640, 480, 11)
	defer a.Close()
	b := visiontest.Shift(a, -10, -10)
	defer b.Close()

	res, err := EstimateRotation(a, b)
	require.NoError(t, err)
	assert.InDelta(t, -135, res.AngleDeg, 1)
	assert.Empty(t, res.RunID)
}

func TestError_Format(t *testing.T) {
	cause := errors.New("timeout")
	err := &Error{Reason: ReasonCaptureFailed, Stage: "first frame", Err: cause}
	assert.Equal(t, "capture failed (first frame): timeout", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "movement too small", (&Error{Reason: ReasonMovementTooSmall}).Error())
	assert.Equal(t, Reason(""), ReasonOf(cause))
}

func TestWithSettle_IgnoresNonPositive(t *testing.T) {
	c := New(&scriptedSource{}, &recordingMotor{}, WithSettle(0), WithSink(nil))
	assert.Equal(t, DefaultSettle, c.settle)
	assert.IsType(t, telemetry.Nop{}, c.sink)
}
