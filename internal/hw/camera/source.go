package camera

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/metrics"
	"github.com/cjeanneret/ScopeGo/internal/vision"
)

// ErrNoFrame means no strategy produced a frame. It is never fatal.
var ErrNoFrame = errors.New("no frame captured")

// SnapshotTimeout bounds a single HTTP snapshot request.
const SnapshotTimeout = 2 * time.Second

// Strategy is one way of grabbing a frame.
type Strategy interface {
	Name() string
	Applies(d *Device) bool
	Grab(ctx context.Context, d *Device) (*vision.Frame, error)
}

// Source tries its strategies in order; the first frame wins.
type Source struct {
	strategies []Strategy
}

func NewSource(strategies ...Strategy) *Source {
	return &Source{strategies: strategies}
}

// DefaultSource tries an HTTP snapshot, then an RTSP frame, then the raw device.
func DefaultSource() *Source {
	return NewSource(
		NewSnapshotStrategy(&http.Client{Timeout: SnapshotTimeout}),
		StreamStrategy{},
		DeviceStrategy{},
	)
}

// Capture returns one grayscale frame of d. The caller closes it.
func (s *Source) Capture(ctx context.Context, d *Device) (*vision.Frame, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: no camera", ErrNoFrame)
	}
	var errs []error
	for _, st := range s.strategies {
		if !st.Applies(d) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
		}
		f, err := st.Grab(ctx, d)
		metrics.CaptureAttempt(st.Name(), err == nil)
		if err == nil {
			debug.Verbose("Capture %s: %s ok (%dx%d)", d.Name, st.Name(), f.Width(), f.Height())
			return f, nil
		}
		debug.Verbose("Capture %s: %s failed: %v", d.Name, st.Name(), err)
		errs = append(errs, fmt.Errorf("%s: %w", st.Name(), err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s: no capture path", ErrNoFrame, d.Name)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrNoFrame, d.Name, errors.Join(errs...))
}
