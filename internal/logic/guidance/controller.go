// Package guidance keeps a star centred by sending small corrective moves to
// the mount. A single background worker alternates between Idle and Active;
// callers drive it through Start and Stop without ever waiting for it.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/hw/camera"
	"github.com/cjeanneret/ScopeGo/internal/hw/motor"
	"github.com/cjeanneret/ScopeGo/internal/logic/geometry"
	"github.com/cjeanneret/ScopeGo/internal/metrics"
	"github.com/cjeanneret/ScopeGo/internal/telemetry"
	"github.com/cjeanneret/ScopeGo/internal/vision"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("guidance controller closed")

// FrameSource captures one grayscale frame of a camera.
type FrameSource interface {
	Capture(ctx context.Context, d *camera.Device) (*vision.Frame, error)
}

// StarDetector locates the star in a frame.
type StarDetector interface {
	Detect(f *vision.Frame) vision.StarObservation
}

// Cycle outcomes, also used as metric labels.
const (
	outcomeNoFrame   = "no_frame"
	outcomeNoStar    = "no_star"
	outcomeCentered  = "centered"
	outcomeCorrected = "corrected"
	outcomeStopped   = "stopped"
	outcomeClosed    = "closed"
)

// Controller runs the guide loop.
type Controller struct {
	source   FrameSource
	detector StarDetector
	motor    motor.Channel
	sink     telemetry.Sink

	mu      sync.Mutex
	cond    *sync.Cond
	active  bool
	params  Params
	hasRun  bool // params set at least once
	started bool // worker spawned
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// cycleDone, when set, is called by the worker after every cycle.
	cycleDone func(outcome string)
}

// New returns an Idle controller. sink may be nil.
func New(source FrameSource, detector StarDetector, ch motor.Channel, sink telemetry.Sink) *Controller {
	if sink == nil {
		sink = telemetry.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		source:   source,
		detector: detector,
		motor:    ch,
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start stores p and activates the loop. The worker is spawned on the first
// call; later calls only replace the parameters of the next cycle.
func (c *Controller) Start(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.params = p
	c.hasRun = true
	c.active = true
	if !c.started {
		c.started = true
		c.wg.Add(1)
		go c.run()
	}
	c.cond.Broadcast()
	debug.Info("Guidance started on %s (threshold %.1f%%, every %v)", p.Camera.DisplayName(), p.ThresholdPct, p.Interval)
	return nil
}

// Stop makes the loop idle. A correction already being sent finishes; the
// next cycle does nothing until Start.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.mu.Unlock()
	if wasActive {
		debug.Info("Guidance stopped")
	}
}

// Active reports whether the loop is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Status returns a snapshot safe to hand to callers.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{Active: c.active}
	if c.hasRun {
		s.Params = statusParams(c.params)
	}
	return s
}

// Close terminates the worker and waits for it.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.active = false
	c.cond.Broadcast()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// waitActive blocks until the loop is Active and returns the current params.
// ok is false once the controller is closed.
func (c *Controller) waitActive() (p Params, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.active && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return Params{}, false
	}
	return c.params, true
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		p, ok := c.waitActive()
		if !ok {
			return
		}
		outcome := c.cycle(p)
		metrics.GuideCycle(outcome)
		if c.cycleDone != nil {
			c.cycleDone(outcome)
		}
		if !c.sleep(p.Interval) {
			return
		}
	}
}

// sleep waits d and returns false if the controller was closed meanwhile.
func (c *Controller) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// cycle performs one capture, detection and correction round.
func (c *Controller) cycle(p Params) string {
	obs, err := c.observe(c.ctx, p.Camera)
	if err != nil {
		if c.ctx.Err() != nil {
			return outcomeClosed
		}
		debug.Live("Guide: capture failed on %s: %v", p.Camera.Name, err)
		return outcomeNoFrame
	}
	if !obs.Found {
		debug.Live("Guide: no star on %s", p.Camera.Name)
		return outcomeNoStar
	}

	off := geometry.CenterOffset(obs.CX, obs.CY, obs.FrameW, obs.FrameH)
	debug.Verbose("Guide: star (%d, %d) in %dx%d, offset %.2f%% / %.2f%%",
		obs.CX, obs.CY, obs.FrameW, obs.FrameH, off.PctX, off.PctY)

	outcome := outcomeCentered
	if geometry.Exceeds(off.PctX, p.ThresholdPct) {
		c.correct(p, AxisHorizontal, horizontal(off.DX), off.PctX)
		outcome = outcomeCorrected
	}

	if !c.Active() {
		debug.Live("Guide: stopped during correction, vertical axis skipped")
		return outcomeStopped
	}

	if geometry.Exceeds(off.PctY, p.ThresholdPct) {
		c.correct(p, AxisVertical, vertical(off.DY), off.PctY)
		outcome = outcomeCorrected
	}
	return outcome
}

// observe captures and analyses one frame in the guide orientation.
func (c *Controller) observe(ctx context.Context, d *camera.Device) (vision.StarObservation, error) {
	f, err := c.source.Capture(ctx, d)
	if err != nil {
		return vision.StarObservation{}, err
	}
	if d.GuideRotate180 {
		r := f.Rotated180()
		f.Close()
		f = r
	}
	defer f.Close()
	return c.detector.Detect(f), nil
}

// correct sends speed, steps and direction. A rejected command ends the
// sequence; the loop retries on the next cycle.
func (c *Controller) correct(p Params, axis string, dir Direction, pct float64) {
	debug.Correction(axis, string(dir), pct)
	for _, cmd := range []string{p.SpeedCmd, p.StepsCmd, dir.Command()} {
		if err := c.motor.Send(cmd); err != nil {
			debug.Error(fmt.Errorf("guide %s correction %q: %w", axis, cmd, err))
			return
		}
	}
	metrics.GuideCorrection(axis, string(dir))
	c.sink.Publish(telemetry.NewEvent(telemetry.KindCorrection, map[string]any{
		"camera":     p.Camera.Name,
		"axis":       axis,
		"direction":  string(dir),
		"offset_pct": geometry.Round2(pct),
	}))
}

// DebugObserve captures one frame of d and reports where the star sits,
// whether or not the loop is running.
func (c *Controller) DebugObserve(ctx context.Context, d *camera.Device) (Report, error) {
	if d == nil {
		return Report{}, fmt.Errorf("%w: no camera", ErrInvalidParams)
	}
	obs, err := c.observe(ctx, d)
	if err != nil {
		return Report{}, err
	}
	r := Report{Found: obs.Found, FrameW: obs.FrameW, FrameH: obs.FrameH}
	if !obs.Found {
		return r, nil
	}
	x, y := geometry.CenterOffset(obs.CX, obs.CY, obs.FrameW, obs.FrameH).SignedPct()
	r.CX, r.CY = obs.CX, obs.CY
	r.OffsetXPct, r.OffsetYPct = geometry.Round2(x), geometry.Round2(y)
	debug.PrintStruct("Guide debug", r)
	return r, nil
}
