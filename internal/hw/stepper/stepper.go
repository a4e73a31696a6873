package stepper

import (
	"sync"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/hw/gpio"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	Name          string // "pan" or "tilt", for logs
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
}

// Stepper moves one axis of the mount through an A4988-style driver.
type Stepper struct {
	gpio gpio.Driver
	cfg  Config

	mu    sync.Mutex
	delay time.Duration
}

// NewStepper configures the pins and enables the driver.
// A zero cfg.StepDelay defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	s := &Stepper{gpio: g, cfg: cfg}
	s.SetStepDelay(cfg.StepDelay)

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low)
	}
	return s
}

// SetStepDelay changes the pulse half-cycle, i.e. the move speed.
func (s *Stepper) SetStepDelay(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// StepDelay returns the current pulse half-cycle.
func (s *Stepper) StepDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// MoveSteps moves the motor by a number of steps (positive or negative).
func (s *Stepper) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}

	dirLevel := gpio.High
	direction := "forward"
	if steps < 0 {
		dirLevel = gpio.Low
		direction = "backward"
		steps = -steps
	}

	delay := s.StepDelay()
	debug.Verbose("Stepper %s: moving %d steps (%s), half-cycle %v", s.cfg.Name, steps, direction, delay)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		if err := s.pulse(delay); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stepper) pulse(delay time.Duration) error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(delay)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
