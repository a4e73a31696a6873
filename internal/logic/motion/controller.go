package motion

import (
	"fmt"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/hw/stepper"
)

// Axis selects one of the two mount axes.
type Axis int

const (
	AxisPan  Axis = 0
	AxisTilt Axis = 1
)

func (a Axis) String() string {
	switch a {
	case AxisPan:
		return "pan"
	case AxisTilt:
		return "tilt"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Controller drives the pan/tilt steppers of a mount wired directly to GPIO.
// It sits between the motor protocol and the low-level stepper drivers.
type Controller struct {
	pan  *stepper.Stepper
	tilt *stepper.Stepper
}

func NewController(pan, tilt *stepper.Stepper) *Controller {
	return &Controller{
		pan:  pan,
		tilt: tilt,
	}
}

func (c *Controller) stepper(a Axis) (*stepper.Stepper, error) {
	switch a {
	case AxisPan:
		return c.pan, nil
	case AxisTilt:
		return c.tilt, nil
	}
	return nil, fmt.Errorf("unknown axis %d", int(a))
}

// Move moves one axis by a signed number of steps.
func (c *Controller) Move(a Axis, steps int) error {
	s, err := c.stepper(a)
	if err != nil {
		return err
	}
	return s.MoveSteps(steps)
}

func (c *Controller) MovePan(steps int) error {
	return c.pan.MoveSteps(steps)
}

func (c *Controller) MoveTilt(steps int) error {
	return c.tilt.MoveSteps(steps)
}

// SetStepDelay sets the pulse half-cycle of both axes.
func (c *Controller) SetStepDelay(d time.Duration) {
	c.pan.SetStepDelay(d)
	c.tilt.SetStepDelay(d)
}

// EnableMotors powers both drivers so the mount holds position.
func (c *Controller) EnableMotors() error {
	if err := c.pan.Enable(); err != nil {
		return err
	}
	return c.tilt.Enable()
}

// DisableMotors releases both drivers.
func (c *Controller) DisableMotors() error {
	if err := c.pan.Disable(); err != nil {
		return err
	}
	return c.tilt.Disable()
}
