package motion

import (
	"testing"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/hw/gpio"
	"github.com/cjeanneret/ScopeGo/internal/hw/stepper"
)

func newMockStepper() (*stepper.Stepper, *gpio.MockDriver) {
	drv := &gpio.MockDriver{}
	s := stepper.NewStepper(drv, stepper.Config{
		StepPin:       1,
		DirPin:        2,
		EnablePin:     3,
		StepsPerRev:   200,
		Microstepping: 16,
		StepDelay:     1 * time.Microsecond,
	})
	return s, drv
}

func TestController_MovePan(t *testing.T) {
	pan, panDrv := newMockStepper()
	tilt, tiltDrv := newMockStepper()
	ctrl := NewController(pan, tilt)

	before := tiltDrv.Writes()
	if err := ctrl.MovePan(100); err != nil {
		t.Errorf("MovePan: %v", err)
	}
	if panDrv.Writes() == 0 {
		t.Error("MovePan should write to the pan driver")
	}
	if tiltDrv.Writes() != before {
		t.Error("MovePan should not touch the tilt driver")
	}
}

func TestController_MoveTilt(t *testing.T) {
	pan, _ := newMockStepper()
	tilt, _ := newMockStepper()
	ctrl := NewController(pan, tilt)

	if err := ctrl.MoveTilt(50); err != nil {
		t.Errorf("MoveTilt: %v", err)
	}
}

func TestController_MoveAxis(t *testing.T) {
	pan, _ := newMockStepper()
	tilt, tiltDrv := newMockStepper()
	ctrl := NewController(pan, tilt)

	before := tiltDrv.Writes()
	if err := ctrl.Move(AxisTilt, -20); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if tiltDrv.Writes() == before {
		t.Error("Move(AxisTilt) should write to the tilt driver")
	}
	if err := ctrl.Move(Axis(7), 1); err == nil {
		t.Error("Move with unknown axis should fail")
	}
}

func TestController_SetStepDelay(t *testing.T) {
	pan, _ := newMockStepper()
	tilt, _ := newMockStepper()
	ctrl := NewController(pan, tilt)

	ctrl.SetStepDelay(40 * time.Microsecond)
	if pan.StepDelay() != 40*time.Microsecond || tilt.StepDelay() != 40*time.Microsecond {
		t.Errorf("step delay not applied: pan=%v tilt=%v", pan.StepDelay(), tilt.StepDelay())
	}
}

func TestController_EnableMotors(t *testing.T) {
	pan, _ := newMockStepper()
	tilt, _ := newMockStepper()
	ctrl := NewController(pan, tilt)

	if err := ctrl.EnableMotors(); err != nil {
		t.Errorf("EnableMotors: %v", err)
	}
}

func TestController_DisableMotors(t *testing.T) {
	pan, _ := newMockStepper()
	tilt, _ := newMockStepper()
	ctrl := NewController(pan, tilt)

	if err := ctrl.DisableMotors(); err != nil {
		t.Errorf("DisableMotors: %v", err)
	}
}

func TestController_MovePanZero(t *testing.T) {
	pan, _ := newMockStepper()
	tilt, _ := newMockStepper()
	ctrl := NewController(pan, tilt)

	if err := ctrl.MovePan(0); err != nil {
		t.Errorf("MovePan(0): %v", err)
	}
}

func TestAxis_String(t *testing.T) {
	if AxisPan.String() != "pan" || AxisTilt.String() != "tilt" {
		t.Errorf("got %q, %q", AxisPan, AxisTilt)
	}
}
