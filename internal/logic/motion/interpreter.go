package motion

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/debug"
)

// DefaultSteps is the step count used by d= until an s= command is received.
const DefaultSteps = 100

// ErrUnknownKey is returned for a protocol line whose key is not understood.
var ErrUnknownKey = errors.New("unknown command key")

// Mover is the part of Controller the interpreter needs.
type Mover interface {
	Move(a Axis, steps int) error
	SetStepDelay(d time.Duration)
}

// Interpreter executes the mount's line protocol against local steppers.
// Each line is key=value:
//
//	v=<0|1>   select axis (0 pan, 1 tilt)
//	s=<n>     step count of the next moves
//	sp=<us>   half-cycle step delay in microseconds
//	d=<0|1>   move the selected axis by the step count (1 positive, 0 negative)
//
// State persists between calls, the same way the mount firmware keeps it.
type Interpreter struct {
	mover Mover

	mu    sync.Mutex
	axis  Axis
	steps int
}

func NewInterpreter(m Mover) *Interpreter {
	return &Interpreter{mover: m, steps: DefaultSteps}
}

// Execute runs every line of cmd in order and stops at the first error.
func (in *Interpreter) Execute(cmd string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	for _, line := range strings.Split(cmd, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := in.line(line); err != nil {
			return fmt.Errorf("%q: %w", line, err)
		}
	}
	return nil
}

// Axis returns the currently selected axis.
func (in *Interpreter) Axis() Axis {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.axis
}

// Steps returns the current step count.
func (in *Interpreter) Steps() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.steps
}

func (in *Interpreter) line(line string) error {
	key, raw, ok := strings.Cut(line, "=")
	if !ok {
		return errors.New("expected key=value")
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	switch strings.TrimSpace(key) {
	case "v":
		if n != int(AxisPan) && n != int(AxisTilt) {
			return fmt.Errorf("axis must be 0 or 1, got %d", n)
		}
		in.axis = Axis(n)
	case "s":
		if n < 0 {
			return fmt.Errorf("step count must be >= 0, got %d", n)
		}
		in.steps = n
	case "sp":
		if n <= 0 {
			return fmt.Errorf("speed must be > 0, got %d", n)
		}
		in.mover.SetStepDelay(time.Duration(n) * time.Microsecond)
	case "d":
		steps := in.steps
		switch n {
		case 1:
		case 0:
			steps = -steps
		default:
			return fmt.Errorf("direction must be 0 or 1, got %d", n)
		}
		debug.Trace("Interpreter: %s %+d steps", in.axis, steps)
		return in.mover.Move(in.axis, steps)
	default:
		return ErrUnknownKey
	}
	return nil
}
