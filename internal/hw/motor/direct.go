package motor

import (
	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/logic/motion"
)

// Direct executes protocol commands locally on GPIO-driven steppers.
type Direct struct {
	in *motion.Interpreter
}

func NewDirect(in *motion.Interpreter) *Direct {
	return &Direct{in: in}
}

func (d *Direct) Send(cmd string) error {
	if cmd == "" {
		return ErrEmptyCommand
	}
	debug.Command("direct", cmd)
	return d.in.Execute(cmd)
}

// Read always returns an empty string: local steppers print nothing.
func (d *Direct) Read() string { return "" }
