// Package motor provides the command channels that move the telescope mount.
//
// The mount understands a newline-terminated key=value protocol (v=, d=, s=,
// sp=). Serial relays it to the Arduino firmware; Direct interprets it on the
// Raspberry Pi and drives the steppers itself.
package motor

import "errors"

var (
	// ErrNotOpen is returned when the channel has no usable link.
	ErrNotOpen = errors.New("motor channel not open")
	// ErrEmptyCommand is returned by Send for an empty command.
	ErrEmptyCommand = errors.New("empty motor command")
)

// Channel sends one protocol command to the mount. A nil error means the
// command was accepted for transmission.
type Channel interface {
	Send(cmd string) error
}

// Reader exposes text received from the mount since the last call.
type Reader interface {
	Read() string
}

// Unavailable is the channel used when the link could not be opened.
// Every Send fails with ErrNotOpen; the rest of the application keeps running.
type Unavailable struct {
	Err error
}

func (u Unavailable) Send(string) error {
	if u.Err != nil {
		return errors.Join(ErrNotOpen, u.Err)
	}
	return ErrNotOpen
}

func (Unavailable) Read() string { return "" }
