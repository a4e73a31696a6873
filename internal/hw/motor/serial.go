package motor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/cjeanneret/ScopeGo/internal/debug"
)

// MaxReadBuffer caps the unread controller output kept in memory; the oldest
// bytes are dropped first.
const MaxReadBuffer = 64 << 10

// SerialConfig describes the serial link to the mount controller.
type SerialConfig struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

// Serial relays commands to the mount controller over a serial port.
// A background goroutine collects everything the controller prints.
type Serial struct {
	port io.ReadWriteCloser

	writeMu sync.Mutex

	bufMu sync.Mutex
	buf   []byte

	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenSerial opens the port at cfg.Baud 8N1. DTR and RTS are held low so
// opening the port does not reset the Arduino.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	if err := p.SetDTR(false); err != nil {
		debug.Warn("Serial %s: SetDTR: %v", cfg.Port, err)
	}
	if err := p.SetRTS(false); err != nil {
		debug.Warn("Serial %s: SetRTS: %v", cfg.Port, err)
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial read timeout: %w", err)
	}
	debug.Info("Serial port %s open at %d baud", cfg.Port, cfg.Baud)
	return newSerial(p), nil
}

func newSerial(p io.ReadWriteCloser) *Serial {
	s := &Serial{
		port:   p,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer s.wg.Done()
	chunk := make([]byte, 256)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		n, err := s.port.Read(chunk)
		if n > 0 {
			s.appendRead(chunk[:n])
			debug.Command("serial<", string(chunk[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case <-s.done:
				default:
					debug.Warn("Serial read: %v", err)
				}
			}
			return
		}
	}
}

func (s *Serial) appendRead(b []byte) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	s.buf = append(s.buf, b...)
	if over := len(s.buf) - MaxReadBuffer; over > 0 {
		s.buf = append(s.buf[:0], s.buf[over:]...)
	}
}

// Send writes cmd followed by a newline.
func (s *Serial) Send(cmd string) error {
	if cmd == "" {
		return ErrEmptyCommand
	}
	select {
	case <-s.closed:
		return ErrNotOpen
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	debug.Command("serial>", cmd)
	if _, err := io.WriteString(s.port, cmd+"\n"); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Read returns and clears everything received since the last call.
func (s *Serial) Read() string {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	out := string(s.buf)
	s.buf = s.buf[:0]
	return out
}

// Close stops the reader and releases the port.
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.done)
		err = s.port.Close()
		s.wg.Wait()
	})
	return err
}
