package motor

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/logic/motion"
)

// fakePort feeds Read from a channel and records writes.
type fakePort struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written strings.Builder
	failW   bool
}

func newFakePort() *fakePort {
	return &fakePort{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.in:
		return copy(b, data), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failW {
		return 0, errors.New("write failed")
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func TestSerial_SendAppendsNewline(t *testing.T) {
	p := newFakePort()
	s := newSerial(p)
	defer s.Close()

	if err := s.Send("v=0\nd=1\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send("s=100"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got, want := p.output(), "v=0\nd=1\n\ns=100\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestSerial_SendEmpty(t *testing.T) {
	s := newSerial(newFakePort())
	defer s.Close()

	if err := s.Send(""); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Send(\"\") = %v, want ErrEmptyCommand", err)
	}
}

func TestSerial_SendAfterClose(t *testing.T) {
	s := newSerial(newFakePort())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Send("d=1"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send after Close = %v, want ErrNotOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSerial_WriteError(t *testing.T) {
	p := newFakePort()
	p.failW = true
	s := newSerial(p)
	defer s.Close()

	if err := s.Send("d=1"); err == nil {
		t.Error("expected write error")
	}
}

func TestSerial_ReadDrainsBuffer(t *testing.T) {
	p := newFakePort()
	s := newSerial(p)
	defer s.Close()

	p.in <- []byte("ok\n")
	p.in <- []byte("pos=12\n")

	deadline := time.Now().Add(time.Second)
	var got string
	for time.Now().Before(deadline) {
		got += s.Read()
		if got == "ok\npos=12\n" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got != "ok\npos=12\n" {
		t.Fatalf("Read = %q", got)
	}
	if rest := s.Read(); rest != "" {
		t.Errorf("buffer not drained: %q", rest)
	}
}

func TestSerial_ReadBufferDropsOldest(t *testing.T) {
	s := &Serial{}
	s.appendRead([]byte(strings.Repeat("a", MaxReadBuffer)))
	s.appendRead([]byte("pos=12\n"))

	got := s.Read()
	if len(got) != MaxReadBuffer {
		t.Fatalf("len(Read) = %d, want %d", len(got), MaxReadBuffer)
	}
	if !strings.HasSuffix(got, "pos=12\n") {
		t.Errorf("newest output lost: ...%q", got[len(got)-10:])
	}
	if strings.Count(got, "a") != MaxReadBuffer-len("pos=12\n") {
		t.Error("oldest bytes should be dropped first")
	}
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("no such port")
	u := Unavailable{Err: cause}

	err := u.Send("d=1")
	if !errors.Is(err, ErrNotOpen) || !errors.Is(err, cause) {
		t.Errorf("Send = %v, want ErrNotOpen and cause", err)
	}
	if !errors.Is(Unavailable{}.Send("d=1"), ErrNotOpen) {
		t.Error("zero Unavailable should return ErrNotOpen")
	}
	if u.Read() != "" {
		t.Error("Read should be empty")
	}
}

type recordingMover struct {
	moves []int
}

func (m *recordingMover) Move(a motion.Axis, steps int) error {
	m.moves = append(m.moves, steps)
	return nil
}

func (m *recordingMover) SetStepDelay(time.Duration) {}

func TestDirect_Send(t *testing.T) {
	m := &recordingMover{}
	d := NewDirect(motion.NewInterpreter(m))

	if err := d.Send("s=10"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := d.Send("v=0\nd=0\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(m.moves) != 1 || m.moves[0] != -10 {
		t.Errorf("moves = %v, want [-10]", m.moves)
	}
	if err := d.Send(""); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Send(\"\") = %v", err)
	}
	if err := d.Send("bogus=1"); err == nil {
		t.Error("unknown key should be rejected")
	}
	if d.Read() != "" {
		t.Error("Direct.Read should be empty")
	}
}
