package gpio

import (
	"sync"
	"testing"
)

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Fatalf("NewDriver(true) = %T, want *MockDriver", d)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMockDriver_RemembersLevels(t *testing.T) {
	m := &MockDriver{}
	if err := m.SetupPin(17, Output); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}
	if lvl, _ := m.ReadPin(17); lvl != Low {
		t.Errorf("unwritten pin = %v, want Low", lvl)
	}
	m.WritePin(17, High)
	m.WritePin(27, Low)
	if lvl, _ := m.ReadPin(17); lvl != High {
		t.Errorf("pin 17 = %v, want High", lvl)
	}
	if m.Writes() != 2 {
		t.Errorf("Writes() = %d, want 2", m.Writes())
	}
}

func TestMockDriver_ConcurrentWrites(t *testing.T) {
	m := &MockDriver{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(pin int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.WritePin(pin, j%2 == 0)
			}
		}(i)
	}
	wg.Wait()
	if m.Writes() != 800 {
		t.Errorf("Writes() = %d, want 800", m.Writes())
	}
}
