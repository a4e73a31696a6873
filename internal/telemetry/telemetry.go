// Package telemetry fans out guide and calibration events to observers
// (MQTT broker, SSE clients).
package telemetry

import (
	"sync"
	"time"
)

// Event kinds.
const (
	KindCorrection  = "correction"
	KindCalibration = "calibration"
)

// Event is one observable fact of the guidance engine.
type Event struct {
	Kind   string         `json:"kind"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, fields map[string]any) Event {
	return Event{Kind: kind, Time: time.Now(), Fields: fields}
}

// Sink receives events. Publish must not block for long: it runs on the
// guide loop.
type Sink interface {
	Publish(Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Multi forwards each event to every sink, in order.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Add registers another sink.
func (m *Multi) Add(s Sink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

func (m *Multi) Publish(e Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.Publish(e)
	}
}
