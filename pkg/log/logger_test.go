package log

import (
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestNoopLoggerAcceptsEvents(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Log(Event{Timestamp: time.Now()})
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{ConnectionID: "c1"})
	m.Log(Event{ConnectionID: "c2"})

	for name, r := range map[string]*recordingLogger{"a": a, "b": b} {
		if len(r.events) != 2 {
			t.Fatalf("%s: got %d events, want 2", name, len(r.events))
		}
		if r.events[1].ConnectionID != "c2" {
			t.Errorf("%s: second event ConnectionID = %q, want c2", name, r.events[1].ConnectionID)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerScenario.String(), "SCENARIO"},
		{CategoryError.String(), "ERROR"},
		{StateEntityProcess.String(), "PROCESS"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
