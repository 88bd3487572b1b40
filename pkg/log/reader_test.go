package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.blog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if logger.Count() != len(events) {
		t.Fatalf("Count = %d, want %d", logger.Count(), len(events))
	}
	logger.Close()

	return path
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Phase: "initial", Direction: DirectionIn, Layer: LayerTransport},
		{Timestamp: time.Now(), ConnectionID: "conn-1", Phase: "initial", Direction: DirectionOut, Layer: LayerTransport},
		{Timestamp: time.Now(), Layer: LayerScenario, Category: CategoryState},
	}
	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[1].Direction != DirectionOut {
		t.Errorf("second event Direction = %v, want OUT", read[1].Direction)
	}
	if read[2].Layer != LayerScenario {
		t.Errorf("last event Layer = %v, want SCENARIO", read[2].Layer)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Next on empty file = %v, want io.EOF", err)
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, Phase: "initial", Direction: DirectionIn},
		{Timestamp: base.Add(time.Second), Phase: "post-reconnect", Direction: DirectionIn},
		{Timestamp: base.Add(2 * time.Second), Phase: "post-reconnect", Direction: DirectionOut},
		{Timestamp: base.Add(3 * time.Second), Phase: "post-reconnect", Direction: DirectionIn, Category: CategoryError},
	}
	path := createTestLogFile(t, events)

	in := DirectionIn
	msg := CategoryMessage
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"phase", Filter{Phase: "post-reconnect"}, 3},
		{"direction", Filter{Direction: &in}, 3},
		{"phase and direction", Filter{Phase: "post-reconnect", Direction: &in}, 2},
		{"category", Filter{Category: &msg}, 3},
		{"time end exclusive", Filter{TimeEnd: &end}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			got, err := r.ReadAll()
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFileLoggerTruncatesPreviousRun(t *testing.T) {
	path := createTestLogFile(t, []Event{{Phase: "old"}, {Phase: "old"}})

	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Log(Event{Phase: "new"})
	l.Close()
	l.Log(Event{Phase: "after-close"})

	r, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, _ := r.ReadAll()
	if len(got) != 1 || got[0].Phase != "new" {
		t.Errorf("got %+v, want single new event", got)
	}
}
