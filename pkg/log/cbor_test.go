package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeDecodeFrameEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	in := Event{
		Timestamp:    ts,
		RunID:        "run-1",
		ConnectionID: "conn-1",
		Phase:        "post-reconnect",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame: &FrameEvent{
			Size:  4,
			Type:  "PUBACK",
			Data:  []byte{0x40, 0x02, 0x00, 0x02},
			Label: "puback",
		},
	}

	data, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if !out.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, ts)
	}
	if out.Phase != "post-reconnect" {
		t.Errorf("Phase = %q", out.Phase)
	}
	if out.Frame == nil || !bytes.Equal(out.Frame.Data, in.Frame.Data) {
		t.Fatalf("Frame = %+v", out.Frame)
	}
	if out.StateChange != nil || out.Error != nil {
		t.Error("unexpected payloads decoded")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	e := Event{
		Timestamp: time.Unix(0, 0).UTC(),
		Layer:     LayerScenario,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityScenario,
			OldState: "Idle",
			NewState: "ListenerUp",
		},
	}
	a, _ := EncodeEvent(e)
	b, _ := EncodeEvent(e)
	if !bytes.Equal(a, b) {
		t.Error("encodings differ")
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error")
	}
}
