package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/koyi0000/mosquitto-cluster/pkg/log"
	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

type readWriter struct {
	io.Reader
	io.Writer
}

func TestFramerReadsOnePacketAtATime(t *testing.T) {
	connack := mqttframe.Connack(0, false)
	puback := mqttframe.Puback(2)
	stream := bytes.NewReader(append(append([]byte{}, connack...), puback...))

	f := NewFramer(readWriter{stream, io.Discard}, mqttframe.Codec{})

	got, err := f.ReadFrame("connack")
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, connack) {
		t.Errorf("first frame = %x, want %x", got, connack)
	}
	got, err = f.ReadFrame("puback")
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, puback) {
		t.Errorf("second frame = %x, want %x", got, puback)
	}
	if _, err := f.ReadFrame("eof"); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFramerReturnsPartialBytes(t *testing.T) {
	stream := bytes.NewReader([]byte{0x40, 0x02, 0x00})
	f := NewFramer(readWriter{stream, io.Discard}, mqttframe.Codec{})

	got, err := f.ReadFrame("puback")
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	if !bytes.Equal(got, []byte{0x40, 0x02, 0x00}) {
		t.Errorf("partial = %x", got)
	}
}

func TestFramerWriteEmpty(t *testing.T) {
	f := NewFramer(readWriter{bytes.NewReader(nil), io.Discard}, mqttframe.Codec{})
	if err := f.WriteFrame(nil, "x"); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
}

func TestFramerLogsFrames(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewReader(mqttframe.Puback(7))
	logger := &capturingLogger{}

	f := NewFramer(readWriter{in, &out}, mqttframe.Codec{})
	f.SetLogger(logger, "conn-1", "initial")

	if err := f.WriteFrame(mqttframe.Connack(0, false), "connack"); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := f.ReadFrame("puback"); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	out0, in1 := events[0], events[1]
	if out0.Direction != log.DirectionOut || out0.Frame.Type != "CONNACK" || out0.Frame.Label != "connack" {
		t.Errorf("unexpected out event: %+v %+v", out0, out0.Frame)
	}
	if in1.Direction != log.DirectionIn || in1.Frame.Type != "PUBACK" || in1.Frame.Size != 4 {
		t.Errorf("unexpected in event: %+v %+v", in1, in1.Frame)
	}
	for _, e := range events {
		if e.ConnectionID != "conn-1" || e.Phase != "initial" || e.Layer != log.LayerTransport {
			t.Errorf("event not tagged: %+v", e)
		}
	}
}

func TestFramerTruncatesLargeFramesInLog(t *testing.T) {
	frame, err := mqttframe.Publish(mqttframe.PublishParams{
		Topic:     "big",
		QoS:       1,
		MessageID: 1,
		Payload:   bytes.Repeat([]byte("z"), MaxLogFrameDataSize*2),
	})
	if err != nil {
		t.Fatal(err)
	}
	logger := &capturingLogger{}
	f := NewFramer(readWriter{bytes.NewReader(nil), io.Discard}, mqttframe.Codec{})
	f.SetLogger(logger, "c", "p")

	if err := f.WriteFrame(frame, "publish"); err != nil {
		t.Fatal(err)
	}
	ev := logger.Events()[0]
	if !ev.Frame.Truncated || len(ev.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("frame not truncated: truncated=%v len=%d", ev.Frame.Truncated, len(ev.Frame.Data))
	}
	if ev.Frame.Size != len(frame) {
		t.Errorf("Size = %d, want %d", ev.Frame.Size, len(frame))
	}
}
