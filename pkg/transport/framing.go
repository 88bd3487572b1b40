package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/koyi0000/mosquitto-cluster/pkg/log"
)

// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
// Larger frames are truncated in log events to avoid excessive memory usage.
const MaxLogFrameDataSize = 4096

// ErrMessageEmpty indicates an attempt to write an empty frame.
var ErrMessageEmpty = errors.New("message is empty")

// FrameCodec finds packet boundaries in a byte stream.
type FrameCodec interface {
	// ReadFrame reads exactly one packet. On error it returns the bytes
	// consumed so far.
	ReadFrame(r io.Reader) ([]byte, error)

	// Kind names the packet type of a frame for logging.
	Kind(frame []byte) string
}

// Framer reads and writes whole frames on a connection.
type Framer struct {
	rw    io.ReadWriter
	codec FrameCodec
	mu    sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
	phase  string
}

// NewFramer creates a framer over rw using codec for packet boundaries.
func NewFramer(rw io.ReadWriter, codec FrameCodec) *Framer {
	return &Framer{rw: rw, codec: codec}
}

// SetLogger configures logging for this framer.
// Pass nil to disable logging.
func (f *Framer) SetLogger(logger log.Logger, connID, phase string) {
	f.logger = logger
	f.connID = connID
	f.phase = phase
}

// ReadFrame reads one frame. The partial bytes are returned with the error
// so callers can report what arrived before the failure.
func (f *Framer) ReadFrame(label string) ([]byte, error) {
	frame, err := f.codec.ReadFrame(f.rw)
	if err != nil {
		return frame, err
	}
	if f.logger != nil {
		f.logger.Log(f.makeFrameEvent(frame, log.DirectionIn, label))
	}
	return frame, nil
}

// WriteFrame writes one frame in a single call.
// Thread-safe: can be called from multiple goroutines.
func (f *Framer) WriteFrame(frame []byte, label string) error {
	if len(frame) == 0 {
		return ErrMessageEmpty
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.rw.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.codec.Kind(frame), err)
	}
	if f.logger != nil {
		f.logger.Log(f.makeFrameEvent(frame, log.DirectionOut, label))
	}
	return nil
}

// makeFrameEvent creates a log event for a frame.
func (f *Framer) makeFrameEvent(data []byte, direction log.Direction, label string) log.Event {
	frameData := data
	truncated := false

	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: f.connID,
		Phase:        f.phase,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Type:      f.codec.Kind(data),
			Data:      frameData,
			Truncated: truncated,
			Label:     label,
		},
	}
}
