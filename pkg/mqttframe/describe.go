package mqttframe

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Describe renders a frame for diagnostics. Frames which do not decode are
// rendered as hex together with the decode error.
func Describe(f Frame) string {
	if len(f) == 0 {
		return "<no bytes>"
	}
	p, err := packets.ReadPacket(bytes.NewReader(f))
	if err != nil {
		return fmt.Sprintf("undecodable %s (%v): 0x%s", f.Kind(), err, hex.EncodeToString(f))
	}
	return strings.TrimSpace(p.String())
}

// Codec adapts the package functions to the frame capability the exchange
// engine consumes.
type Codec struct {
	// MaxFrameSize bounds accepted frames; zero applies DefaultMaxFrameSize.
	MaxFrameSize int
}

// ReadFrame reads one raw control packet, see ReadFrame.
func (c Codec) ReadFrame(r io.Reader) ([]byte, error) {
	return ReadFrame(r, c.MaxFrameSize)
}

// Describe renders a frame, see Describe.
func (Codec) Describe(frame []byte) string {
	return Describe(frame)
}

// Kind returns the control packet name of a frame.
func (Codec) Kind(frame []byte) string {
	return Frame(frame).Kind()
}
