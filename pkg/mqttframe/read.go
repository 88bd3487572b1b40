package mqttframe

import (
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds the remaining length accepted by ReadFrame.
const DefaultMaxFrameSize = 256 * 1024

// Read errors.
var (
	// ErrMalformedLength signals a remaining length encoding over 4 bytes.
	ErrMalformedLength = errors.New("mqttframe: malformed remaining length")

	// ErrFrameTooLarge signals a remaining length over the configured maximum.
	ErrFrameTooLarge = errors.New("mqttframe: frame too large")
)

// ReadFrame reads one complete control packet from r without decoding it.
// The returned frame holds every byte consumed, also when err is not nil,
// so that callers can report partial input. A clean end of stream before the
// first byte returns io.EOF; an end of stream inside the packet returns
// io.ErrUnexpectedEOF. A max of zero or less applies DefaultMaxFrameSize.
func ReadFrame(r io.Reader, max int) (Frame, error) {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}

	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	frame := Frame{b[0]}

	size, shift := 0, 0
	for {
		if len(frame) > 4 {
			return frame, ErrMalformedLength
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return frame, inPacket(err)
		}
		frame = append(frame, b[0])
		size |= int(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
		shift += 7
	}
	if size > max {
		return frame, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, max)
	}

	body := make([]byte, size)
	n, err := io.ReadFull(r, body)
	frame = append(frame, body[:n]...)
	if err != nil {
		return frame, inPacket(err)
	}
	return frame, nil
}

func inPacket(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
