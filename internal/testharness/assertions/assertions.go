// Package assertions checks raw MQTT frames and explains mismatches.
package assertions

import (
	"fmt"

	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

// Result represents the outcome of an assertion.
type Result struct {
	// Passed indicates if the assertion passed.
	Passed bool

	// Message describes the assertion result.
	Message string

	// Offset is the first differing byte, or -1.
	Offset int
}

// Pass creates a passing result.
func Pass(message string) *Result {
	return &Result{Passed: true, Message: message, Offset: -1}
}

// Fail creates a failing result.
func Fail(message string, offset int) *Result {
	return &Result{Message: message, Offset: offset}
}

// Frame asserts that actual is byte-identical to expected. A failure names
// the first differing byte and, for the fixed header, the flag that differs.
func Frame(expected, actual []byte) *Result {
	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		if expected[i] == actual[i] {
			continue
		}
		if i == 0 {
			return Fail(headerDiff(expected[0], actual[0]), 0)
		}
		return Fail(fmt.Sprintf("byte %d is 0x%02x, want 0x%02x", i, actual[i], expected[i]), i)
	}
	if len(expected) != len(actual) {
		return Fail(fmt.Sprintf("frame is %d bytes, want %d", len(actual), len(expected)), n)
	}
	return Pass(fmt.Sprintf("frames are equal (%d bytes)", len(expected)))
}

func headerDiff(want, got byte) string {
	const dup = 0x08
	switch {
	case want>>4 != got>>4:
		return fmt.Sprintf("packet type is %s, want %s",
			mqttframe.Frame{got}.Kind(), mqttframe.Frame{want}.Kind())
	case want&^dup == got&^dup:
		if got&dup != 0 {
			return "DUP flag is set, want clear"
		}
		return "DUP flag is clear, want set"
	case (want>>1)&0x03 != (got>>1)&0x03:
		return fmt.Sprintf("QoS is %d, want %d", (got>>1)&0x03, (want>>1)&0x03)
	default:
		return fmt.Sprintf("fixed header is 0x%02x, want 0x%02x", got, want)
	}
}

// FirstDelivery asserts that frame is a PUBLISH without DUP.
func FirstDelivery(frame []byte) *Result {
	f := mqttframe.Frame(frame)
	switch {
	case f.Kind() != "PUBLISH":
		return Fail(fmt.Sprintf("first delivery is %s, want PUBLISH", f.Kind()), 0)
	case f.Dup():
		return Fail("first delivery must not carry DUP", 0)
	}
	return Pass("first delivery")
}

// Redelivery asserts that redelivered repeats original with DUP set and
// nothing else changed.
func Redelivery(original, redelivered []byte) *Result {
	if r := FirstDelivery(original); !r.Passed {
		return r
	}
	f := mqttframe.Frame(redelivered)
	if !f.Dup() || f.Kind() != "PUBLISH" {
		return Fail("redelivered publish must carry DUP", 0)
	}
	if !mqttframe.SameExceptDup(original, redelivered) {
		withDup := append([]byte(nil), original...)
		withDup[0] |= 0x08
		r := Frame(withDup, redelivered)
		return Fail("redelivered publish differs from the original beyond DUP: "+r.Message, r.Offset)
	}
	return Pass("redelivery keeps the packet identifier and sets DUP")
}
