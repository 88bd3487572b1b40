package log

import "time"

// Event is one captured protocol event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// RunID identifies the harness invocation (UUID).
	RunID string `cbor:"2,keyasint,omitempty"`

	// ConnectionID identifies the accepted bridge connection (UUID).
	ConnectionID string `cbor:"3,keyasint,omitempty"`

	// Phase is the session phase the event belongs to.
	Phase string `cbor:"4,keyasint,omitempty"`

	Direction Direction `cbor:"5,keyasint"`
	Layer     Layer     `cbor:"6,keyasint"`
	Category  Category  `cbor:"7,keyasint"`

	// RemoteAddr is the bridge's address (IP:port).
	RemoteAddr string `cbor:"8,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction of a frame relative to the harness.
type Direction uint8

const (
	// DirectionIn is a frame received from the bridge.
	DirectionIn Direction = 0
	// DirectionOut is a frame sent to the bridge.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is raw frame traffic on a bridge connection.
	LayerTransport Layer = 0
	// LayerScenario is the orchestrator: phases, processes, verdict.
	LayerScenario Layer = 1
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerScenario:
		return "SCENARIO"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 1
	CategoryError   Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one raw MQTT control packet.
type FrameEvent struct {
	// Size is the frame size in bytes, fixed header included.
	Size int `cbor:"1,keyasint"`

	// Type is the control packet name, e.g. "PUBLISH".
	Type string `cbor:"2,keyasint,omitempty"`

	// Data is the raw frame (may be truncated for large frames).
	Data []byte `cbor:"3,keyasint,omitempty"`

	Truncated bool `cbor:"4,keyasint,omitempty"`

	// Label is the script step that read or wrote the frame.
	Label string `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityScenario is the orchestrator state machine.
	StateEntityScenario StateEntity = 0
	// StateEntityConnection is a bridge connection.
	StateEntityConnection StateEntity = 1
	// StateEntityProcess is a subordinate process (broker or publisher).
	StateEntityProcess StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityScenario:
		return "SCENARIO"
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityProcess:
		return "PROCESS"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a failure.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Kind is the failure classification, e.g. "FrameMismatch".
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what was being attempted.
	Context string `cbor:"4,keyasint,omitempty"`
}
