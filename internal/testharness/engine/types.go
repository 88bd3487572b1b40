// Package engine runs scripted frame exchanges against one connection.
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/koyi0000/mosquitto-cluster/pkg/log"
	"github.com/koyi0000/mosquitto-cluster/pkg/transport"
)

// Phase names a session phase.
type Phase string

const (
	// PhaseInitial is the first bridge connection.
	PhaseInitial Phase = "initial"
	// PhasePostReconnect is the connection after the forced disconnect.
	PhasePostReconnect Phase = "post-reconnect"
)

// StepKind identifies what a script step does.
type StepKind int

const (
	// StepExpect reads one frame and compares it byte for byte.
	StepExpect StepKind = iota
	// StepSend writes a fixed reply frame.
	StepSend
	// StepAction runs a registered handler.
	StepAction
)

func (k StepKind) String() string {
	switch k {
	case StepExpect:
		return "expect"
	case StepSend:
		return "send"
	case StepAction:
		return "action"
	default:
		return "unknown"
	}
}

// Step is one entry of a script.
type Step struct {
	Kind  StepKind
	Label string

	// Frame is the expected frame for StepExpect and the reply for StepSend.
	Frame []byte

	// Action is the handler name for StepAction.
	Action string

	// Timeout overrides the engine step timeout when positive.
	Timeout time.Duration
}

// Expect returns a step that waits for frame.
func Expect(label string, frame []byte, timeout time.Duration) Step {
	return Step{Kind: StepExpect, Label: label, Frame: frame, Timeout: timeout}
}

// Send returns a step that writes frame.
func Send(label string, frame []byte) Step {
	return Step{Kind: StepSend, Label: label, Frame: frame}
}

// Action returns a step that runs the handler registered as name.
func Action(label, name string, timeout time.Duration) Step {
	return Step{Kind: StepAction, Label: label, Action: name, Timeout: timeout}
}

// Script is the ordered step list of one phase. Steps are consumed
// strictly in order.
type Script struct {
	Phase Phase
	Steps []Step
}

// StepResult represents the outcome of a single step.
type StepResult struct {
	// Step is the step that was executed.
	Step Step

	// Index is the position of the step in the script (0-based).
	Index int

	Passed bool
	Kind   Kind
	Error  error

	// Received holds the bytes read by an expect step, whole or partial.
	Received []byte

	Duration time.Duration
}

// PhaseResult represents the outcome of one phase.
type PhaseResult struct {
	Phase Phase

	// ConnectionID identifies the connection in protocol logs (UUID).
	ConnectionID string

	// RemoteAddr is the bridge's address, if known.
	RemoteAddr string

	Passed bool

	// Kind, Label and Error describe the first failing step.
	Kind  Kind
	Label string
	Error error

	// Expected and Received are the bytes of the failing expect step.
	Expected []byte
	Received []byte

	StepResults []*StepResult

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// ActionHandler runs a named script action. Errors that are not
// classified fail the phase as SubordinateProcessFailure.
type ActionHandler func(ctx context.Context, step Step) error

// Codec reads whole frames and renders them for diagnostics.
type Codec interface {
	transport.FrameCodec

	// Describe renders a frame for humans.
	Describe(frame []byte) string
}

// Conn is the connection a phase runs on.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// EngineConfig configures the engine.
type EngineConfig struct {
	// StepTimeout is the default timeout for steps without their own.
	StepTimeout time.Duration

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives frame and error events. Nil discards them.
	ProtocolLogger log.Logger

	// RunID tags protocol events with the harness invocation.
	RunID string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		StepTimeout: 20 * time.Second,
	}
}
