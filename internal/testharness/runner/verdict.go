package runner

import (
	"time"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/engine"
)

// Verdict is the single outcome of a run.
type Verdict struct {
	ScenarioID string
	Name       string
	RunID      string

	Passed bool

	// Kind, Phase and Label locate the failure.
	Kind  engine.Kind
	Phase engine.Phase
	Label string
	Error error

	// Expected and Received are the bytes of a failed expectation, with
	// human-readable renderings.
	Expected            []byte
	Received            []byte
	ExpectedDescription string
	ReceivedDescription string

	// Phases holds the result of every phase that ran.
	Phases []*engine.PhaseResult

	// Diagnostics is the broker's captured stderr, attached on failure.
	Diagnostics string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
