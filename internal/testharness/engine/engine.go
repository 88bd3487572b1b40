package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/assertions"
	"github.com/koyi0000/mosquitto-cluster/pkg/log"
	"github.com/koyi0000/mosquitto-cluster/pkg/transport"
)

// Engine executes scripts.
type Engine struct {
	config   *EngineConfig
	codec    Codec
	logger   *slog.Logger
	protocol log.Logger
	handlers map[string]ActionHandler
	mu       sync.RWMutex
}

// New creates an engine reading frames through codec.
func New(codec Codec, config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	} else {
		c := *config
		config = &c
	}
	if config.StepTimeout <= 0 {
		config.StepTimeout = DefaultConfig().StepTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var protocol log.Logger = log.NoopLogger{}
	if config.ProtocolLogger != nil {
		protocol = runTagger{runID: config.RunID, next: config.ProtocolLogger}
	}

	return &Engine{
		config:   config,
		codec:    codec,
		logger:   logger,
		protocol: protocol,
		handlers: make(map[string]ActionHandler),
	}
}

// RegisterHandler registers an action handler.
func (e *Engine) RegisterHandler(action string, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = handler
}

// RunPhase executes script on conn and closes conn before returning,
// whatever the outcome. The context deadline bounds every step.
func (e *Engine) RunPhase(ctx context.Context, conn Conn, script Script) *PhaseResult {
	result := &PhaseResult{
		Phase:        script.Phase,
		ConnectionID: uuid.NewString(),
		StartTime:    time.Now(),
	}
	if ra, ok := conn.(interface{ RemoteAddr() net.Addr }); ok && ra.RemoteAddr() != nil {
		result.RemoteAddr = ra.RemoteAddr().String()
	}

	logger := e.logger.With("phase", string(script.Phase), "conn_id", result.ConnectionID)
	e.connState(result, "", "OPEN", "accepted")

	// Unblock a pending read when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		e.connState(result, "OPEN", "CLOSED", "phase ended")
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if len(script.Steps) == 0 {
		e.fail(result, nil, Config(errors.New("empty script")))
		return result
	}

	framer := transport.NewFramer(conn, e.codec)
	framer.SetLogger(e.protocol, result.ConnectionID, string(script.Phase))

	for i, step := range script.Steps {
		sr := e.executeStep(ctx, conn, framer, step, i)
		result.StepResults = append(result.StepResults, sr)

		if !sr.Passed {
			e.fail(result, sr, sr.Error)
			logger.Warn("step failed", "label", step.Label, "kind", sr.Kind.String(), "error", sr.Error)
			return result
		}
		logger.Debug("step passed", "label", step.Label, "step", step.Kind.String(), "duration", sr.Duration)
	}

	result.Passed = true
	return result
}

// executeStep executes a single step.
func (e *Engine) executeStep(ctx context.Context, conn Conn, framer *transport.Framer, step Step, index int) *StepResult {
	result := &StepResult{Step: step, Index: index}
	start := time.Now()

	var err error
	switch step.Kind {
	case StepExpect:
		result.Received, err = e.expect(ctx, conn, framer, step)
	case StepSend:
		err = e.send(ctx, framer, step)
	case StepAction:
		err = e.runAction(ctx, step)
	default:
		err = Config(fmt.Errorf("%s: unknown step kind %d", step.Label, step.Kind))
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		result.Kind = KindOf(err)
		return result
	}
	result.Passed = true
	return result
}

// expect reads exactly one frame and compares it with the expectation.
func (e *Engine) expect(ctx context.Context, conn Conn, framer *transport.Framer, step Step) ([]byte, error) {
	timeout := e.stepTimeout(step)
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, Disconnect(fmt.Errorf("%s: set read deadline: %w", step.Label, err))
	}

	got, err := framer.ReadFrame(step.Label)
	if err != nil {
		if ctx.Err() != nil {
			return got, Timeout(fmt.Errorf("%s: aborted after %d bytes (%x): %w", step.Label, len(got), got, ctx.Err()))
		}
		switch kind := readErrorKind(err); kind {
		case ConnectionTimeout:
			return got, Timeout(fmt.Errorf("%s: no complete frame within %s, received %d bytes (%x): %w",
				step.Label, timeout, len(got), got, err))
		case UnexpectedDisconnect:
			return got, Disconnect(fmt.Errorf("%s: connection lost after %d bytes (%x): %w",
				step.Label, len(got), got, err))
		default:
			return got, Mismatch(fmt.Errorf("%s: expected %s, received malformed %x: %w",
				step.Label, e.codec.Describe(step.Frame), got, err))
		}
	}

	if r := assertions.Frame(step.Frame, got); !r.Passed {
		return got, Mismatch(fmt.Errorf("%s: %s: expected %s, received %s",
			step.Label, r.Message, e.codec.Describe(step.Frame), e.codec.Describe(got)))
	}
	return got, nil
}

func (e *Engine) send(ctx context.Context, framer *transport.Framer, step Step) error {
	if err := ctx.Err(); err != nil {
		return Timeout(fmt.Errorf("%s: %w", step.Label, err))
	}
	if err := framer.WriteFrame(step.Frame, step.Label); err != nil {
		if errors.Is(err, transport.ErrMessageEmpty) {
			return Config(fmt.Errorf("%s: %w", step.Label, err))
		}
		return Disconnect(fmt.Errorf("%s: %w", step.Label, err))
	}
	return nil
}

// runAction dispatches to a registered handler. Handler panics are
// reported as failures of the subordinate they drive.
func (e *Engine) runAction(ctx context.Context, step Step) (err error) {
	e.mu.RLock()
	handler, exists := e.handlers[step.Action]
	e.mu.RUnlock()

	if !exists {
		return Config(fmt.Errorf("%s: unknown action: %s", step.Label, step.Action))
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.stepTimeout(step))
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = Subordinate(fmt.Errorf("%s: action %s panicked: %v", step.Label, step.Action, r))
		}
	}()

	if err := handler(actionCtx, step); err != nil {
		if KindOf(err) == KindNone {
			err = Subordinate(err)
		}
		return fmt.Errorf("%s: %w", step.Label, err)
	}
	return nil
}

func (e *Engine) stepTimeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return e.config.StepTimeout
}

func (e *Engine) fail(result *PhaseResult, sr *StepResult, err error) {
	result.Passed = false
	result.Error = err
	result.Kind = KindOf(err)
	if sr != nil {
		result.Label = sr.Step.Label
		if sr.Step.Kind == StepExpect {
			result.Expected = sr.Step.Frame
			result.Received = sr.Received
		}
	}

	e.protocol.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: result.ConnectionID,
		Phase:        string(result.Phase),
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		RemoteAddr:   result.RemoteAddr,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Kind:    result.Kind.String(),
			Context: result.Label,
		},
	})
}

func (e *Engine) connState(result *PhaseResult, oldState, newState, reason string) {
	e.protocol.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: result.ConnectionID,
		Phase:        string(result.Phase),
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   result.RemoteAddr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// runTagger stamps the run id on events before forwarding them.
type runTagger struct {
	runID string
	next  log.Logger
}

func (t runTagger) Log(event log.Event) {
	if event.RunID == "" {
		event.RunID = t.runID
	}
	t.next.Log(event)
}
