// Package runner orchestrates one bridge redelivery scenario: it owns the
// listener, the broker process and the engine, and turns their outcomes
// into a verdict.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/engine"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/loader"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/metrics"
	"github.com/koyi0000/mosquitto-cluster/pkg/log"
	"github.com/koyi0000/mosquitto-cluster/pkg/transport"
)

// BrokerProcess is the broker under test.
type BrokerProcess interface {
	// Start launches the broker bridging to bridgeAddr and returns once it
	// is ready.
	Start(ctx context.Context, bridgeAddr string) error

	// Exited is closed when the process ends.
	Exited() <-chan struct{}

	// Stop terminates the process, killing it after timeout.
	Stop(timeout time.Duration) error

	// Diagnostics returns captured stderr.
	Diagnostics() string
}

// Publisher triggers the message the bridge forwards.
type Publisher interface {
	Publish(ctx context.Context) error
}

// Config holds everything a run needs.
type Config struct {
	Scenario  *loader.Scenario
	Hostname  string
	Broker    BrokerProcess
	Publisher Publisher
	Codec     engine.Codec

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives frame, state and error events. Nil discards them.
	ProtocolLogger log.Logger

	// Metrics may be nil.
	Metrics *metrics.Recorder

	// RunID defaults to a fresh UUID.
	RunID string
}

// Runner executes one scenario. It is not safe for concurrent use.
type Runner struct {
	cfg      Config
	logger   *slog.Logger
	protocol log.Logger
	engine   *engine.Engine

	state    State
	listener *transport.Listener
	verdict  *Verdict
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("run_id", cfg.RunID)

	var protocol log.Logger = log.NoopLogger{}
	if cfg.ProtocolLogger != nil {
		protocol = cfg.ProtocolLogger
	}

	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		protocol: protocol,
		state:    StateIdle,
	}

	var stepTimeout time.Duration
	if cfg.Scenario != nil {
		stepTimeout = cfg.Scenario.Timeouts.Step.D()
	}
	r.engine = engine.New(cfg.Codec, &engine.EngineConfig{
		StepTimeout:    stepTimeout,
		Logger:         logger,
		ProtocolLogger: cfg.ProtocolLogger,
		RunID:          cfg.RunID,
	})
	r.engine.RegisterHandler(loader.ActionRunPublisher, r.runPublisher)
	return r
}

// State returns the current orchestrator state.
func (r *Runner) State() State {
	return r.state
}

// Run executes the scenario and returns its verdict. Every resource is
// released before Run returns. Later calls return the same verdict.
func (r *Runner) Run(ctx context.Context) *Verdict {
	if r.verdict != nil {
		return r.verdict
	}

	v := &Verdict{RunID: r.cfg.RunID, StartTime: time.Now()}
	r.verdict = v
	defer r.finish(v)

	if err := r.checkConfig(); err != nil {
		r.failSetup(v, err)
		return v
	}
	sc := r.cfg.Scenario
	v.ScenarioID = sc.ID
	v.Name = sc.Name

	scripts, err := BuildScripts(sc, r.cfg.Hostname)
	if err != nil {
		r.failSetup(v, err)
		return v
	}

	addr := net.JoinHostPort(sc.Listener.Host, strconv.Itoa(sc.Listener.Port))
	ln, err := transport.Listen(ctx, addr)
	if err != nil {
		r.failSetup(v, engine.Config(err))
		return v
	}
	r.listener = ln
	r.transition(StateListenerUp, "listening on "+ln.Addr().String())

	if err := r.cfg.Broker.Start(ctx, r.bridgeAddr()); err != nil {
		r.processState("broker", "STARTING", "FAILED", err.Error())
		r.failSetup(v, engine.Subordinate(fmt.Errorf("broker: %w", err)))
		return v
	}
	r.processState("broker", "STARTING", "RUNNING", "")

	if !r.runPhase(ctx, v, scripts[0], sc.Timeouts.Accept.D(), StatePhase1Running) {
		return v
	}

	r.transition(StateAwaitingReconnect, "connection closed, waiting for reconnect")
	if !r.runPhase(ctx, v, scripts[1], sc.Timeouts.Reconnect.D(), StatePhase2Running) {
		return v
	}

	v.Passed = true
	return v
}

func (r *Runner) checkConfig() error {
	switch {
	case r.cfg.Scenario == nil:
		return engine.Config(errors.New("no scenario"))
	case r.cfg.Broker == nil:
		return engine.Config(errors.New("no broker"))
	case r.cfg.Publisher == nil:
		return engine.Config(errors.New("no publisher"))
	case r.cfg.Codec == nil:
		return engine.Config(errors.New("no frame codec"))
	}
	return nil
}

// bridgeAddr is the address the broker's bridge dials.
func (r *Runner) bridgeAddr() string {
	host := r.cfg.Scenario.Listener.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	port := r.listener.Addr().(*net.TCPAddr).Port
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// runPhase accepts one connection, enters running and runs script on it.
// It reports whether the phase passed.
func (r *Runner) runPhase(ctx context.Context, v *Verdict, script engine.Script, acceptTimeout time.Duration, running State) bool {
	conn, err := r.listener.Accept(ctx, acceptTimeout, r.cfg.Broker.Exited())
	if err != nil {
		r.failAccept(v, script.Phase, err)
		return false
	}
	r.logger.Info("bridge connected", "phase", string(script.Phase), "remote", conn.RemoteAddr().String())
	r.transition(running, "bridge connected from "+conn.RemoteAddr().String())

	res := r.engine.RunPhase(ctx, conn, script)
	v.Phases = append(v.Phases, res)
	r.recordPhase(res)

	if !res.Passed {
		v.Kind = res.Kind
		v.Phase = res.Phase
		v.Label = res.Label
		v.Error = res.Error
		v.Expected = res.Expected
		v.Received = res.Received
		if res.Expected != nil {
			v.ExpectedDescription = r.cfg.Codec.Describe(res.Expected)
			v.ReceivedDescription = r.cfg.Codec.Describe(res.Received)
		}
		return false
	}
	r.logger.Info("phase passed", "phase", string(script.Phase), "duration", res.Duration)
	return true
}

func (r *Runner) failAccept(v *Verdict, phase engine.Phase, err error) {
	label := "accept"
	if phase == engine.PhasePostReconnect {
		label = "reconnect"
	}
	v.Phase = phase
	v.Label = label

	select {
	case <-r.cfg.Broker.Exited():
		v.Kind = engine.SubordinateProcessFailure
		v.Error = engine.Subordinate(fmt.Errorf("%s: broker exited while waiting for the bridge: %w", label, err))
		r.processState("broker", "RUNNING", "EXITED", "unexpected exit")
	default:
		v.Kind = engine.ConnectionTimeout
		v.Error = engine.Timeout(fmt.Errorf("%s: %w", label, err))
	}
	r.cfg.Metrics.CountFailure(v.Kind.String())
	r.logError(v)
}

func (r *Runner) failSetup(v *Verdict, err error) {
	v.Kind = engine.KindOf(err)
	if v.Kind == engine.KindNone {
		v.Kind = engine.ConfigError
	}
	v.Label = "setup"
	v.Error = err
	r.cfg.Metrics.CountFailure(v.Kind.String())
	r.logError(v)
}

func (r *Runner) runPublisher(ctx context.Context, step engine.Step) error {
	r.processState("publisher", "", "RUNNING", step.Label)
	if err := r.cfg.Publisher.Publish(ctx); err != nil {
		r.processState("publisher", "RUNNING", "FAILED", err.Error())
		return engine.Subordinate(fmt.Errorf("publisher: %w", err))
	}
	r.processState("publisher", "RUNNING", "EXITED", "ok")
	return nil
}

func (r *Runner) recordPhase(res *engine.PhaseResult) {
	m := r.cfg.Metrics
	phase := string(res.Phase)
	m.ObservePhase(phase, res.Duration)
	for _, sr := range res.StepResults {
		switch {
		case sr.Step.Kind == engine.StepExpect && sr.Passed:
			m.CountFrame(phase, "in")
		case sr.Step.Kind == engine.StepSend && sr.Passed:
			m.CountFrame(phase, "out")
		}
	}
	if !res.Passed {
		m.CountFailure(res.Kind.String())
	}
}

// finish computes the verdict and tears everything down exactly once.
func (r *Runner) finish(v *Verdict) {
	if v.Passed {
		r.transition(StateVerdicted, "pass")
	} else {
		r.transition(StateVerdicted, "fail: "+v.Kind.String())
	}
	r.teardown()

	if !v.Passed && r.cfg.Broker != nil {
		v.Diagnostics = r.cfg.Broker.Diagnostics()
	}
	v.EndTime = time.Now()
	v.Duration = v.EndTime.Sub(v.StartTime)
	r.cfg.Metrics.SetVerdict(v.ScenarioID, v.Passed)

	r.logger.Info("scenario finished", "scenario", v.ScenarioID, "passed", v.Passed, "kind", v.Kind.String(), "duration", v.Duration)
}

func (r *Runner) teardown() {
	if r.state == StateTornDown {
		return
	}
	if r.cfg.Broker != nil {
		stopTimeout := 5 * time.Second
		if r.cfg.Scenario != nil && r.cfg.Scenario.Timeouts.BrokerStop > 0 {
			stopTimeout = r.cfg.Scenario.Timeouts.BrokerStop.D()
		}
		if err := r.cfg.Broker.Stop(stopTimeout); err != nil {
			r.logger.Warn("broker stop failed", "error", err)
		}
		r.processState("broker", "RUNNING", "STOPPED", "teardown")
	}
	if r.listener != nil {
		r.listener.Close()
	}
	r.transition(StateTornDown, "resources released")
}

func (r *Runner) transition(to State, reason string) {
	from := r.state
	r.state = to
	r.logger.Debug("state change", "from", from.String(), "to", to.String(), "reason", reason)
	r.protocol.Log(log.Event{
		Timestamp: time.Now(),
		RunID:     r.cfg.RunID,
		Layer:     log.LayerScenario,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityScenario,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (r *Runner) processState(name, from, to, reason string) {
	r.protocol.Log(log.Event{
		Timestamp: time.Now(),
		RunID:     r.cfg.RunID,
		Layer:     log.LayerScenario,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityProcess,
			OldState: from,
			NewState: to,
			Reason:   name + ": " + reason,
		},
	})
}

func (r *Runner) logError(v *Verdict) {
	r.logger.Warn("scenario failed", "kind", v.Kind.String(), "phase", string(v.Phase), "label", v.Label, "error", v.Error)
	r.protocol.Log(log.Event{
		Timestamp: time.Now(),
		RunID:     r.cfg.RunID,
		Phase:     string(v.Phase),
		Layer:     log.LayerScenario,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerScenario,
			Message: v.Error.Error(),
			Kind:    v.Kind.String(),
			Context: v.Label,
		},
	})
}
