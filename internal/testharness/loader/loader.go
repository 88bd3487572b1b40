// Package loader reads bridge conformance scenarios from YAML.
package loader

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

// DefaultScenarioFile is the name of the embedded default scenario.
const DefaultScenarioFile = "bridge-br2b-disconnect-qos1.yaml"

// Step kinds and actions understood in scenario files.
const (
	PacketConnect   = "connect"
	PacketConnack   = "connack"
	PacketSubscribe = "subscribe"
	PacketSuback    = "suback"
	PacketPublish   = "publish"
	PacketPuback    = "puback"

	// ActionRunPublisher launches the publisher and waits for it to exit.
	ActionRunPublisher = "run_publisher"
)

// Phase names in scenario files.
const (
	PhaseInitial       = "initial"
	PhasePostReconnect = "post-reconnect"
)

//go:embed scenarios/bridge-br2b-disconnect-qos1.yaml
var defaultScenario []byte

// DefaultYAML returns the embedded default scenario document.
func DefaultYAML() []byte {
	return bytes.Clone(defaultScenario)
}

// Default returns the embedded default scenario.
func Default() *Scenario {
	sc, err := ParseScenario(defaultScenario)
	if err != nil {
		// Embedded and covered by tests; failure is a build defect.
		panic(fmt.Sprintf("loader: default scenario: %v", err))
	}
	return sc
}

// ParseScenario parses YAML on top of the default scenario, so a document
// only needs the fields it changes, and validates the result.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(defaultScenario, &sc); err != nil {
		return nil, &LoadError{File: DefaultScenarioFile, Message: "failed to parse YAML", Cause: err}
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenario loads a scenario from a file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	sc, err := ParseScenario(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return sc, nil
}

// Marshal renders the scenario as YAML.
func (s *Scenario) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ResolveClientID returns the client id the bridge uses: the configured one,
// or "<hostname>.<connection>".
func (s *Scenario) ResolveClientID(hostname string) string {
	if s.Bridge.ClientID != "" {
		return s.Bridge.ClientID
	}
	return hostname + "." + s.Broker.Connection
}

// ProtocolLevel returns the CONNECT protocol level byte of the bridge.
func (s *Scenario) ProtocolLevel() (byte, error) {
	return mqttframe.ParseProtocolLevel(s.Bridge.Protocol)
}

// Phase returns the named phase, or nil.
func (s *Scenario) Phase(name string) *PhaseSpec {
	for i := range s.Phases {
		if s.Phases[i].Name == name {
			return &s.Phases[i]
		}
	}
	return nil
}

// Validate checks the scenario for values a run cannot work with.
func (s *Scenario) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return &LoadError{Field: field, Message: fmt.Sprintf(format, args...)}
	}

	if s.ID == "" {
		return invalid("id", "scenario ID is required")
	}
	if s.Listener.Port < 0 || s.Listener.Port > 65535 {
		return invalid("listener.port", "out of range: %d", s.Listener.Port)
	}
	if s.Broker.Command == "" {
		return invalid("broker.command", "is required")
	}
	if s.Broker.Port <= 0 || s.Broker.Port > 65535 {
		return invalid("broker.port", "out of range: %d", s.Broker.Port)
	}
	if s.Broker.Connection == "" {
		return invalid("broker.connection", "is required")
	}
	if s.Broker.RestartTimeout < 0 {
		return invalid("broker.restart_timeout", "must not be negative")
	}
	if _, err := s.ProtocolLevel(); err != nil {
		return &LoadError{Field: "bridge.protocol", Message: "invalid", Cause: err}
	}
	if s.Bridge.Topic == "" {
		return invalid("bridge.topic", "is required")
	}
	if s.Bridge.QoS > 2 {
		return invalid("bridge.qos", "must be 0, 1 or 2, got %d", s.Bridge.QoS)
	}
	if s.Message.Topic == "" {
		return invalid("message.topic", "is required")
	}
	if s.Message.QoS != 1 {
		return invalid("message.qos", "redelivery is checked for QoS 1 only, got %d", s.Message.QoS)
	}
	if s.Message.MID == 0 {
		return invalid("message.mid", "packet identifier must be non-zero")
	}

	timeouts := []struct {
		field string
		value Duration
	}{
		{"timeouts.accept", s.Timeouts.Accept},
		{"timeouts.reconnect", s.Timeouts.Reconnect},
		{"timeouts.step", s.Timeouts.Step},
		{"timeouts.publisher", s.Timeouts.Publisher},
		{"timeouts.broker_ready", s.Timeouts.BrokerReady},
		{"timeouts.broker_stop", s.Timeouts.BrokerStop},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return invalid(t.field, "must be positive")
		}
	}

	if len(s.Phases) != 2 || s.Phases[0].Name != PhaseInitial || s.Phases[1].Name != PhasePostReconnect {
		return invalid("phases", "want exactly %q then %q", PhaseInitial, PhasePostReconnect)
	}
	for _, p := range s.Phases {
		if len(p.Steps) == 0 {
			return invalid("phases."+p.Name, "has no steps")
		}
		for i, st := range p.Steps {
			if err := validateStep(st); err != nil {
				return invalid(fmt.Sprintf("phases.%s.steps[%d]", p.Name, i), "%v", err)
			}
		}
	}
	return nil
}

func validateStep(st StepSpec) error {
	set := 0
	for _, v := range []string{st.Expect, st.Send, st.Action} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of expect, send or action is required")
	}

	switch {
	case st.Expect != "":
		switch st.Expect {
		case PacketConnect, PacketSubscribe, PacketPublish:
		default:
			return fmt.Errorf("cannot expect %q", st.Expect)
		}
	case st.Send != "":
		switch st.Send {
		case PacketConnack, PacketSuback, PacketPuback:
		default:
			return fmt.Errorf("cannot send %q", st.Send)
		}
	case st.Action != ActionRunPublisher:
		return fmt.Errorf("unknown action %q", st.Action)
	}

	if (st.Expect == PacketSubscribe || st.Send == PacketSuback) && st.MID == 0 {
		return fmt.Errorf("%s%s needs a non-zero mid", st.Expect, st.Send)
	}
	if st.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
