package loader

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one bridge conformance scenario.
type Scenario struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	Listener  ListenerConfig  `yaml:"listener"`
	Broker    BrokerConfig    `yaml:"broker"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Message   MessageConfig   `yaml:"message"`
	Publisher PublisherConfig `yaml:"publisher,omitempty"`
	Timeouts  Timeouts        `yaml:"timeouts"`

	// Phases holds the scripts of the two session phases, in order.
	Phases []PhaseSpec `yaml:"phases"`
}

// ListenerConfig is the harness endpoint the bridge connects to.
type ListenerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BrokerConfig describes the broker under test.
type BrokerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Host    string   `yaml:"host"`
	Port    int      `yaml:"port"`

	// Connection is the bridge connection name in the broker configuration.
	Connection string `yaml:"connection"`

	// RestartTimeout is the bridge reconnect delay in seconds.
	RestartTimeout int `yaml:"restart_timeout"`

	// ConfigTemplate replaces the built-in configuration template.
	ConfigTemplate string `yaml:"config_template,omitempty"`
}

// BridgeConfig describes the CONNECT and SUBSCRIBE the bridge sends.
type BridgeConfig struct {
	// ClientID defaults to "<hostname>.<connection>".
	ClientID     string `yaml:"client_id,omitempty"`
	KeepAlive    uint16 `yaml:"keep_alive"`
	CleanSession bool   `yaml:"clean_session"`

	// Protocol is a protocol tag such as "3.1.1+bridge".
	Protocol string `yaml:"protocol"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// MessageConfig describes the published message.
type MessageConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     byte   `yaml:"qos"`
	MID     uint16 `yaml:"mid"`
	Retain  bool   `yaml:"retain,omitempty"`
}

// PublisherConfig overrides the command that publishes the message.
// An empty command runs the built-in publisher.
type PublisherConfig struct {
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

// Timeouts bounds every wait of a run.
type Timeouts struct {
	Accept      Duration `yaml:"accept"`
	Reconnect   Duration `yaml:"reconnect"`
	Step        Duration `yaml:"step"`
	Publisher   Duration `yaml:"publisher"`
	BrokerReady Duration `yaml:"broker_ready"`
	BrokerStop  Duration `yaml:"broker_stop"`
}

// PhaseSpec is the script of one phase.
type PhaseSpec struct {
	Name  string     `yaml:"name"`
	Steps []StepSpec `yaml:"steps"`
}

// StepSpec is one script step. Exactly one of Expect, Send and Action is
// set; Expect and Send name a packet type.
type StepSpec struct {
	Expect string `yaml:"expect,omitempty"`
	Send   string `yaml:"send,omitempty"`
	Action string `yaml:"action,omitempty"`
	Label  string `yaml:"label,omitempty"`

	// MID is the packet identifier of SUBSCRIBE and SUBACK steps.
	MID uint16 `yaml:"mid,omitempty"`

	// Dup is the duplicate flag of a PUBLISH expectation.
	Dup bool `yaml:"dup,omitempty"`

	// ReturnCode is the CONNACK return code.
	ReturnCode byte `yaml:"return_code,omitempty"`

	Timeout Duration `yaml:"timeout,omitempty"`
}

// Duration is a time.Duration written in Go syntax ("40s") in YAML.
// Bare integers are read as seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.Atoi(value.Value); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadError provides details about a scenario loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Field is the offending field, if known.
	Field string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File != "" {
		return e.File + ": " + msg
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
