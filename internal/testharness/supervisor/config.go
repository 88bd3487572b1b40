package supervisor

import (
	"fmt"
	"io"
	"text/template"
)

// DefaultConfigTemplate is the mosquitto configuration of the broker under
// test: a plain local listener and one bridge to the harness.
const DefaultConfigTemplate = `# Generated for one bridge conformance run.
listener {{.Port}}{{if .BindAddress}} {{.BindAddress}}{{end}}
allow_anonymous true
persistence false

connection {{.Connection}}
address {{.BridgeAddress}}
topic {{.Topic}} both {{.QoS}}
notifications false
restart_timeout {{.RestartTimeout}}
cleansession {{.CleanSession}}
try_private {{.TryPrivate}}
bridge_protocol_version {{.ProtocolVersion}}
{{- if .RemoteClientID}}
remote_clientid {{.RemoteClientID}}
{{- end}}
`

// BrokerConfig holds the values rendered into the broker configuration.
type BrokerConfig struct {
	Port        int
	BindAddress string

	// Connection is the bridge connection name.
	Connection string

	// BridgeAddress is the harness listener as host:port.
	BridgeAddress string

	Topic           string
	QoS             byte
	RestartTimeout  int
	CleanSession    bool
	TryPrivate      bool
	ProtocolVersion string
	RemoteClientID  string
}

// RenderConfig executes tmpl, or DefaultConfigTemplate when tmpl is empty,
// with cfg and writes the result to w.
func RenderConfig(w io.Writer, cfg BrokerConfig, tmpl string) error {
	if tmpl == "" {
		tmpl = DefaultConfigTemplate
	}
	t, err := template.New("broker.conf").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("parse broker config template: %w", err)
	}
	if err := t.Execute(w, cfg); err != nil {
		return fmt.Errorf("render broker config: %w", err)
	}
	return nil
}

// ProtocolVersionName maps a CONNECT protocol level to the name mosquitto
// uses for bridge_protocol_version.
func ProtocolVersionName(level byte) string {
	if level&0x7f == 3 {
		return "mqttv31"
	}
	return "mqttv311"
}
