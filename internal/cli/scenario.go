package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/loader"
)

// ScenarioOptions selects a scenario and overrides parts of it.
type ScenarioOptions struct {
	File             string
	Port             int
	BrokerPort       int
	BrokerCmd        string
	AcceptTimeout    time.Duration
	ReconnectTimeout time.Duration
	StepTimeout      time.Duration
}

func (o *ScenarioOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.File, "scenario", "", "scenario YAML file (default: built-in "+loader.DefaultScenarioFile+")")
	f.IntVar(&o.Port, "port", 1888, "port the harness listens on for the bridge")
	f.IntVar(&o.BrokerPort, "broker-port", 1889, "client port of the broker under test")
	f.StringVar(&o.BrokerCmd, "broker-cmd", "mosquitto", "broker executable")
	f.DurationVar(&o.AcceptTimeout, "accept-timeout", 40*time.Second, "wait for the first bridge connection")
	f.DurationVar(&o.ReconnectTimeout, "reconnect-timeout", 40*time.Second, "wait for the bridge to reconnect")
	f.DurationVar(&o.StepTimeout, "step-timeout", 20*time.Second, "wait for each expected frame")
}

// load reads the scenario and applies the flags that were set explicitly.
func (o *ScenarioOptions) load(cmd *cobra.Command) (*loader.Scenario, error) {
	sc := loader.Default()
	if o.File != "" {
		var err error
		if sc, err = loader.LoadScenario(o.File); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("port") {
		sc.Listener.Port = o.Port
	}
	if changed("broker-port") {
		sc.Broker.Port = o.BrokerPort
	}
	if changed("broker-cmd") {
		sc.Broker.Command = o.BrokerCmd
	}
	if changed("accept-timeout") {
		sc.Timeouts.Accept = loader.Duration(o.AcceptTimeout)
	}
	if changed("reconnect-timeout") {
		sc.Timeouts.Reconnect = loader.Duration(o.ReconnectTimeout)
	}
	if changed("step-timeout") {
		sc.Timeouts.Step = loader.Duration(o.StepTimeout)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{}

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Print the effective scenario as YAML",
		Long: `Print the scenario a run would execute, after applying the scenario file
and command line overrides. The output is a valid scenario file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := opts.load(cmd)
			if err != nil {
				return err
			}
			data, err := sc.Marshal()
			if err != nil {
				return fmt.Errorf("render scenario: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	opts.addFlags(cmd)

	return cmd
}
