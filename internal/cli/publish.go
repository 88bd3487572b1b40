package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/koyi0000/mosquitto-cluster/internal/publisher"
)

// NewPublishCommand creates the publish command. It is the default
// publisher a run launches, and can be used on its own.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := publisher.DefaultOptions()
	var payload string
	var qos int

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one message to the broker under test and wait for PUBACK",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Payload = []byte(payload)
			opts.QoS = byte(qos)
			opts.Logger = newLogger(cmd.ErrOrStderr(), rootOpts.Verbose)
			return publisher.Publish(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Host, "host", opts.Host, "broker host")
	f.IntVar(&opts.Port, "port", opts.Port, "broker port")
	f.StringVar(&opts.ClientID, "client-id", opts.ClientID, "client identifier")
	f.StringVar(&opts.Topic, "topic", opts.Topic, "topic")
	f.StringVar(&payload, "payload", string(opts.Payload), "message payload")
	f.IntVar(&qos, "qos", int(opts.QoS), "quality of service (0-2)")
	f.BoolVar(&opts.Retain, "retain", false, "set the retain flag")
	f.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall timeout")

	return cmd
}
