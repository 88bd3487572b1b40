// Package cli implements the bridge-test command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/koyi0000/mosquitto-cluster/pkg/version"
)

// ErrScenarioFailed is returned by the run command when the verdict is fail.
// The verdict has already been reported when it is returned.
var ErrScenarioFailed = errors.New("scenario failed")

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "junit"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "junit"}

// NewRootCommand creates the root command for the bridge-test CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bridge-test",
		Short: "Bridge QoS 1 redelivery conformance test",
		Long: `Impersonates the remote broker of an MQTT bridge and checks that the
bridge redelivers an unacknowledged QoS 1 message with DUP set and the same
packet identifier after its connection is dropped and re-established.`,
		Version:       version.Current,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "report format (text|json|junit)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// newLogger returns the operational logger; it writes to stderr so reports
// on stdout stay machine-readable.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
