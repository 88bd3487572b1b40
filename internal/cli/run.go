package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/loader"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/metrics"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/reporter"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/runner"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/supervisor"
	"github.com/koyi0000/mosquitto-cluster/pkg/log"
	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	ScenarioOptions

	Hostname    string
	ProtocolLog string
	MetricsFile string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge redelivery scenario",
		Long: `Start the broker under test with a bridge to the harness, drive both
bridge sessions and report the verdict. The exit status is 0 on pass and 1
on any failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, rootOpts)
		},
	}

	opts.addFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&opts.Hostname, "hostname", "", "hostname used in the expected bridge client id (default: os hostname)")
	f.StringVar(&opts.ProtocolLog, "protocol-log", "", "write a CBOR protocol log to this file")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions, rootOpts *RootOptions) error {
	logger := newLogger(cmd.ErrOrStderr(), rootOpts.Verbose)

	sc, err := opts.load(cmd)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}

	hostname := opts.Hostname
	if hostname == "" {
		if hostname, err = os.Hostname(); err != nil {
			return fmt.Errorf("hostname: %w", err)
		}
	}

	level, err := sc.ProtocolLevel()
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}

	if rootOpts.Format == "text" {
		printBanner(cmd.ErrOrStderr())
		logger.Info("scenario", "id", sc.ID, "listener_port", sc.Listener.Port,
			"broker", sc.Broker.Command, "broker_port", sc.Broker.Port, "hostname", hostname)
	}

	pub, err := newPublisher(sc, logger)
	if err != nil {
		return err
	}

	protocol, closeLog, err := openProtocolLog(opts.ProtocolLog, rootOpts.Verbose, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	var recorder *metrics.Recorder
	if opts.MetricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	broker := supervisor.NewBroker(supervisor.BrokerOptions{
		Command: sc.Broker.Command,
		Args:    sc.Broker.Args,
		Host:    sc.Broker.Host,
		Port:    sc.Broker.Port,
		Config: supervisor.BrokerConfig{
			BindAddress:     sc.Broker.Host,
			Connection:      sc.Broker.Connection,
			Topic:           sc.Bridge.Topic,
			QoS:             sc.Bridge.QoS,
			RestartTimeout:  sc.Broker.RestartTimeout,
			CleanSession:    sc.Bridge.CleanSession,
			TryPrivate:      level&mqttframe.BridgeBit != 0,
			ProtocolVersion: supervisor.ProtocolVersionName(level),
			RemoteClientID:  sc.Bridge.ClientID,
		},
		Template:     sc.Broker.ConfigTemplate,
		ReadyTimeout: sc.Timeouts.BrokerReady.D(),
		Logger:       logger,
	})

	rep, err := reporter.New(rootOpts.Format, cmd.OutOrStdout(), rootOpts.Verbose)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.New(runner.Config{
		Scenario:       sc,
		Hostname:       hostname,
		Broker:         broker,
		Publisher:      pub,
		Codec:          mqttframe.Codec{},
		Logger:         logger,
		ProtocolLogger: protocol,
		Metrics:        recorder,
	})
	verdict := r.Run(ctx)

	rep.ReportVerdict(verdict)

	if recorder != nil {
		if err := recorder.WriteFile(opts.MetricsFile); err != nil {
			logger.Error("write metrics", "file", opts.MetricsFile, "error", err)
		}
	}

	if !verdict.Passed {
		return ErrScenarioFailed
	}
	return nil
}

// newPublisher returns the scenario's publisher command, or this executable's
// publish command when the scenario names none.
func newPublisher(sc *loader.Scenario, logger *slog.Logger) (*supervisor.CommandPublisher, error) {
	p := &supervisor.CommandPublisher{
		Command: sc.Publisher.Command,
		Args:    sc.Publisher.Args,
		Timeout: sc.Timeouts.Publisher.D(),
		Logger:  logger,
	}
	if p.Command != "" {
		return p, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate publisher: %w", err)
	}
	p.Command = exe
	p.Args = publishArgs(sc)
	return p, nil
}

func publishArgs(sc *loader.Scenario) []string {
	args := []string{
		"publish",
		"--host", sc.Broker.Host,
		"--port", strconv.Itoa(sc.Broker.Port),
		"--topic", sc.Message.Topic,
		"--payload", sc.Message.Payload,
		"--qos", strconv.Itoa(int(sc.Message.QoS)),
		"--timeout", sc.Timeouts.Publisher.D().String(),
	}
	if sc.Message.Retain {
		args = append(args, "--retain")
	}
	return args
}

// openProtocolLog builds the protocol event sink: the CBOR file when path is
// set, and debug logging when verbose.
func openProtocolLog(path string, verbose bool, logger *slog.Logger) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open protocol log: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				logger.Error("close protocol log", "file", path, "error", err)
				return
			}
			logger.Info("protocol log written", "file", path, "events", fl.Count())
		}
	}
	if verbose {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	if len(sinks) == 0 {
		return nil, closeFn, nil
	}
	return log.NewMultiLogger(sinks...), closeFn, nil
}

func printBanner(w io.Writer) {
	fmt.Fprint(w, `
==================================================
 bridge-test: MQTT bridge QoS 1 redelivery check
==================================================
`)
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// PrintError writes err unless it only signals an already reported verdict.
func PrintError(w io.Writer, err error) {
	if err == nil || errors.Is(err, ErrScenarioFailed) {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

var _ runner.Publisher = (*supervisor.CommandPublisher)(nil)
var _ runner.BrokerProcess = (*supervisor.Broker)(nil)
