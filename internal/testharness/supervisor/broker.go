// Package supervisor runs the subordinate processes of a conformance run:
// the broker under test and the publisher that triggers it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/koyi0000/mosquitto-cluster/pkg/version"
)

// Broker errors.
var (
	// ErrBrokerExited indicates the broker exited before it was stopped.
	ErrBrokerExited = errors.New("broker exited")

	// ErrBrokerNotReady indicates the broker port never accepted connections.
	ErrBrokerNotReady = errors.New("broker not ready")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("broker already started")
)

const probeInterval = 100 * time.Millisecond

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	// Command is the broker executable; Args are passed before "-c <conf> -v".
	Command string
	Args    []string

	// Host and Port are where the broker listens for clients.
	Host string
	Port int

	// Config is rendered into the configuration file. BridgeAddress and Port
	// are filled in by Start.
	Config BrokerConfig

	// Template overrides DefaultConfigTemplate.
	Template string

	// ReadyTimeout bounds the wait for the broker port.
	ReadyTimeout time.Duration

	Logger *slog.Logger
}

// Broker supervises one broker process.
type Broker struct {
	opts   BrokerOptions
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	dir     string
	stderr  *tailBuffer
	exited  chan struct{}
	waitErr error
	stopped bool
	stopErr error
}

// NewBroker returns an unstarted broker.
func NewBroker(opts BrokerOptions) *Broker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	return &Broker{
		opts:   opts,
		logger: logger,
		stderr: newTailBuffer(defaultTailSize),
		exited: make(chan struct{}),
	}
}

// Start writes the configuration bridging to bridgeAddr, launches the
// broker and waits until its port accepts connections.
func (b *Broker) Start(ctx context.Context, bridgeAddr string) error {
	b.mu.Lock()
	if b.cmd != nil {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}

	dir, err := os.MkdirTemp("", "bridge-test-")
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("broker config dir: %w", err)
	}
	b.dir = dir

	confPath := filepath.Join(dir, "broker.conf")
	cfg := b.opts.Config
	cfg.Port = b.opts.Port
	cfg.BridgeAddress = bridgeAddr
	if err := writeConfig(confPath, cfg, b.opts.Template); err != nil {
		b.mu.Unlock()
		b.cleanup()
		return err
	}

	args := append(append([]string{}, b.opts.Args...), "-c", confPath, "-v")
	cmd := exec.Command(b.opts.Command, args...)
	cmd.Stderr = b.stderr
	if err := cmd.Start(); err != nil {
		b.mu.Unlock()
		b.cleanup()
		return fmt.Errorf("start broker %s: %w", b.opts.Command, err)
	}
	b.cmd = cmd
	b.mu.Unlock()

	b.logger.Info("broker started", "pid", cmd.Process.Pid, "command", b.opts.Command, "config", confPath)

	go func() {
		err := cmd.Wait()
		b.mu.Lock()
		b.waitErr = err
		b.mu.Unlock()
		close(b.exited)
	}()

	return b.waitReady(ctx)
}

func writeConfig(path string, cfg BrokerConfig, tmpl string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create broker config: %w", err)
	}
	if err := RenderConfig(f, cfg, tmpl); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// waitReady probes the broker port until it accepts a TCP connection.
func (b *Broker) waitReady(ctx context.Context) error {
	addr := net.JoinHostPort(b.opts.Host, strconv.Itoa(b.opts.Port))
	deadline := time.Now().Add(b.opts.ReadyTimeout)
	dialer := net.Dialer{Timeout: probeInterval}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			attrs := []any{"addr", addr}
			if v, ok := b.Version(); ok {
				attrs = append(attrs, "version", v.String())
			}
			b.logger.Info("broker ready", attrs...)
			return nil
		}

		select {
		case <-b.exited:
			return fmt.Errorf("%w during startup: %v", ErrBrokerExited, b.ExitErr())
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(probeInterval):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s not accepting after %s", ErrBrokerNotReady, addr, b.opts.ReadyTimeout)
		}
	}
}

// Exited is closed when the broker process ends.
func (b *Broker) Exited() <-chan struct{} {
	return b.exited
}

// ExitErr returns the process wait error once the broker has exited.
func (b *Broker) ExitErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waitErr == nil {
		return ErrBrokerExited
	}
	return b.waitErr
}

// Stop terminates the broker: SIGTERM, then a kill once timeout passes.
// It is safe to call more than once and before Start.
func (b *Broker) Stop(timeout time.Duration) error {
	b.mu.Lock()
	if b.stopped {
		err := b.stopErr
		b.mu.Unlock()
		return err
	}
	b.stopped = true
	cmd := b.cmd
	b.mu.Unlock()

	var err error
	if cmd != nil {
		err = b.stopProcess(cmd, timeout)
	}
	b.cleanup()

	b.mu.Lock()
	b.stopErr = err
	b.mu.Unlock()
	return err
}

func (b *Broker) stopProcess(cmd *exec.Cmd, timeout time.Duration) error {
	select {
	case <-b.exited:
		return nil
	default:
	}

	if err := terminate(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		b.logger.Warn("broker terminate failed", "error", err)
	}

	select {
	case <-b.exited:
		b.logger.Info("broker stopped")
		return nil
	case <-time.After(timeout):
	}

	b.logger.Warn("broker ignored SIGTERM, killing", "timeout", timeout)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill broker: %w", err)
	}
	<-b.exited
	return nil
}

func (b *Broker) cleanup() {
	b.mu.Lock()
	dir := b.dir
	b.dir = ""
	b.mu.Unlock()
	if dir != "" {
		os.RemoveAll(dir)
	}
}

// Version returns the broker version announced on stderr, if seen yet.
func (b *Broker) Version() (version.Version, bool) {
	return version.FromBrokerBanner(b.stderr.String())
}

// Diagnostics returns the captured tail of the broker's stderr.
func (b *Broker) Diagnostics() string {
	return b.stderr.String()
}
