// Package publisher sends the single QoS 1 message that the bridge under
// test forwards to the harness.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrTimeout indicates the broker did not complete an exchange in time.
var ErrTimeout = errors.New("publisher: timed out")

// Options configures one publish.
type Options struct {
	Host     string
	Port     int
	ClientID string
	Topic    string
	Payload  []byte
	QoS      byte
	Retain   bool

	// Timeout bounds connect, publish and acknowledgement together.
	Timeout time.Duration

	Logger *slog.Logger
}

// DefaultOptions returns the options of the default scenario.
func DefaultOptions() Options {
	return Options{
		Host:     "127.0.0.1",
		Port:     1889,
		ClientID: "bridge-test-publisher",
		Topic:    "bridge/disconnect/test",
		Payload:  []byte("disconnect-message"),
		QoS:      1,
		Timeout:  30 * time.Second,
	}
}

// Publish connects to the broker with a clean session, publishes one
// message, waits for its acknowledgement and disconnects.
func Publish(ctx context.Context, opts Options) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	broker := "tcp://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	co := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(opts.ClientID).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	if d, ok := ctx.Deadline(); ok {
		co.SetConnectTimeout(time.Until(d))
	}

	client := mqtt.NewClient(co)
	if err := wait(ctx, client.Connect(), "connect to "+broker); err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Debug("publisher connected", "broker", broker, "client_id", opts.ClientID)

	token := client.Publish(opts.Topic, opts.QoS, opts.Retain, opts.Payload)
	if err := wait(ctx, token, "publish "+opts.Topic); err != nil {
		return err
	}
	logger.Info("message published", "topic", opts.Topic, "qos", opts.QoS, "bytes", len(opts.Payload))
	return nil
}

func wait(ctx context.Context, token mqtt.Token, what string) error {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publisher: %s: %w", what, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrTimeout, what, ctx.Err())
	}
}
