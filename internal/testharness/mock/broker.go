package mock

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// Broker stands in for the broker process: Start launches a Bridge towards
// the harness instead of a real broker.
type Broker struct {
	Bridge *Bridge

	// ExitOnStart makes the process end right after a successful Start.
	ExitOnStart bool

	// StartErr is returned by Start.
	StartErr error

	// Stderr is returned by Diagnostics.
	Stderr string

	exited    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	stops      int
	bridgeAddr string
}

// NewBroker creates a broker whose bridge plays cfg.
func NewBroker(cfg BridgeConfig) *Broker {
	return &Broker{
		Bridge: NewBridge(cfg),
		Stderr: "Bridge local.broker.bridge_sample doing local SUBSCRIBE on topic " + cfg.Topic,
		exited: make(chan struct{}),
	}
}

// Start records bridgeAddr and starts the bridge.
func (b *Broker) Start(ctx context.Context, bridgeAddr string) error {
	b.mu.Lock()
	b.bridgeAddr = bridgeAddr
	b.mu.Unlock()

	if b.StartErr != nil {
		return b.StartErr
	}
	if b.ExitOnStart {
		b.exit()
		return nil
	}
	b.Bridge.Start(bridgeAddr)
	return nil
}

// Exited is closed once the broker stops or exits on its own.
func (b *Broker) Exited() <-chan struct{} { return b.exited }

// Stop closes the bridge. It counts every call.
func (b *Broker) Stop(timeout time.Duration) error {
	b.mu.Lock()
	b.stops++
	b.mu.Unlock()
	b.Bridge.Close()
	b.exit()
	return nil
}

// Diagnostics returns Stderr.
func (b *Broker) Diagnostics() string { return b.Stderr }

// Stops returns how many times Stop was called.
func (b *Broker) Stops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stops
}

// BridgeAddr returns the address passed to Start.
func (b *Broker) BridgeAddr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bridgeAddr
}

func (b *Broker) exit() {
	b.closeOnce.Do(func() { close(b.exited) })
}

// Publisher is a testify mock of the message publisher.
type Publisher struct {
	mock.Mock
}

// Publish records the call and returns the configured error.
func (p *Publisher) Publish(ctx context.Context) error {
	return p.Called(ctx).Error(0)
}

// TriggeringPublisher returns a publisher that succeeds and releases the
// bridge's forwarded message.
func TriggeringPublisher(bridge *Bridge) *Publisher {
	p := &Publisher{}
	p.On("Publish", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		bridge.Trigger()
	})
	return p
}

// FailingPublisher returns a publisher that fails with err.
func FailingPublisher(err error) *Publisher {
	p := &Publisher{}
	p.On("Publish", mock.Anything).Return(err)
	return p
}
