// Package mock provides a scripted MQTT bridge and broker process standing in
// for the broker under test.
package mock

import (
	"net"
	"sync"

	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

// Behaviour describes how the bridge deviates from a correct one. The zero
// value is a correct bridge.
type Behaviour struct {
	// NoReconnect leaves the bridge disconnected after the first session.
	NoReconnect bool

	// RedeliverMID replaces the packet identifier of the redelivery.
	RedeliverMID uint16

	// ClearDup redelivers without the DUP flag.
	ClearDup bool

	// SkipPublish never forwards the message.
	SkipPublish bool
}

// BridgeConfig describes the session the bridge plays.
type BridgeConfig struct {
	ClientID  string
	KeepAlive uint16
	Topic     string

	// Message is forwarded once triggered; Dup is ignored.
	Message mqttframe.PublishParams

	Behaviour Behaviour
}

// DefaultBridgeConfig returns the session of a correct bridge named
// bridge_sample running on hostname.
func DefaultBridgeConfig(hostname string) BridgeConfig {
	return BridgeConfig{
		ClientID:  hostname + ".bridge_sample",
		KeepAlive: 60,
		Topic:     "bridge/#",
		Message: mqttframe.PublishParams{
			Topic:     "bridge/disconnect/test",
			QoS:       1,
			MessageID: 2,
			Payload:   []byte("disconnect-message"),
		},
	}
}

// Bridge dials the harness and plays the bridge side of both sessions:
// CONNECT and SUBSCRIBE, the forwarded PUBLISH once triggered, then after the
// harness drops the connection a second CONNECT and SUBSCRIBE followed by the
// redelivery.
type Bridge struct {
	cfg     BridgeConfig
	trigger chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	conns    []net.Conn
	received []mqttframe.Frame
	sessions int
}

// NewBridge creates a bridge that is not yet connected.
func NewBridge(cfg BridgeConfig) *Bridge {
	return &Bridge{
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Start runs the bridge against addr in the background.
func (b *Bridge) Start(addr string) {
	b.wg.Add(1)
	go b.run(addr)
}

// Trigger releases the forwarded PUBLISH, as a local publish to the broker
// would.
func (b *Bridge) Trigger() {
	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

// Close drops every connection and waits for the bridge to finish. A
// connection dialled after Close is dropped at once.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	for _, c := range b.conns {
		c.Close()
	}
	b.mu.Unlock()
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}

// Received returns the frames the harness sent, in order.
func (b *Bridge) Received() []mqttframe.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mqttframe.Frame(nil), b.received...)
}

// Sessions returns how many sessions completed CONNECT and SUBSCRIBE.
func (b *Bridge) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions
}

func (b *Bridge) run(addr string) {
	defer b.wg.Done()

	c, ok := b.dial(addr)
	if !ok {
		return
	}
	if !b.session(c, 1) {
		return
	}
	select {
	case <-b.trigger:
	case <-b.stop:
		return
	}
	if !b.cfg.Behaviour.SkipPublish {
		b.write(c, b.publish(b.cfg.Message.MessageID, false))
	}
	// The harness closes the connection instead of acknowledging.
	b.read(c)
	c.Close()

	if b.cfg.Behaviour.NoReconnect {
		<-b.stop
		return
	}

	select {
	case <-b.stop:
		return
	default:
	}
	if c, ok = b.dial(addr); !ok {
		return
	}
	if !b.session(c, 3) {
		return
	}
	mid := b.cfg.Message.MessageID
	if b.cfg.Behaviour.RedeliverMID != 0 {
		mid = b.cfg.Behaviour.RedeliverMID
	}
	b.write(c, b.publish(mid, !b.cfg.Behaviour.ClearDup))
	b.read(c)
	c.Close()
}

func (b *Bridge) dial(addr string) (net.Conn, bool) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		c.Close()
		return nil, false
	}
	b.conns = append(b.conns, c)
	return c, true
}

// session sends CONNECT and SUBSCRIBE, consuming CONNACK and SUBACK.
func (b *Bridge) session(c net.Conn, subMID uint16) bool {
	connect, err := mqttframe.Connect(mqttframe.ConnectParams{
		ClientID:      b.cfg.ClientID,
		KeepAlive:     b.cfg.KeepAlive,
		ProtocolLevel: mqttframe.Level311 | mqttframe.BridgeBit,
	})
	if err != nil || !b.write(c, connect) || !b.read(c) {
		return false
	}
	subscribe, err := mqttframe.Subscribe(subMID, b.cfg.Topic, 1)
	if err != nil || !b.write(c, subscribe) || !b.read(c) {
		return false
	}
	b.mu.Lock()
	b.sessions++
	b.mu.Unlock()
	return true
}

func (b *Bridge) publish(mid uint16, dup bool) mqttframe.Frame {
	p := b.cfg.Message
	p.MessageID = mid
	p.Dup = dup
	f, err := mqttframe.Publish(p)
	if err != nil {
		panic(err)
	}
	return f
}

func (b *Bridge) write(c net.Conn, f mqttframe.Frame) bool {
	_, err := c.Write(f)
	return err == nil
}

func (b *Bridge) read(c net.Conn) bool {
	f, err := mqttframe.ReadFrame(c, 0)
	if err != nil {
		return false
	}
	b.mu.Lock()
	b.received = append(b.received, f)
	b.mu.Unlock()
	return true
}
