package publisher

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

type fakeBroker struct {
	ln        net.Listener
	connackRC byte
	ack       bool
	published chan *packets.PublishPacket
}

func startFakeBroker(t *testing.T, connackRC byte, ack bool) *fakeBroker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	b := &fakeBroker{ln: ln, connackRC: connackRC, ack: ack, published: make(chan *packets.PublishPacket, 1)}
	t.Cleanup(func() { ln.Close() })
	go b.serve()
	return b
}

func (b *fakeBroker) port() int { return b.ln.Addr().(*net.TCPAddr).Port }

func (b *fakeBroker) serve() {
	conn, err := b.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		frame, err := mqttframe.ReadFrame(conn, 0)
		if err != nil {
			return
		}
		p, err := packets.ReadPacket(bytes.NewReader(frame))
		if err != nil {
			return
		}
		switch pkt := p.(type) {
		case *packets.ConnectPacket:
			conn.Write(mqttframe.Connack(b.connackRC, false))
		case *packets.PublishPacket:
			b.published <- pkt
			if b.ack {
				conn.Write(mqttframe.Puback(pkt.MessageID))
			}
		case *packets.DisconnectPacket:
			return
		}
	}
}

func testOptions(port int) Options {
	opts := DefaultOptions()
	opts.Port = port
	opts.Timeout = 3 * time.Second
	return opts
}

func TestPublishDeliversOneQoS1Message(t *testing.T) {
	b := startFakeBroker(t, 0, true)

	require.NoError(t, Publish(context.Background(), testOptions(b.port())))

	select {
	case pkt := <-b.published:
		assert.Equal(t, "bridge/disconnect/test", pkt.TopicName)
		assert.Equal(t, []byte("disconnect-message"), pkt.Payload)
		assert.Equal(t, byte(1), pkt.Qos)
		assert.False(t, pkt.Dup)
	default:
		t.Fatal("no publish received")
	}
}

func TestPublishConnectRefused(t *testing.T) {
	b := startFakeBroker(t, packets.ErrRefusedNotAuthorised, true)

	err := Publish(context.Background(), testOptions(b.port()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect")
}

func TestPublishWithoutAckTimesOut(t *testing.T) {
	b := startFakeBroker(t, 0, false)

	opts := testOptions(b.port())
	opts.Timeout = 300 * time.Millisecond
	err := Publish(context.Background(), opts)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPublishNoBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	opts := testOptions(port)
	opts.Timeout = time.Second
	assert.Error(t, Publish(context.Background(), opts))
}
