package mqttframe

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Frame is the raw encoding of one control packet, fixed header included.
type Frame []byte

// Type returns the control packet type from the fixed header, or 0 for an
// empty frame.
func (f Frame) Type() byte {
	if len(f) == 0 {
		return 0
	}
	return f[0] >> 4
}

// Kind returns the control packet name, e.g. "PUBLISH".
func (f Frame) Kind() string {
	if len(f) == 0 {
		return "EMPTY"
	}
	if name, ok := packets.PacketNames[f.Type()]; ok {
		return name
	}
	return fmt.Sprintf("TYPE(%d)", f.Type())
}

// Dup reports whether the duplicate delivery flag is set.
func (f Frame) Dup() bool {
	return len(f) > 0 && f[0]&dupFlag != 0
}

// Publication flags in the fixed header.
const (
	dupFlag    = 0x08
	retainFlag = 0x01
)

// Builder errors.
var (
	ErrInvalidQoS       = errors.New("mqttframe: QoS must be 0, 1 or 2")
	ErrMissingMessageID = errors.New("mqttframe: packet identifier required")
	ErrEmptyTopic       = errors.New("mqttframe: empty topic")
	ErrEmptyClientID    = errors.New("mqttframe: empty client identifier")
)

// ConnectParams are the fields of a CONNECT packet.
type ConnectParams struct {
	ClientID     string
	KeepAlive    uint16
	CleanSession bool

	// ProtocolName defaults to "MQTT" ("MQIsdp" for level 3).
	ProtocolName string
	// ProtocolLevel defaults to 4. The 0x80 bit marks a bridge connection.
	ProtocolLevel byte

	Username string
	Password []byte

	WillTopic   string
	WillMessage []byte
	WillQoS     byte
	WillRetain  bool
}

// Connect builds a CONNECT frame.
func Connect(p ConnectParams) (Frame, error) {
	if p.ClientID == "" {
		return nil, ErrEmptyClientID
	}
	if p.WillQoS > 2 {
		return nil, ErrInvalidQoS
	}

	level := p.ProtocolLevel
	if level == 0 {
		level = 4
	}
	name := p.ProtocolName
	if name == "" {
		name = protocolName(level)
	}

	cp := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
	cp.ProtocolName = name
	cp.ProtocolVersion = level
	cp.CleanSession = p.CleanSession
	cp.Keepalive = p.KeepAlive
	cp.ClientIdentifier = p.ClientID
	if p.WillTopic != "" {
		cp.WillFlag = true
		cp.WillTopic = p.WillTopic
		cp.WillMessage = p.WillMessage
		cp.WillQos = p.WillQoS
		cp.WillRetain = p.WillRetain
	}
	if p.Username != "" {
		cp.UsernameFlag = true
		cp.Username = p.Username
		if p.Password != nil {
			cp.PasswordFlag = true
			cp.Password = p.Password
		}
	}
	return encode(cp)
}

// Connack builds a CONNACK frame.
func Connack(returnCode byte, sessionPresent bool) Frame {
	cp := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	cp.ReturnCode = returnCode
	cp.SessionPresent = sessionPresent
	return mustEncode(cp)
}

// Subscribe builds a SUBSCRIBE frame for a single topic filter.
func Subscribe(messageID uint16, topic string, qos byte) (Frame, error) {
	if messageID == 0 {
		return nil, ErrMissingMessageID
	}
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if qos > 2 {
		return nil, ErrInvalidQoS
	}

	sp := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	sp.MessageID = messageID
	sp.Topics = []string{topic}
	sp.Qoss = []byte{qos}
	return encode(sp)
}

// Suback builds a SUBACK frame granting a single QoS level.
func Suback(messageID uint16, granted byte) Frame {
	sp := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
	sp.MessageID = messageID
	sp.ReturnCodes = []byte{granted}
	return mustEncode(sp)
}

// PublishParams are the fields of a PUBLISH packet.
type PublishParams struct {
	Topic     string
	QoS       byte
	MessageID uint16
	Dup       bool
	Retain    bool
	Payload   []byte
}

// Publish builds a PUBLISH frame. A packet identifier is required for QoS
// 1 and 2 and ignored for QoS 0.
func Publish(p PublishParams) (Frame, error) {
	if p.Topic == "" {
		return nil, ErrEmptyTopic
	}
	if p.QoS > 2 {
		return nil, ErrInvalidQoS
	}
	if p.QoS > 0 && p.MessageID == 0 {
		return nil, ErrMissingMessageID
	}

	pp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pp.Qos = p.QoS
	pp.Dup = p.Dup
	pp.Retain = p.Retain
	pp.TopicName = p.Topic
	pp.MessageID = p.MessageID
	pp.Payload = p.Payload
	return encode(pp)
}

// Puback builds a PUBACK frame.
func Puback(messageID uint16) Frame {
	pp := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
	pp.MessageID = messageID
	return mustEncode(pp)
}

// SameExceptDup reports whether a and b are PUBLISH frames which differ in
// nothing but the duplicate flag.
func SameExceptDup(a, b Frame) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	if a.Type() != packets.Publish || b.Type() != packets.Publish {
		return false
	}
	if a[0]|dupFlag != b[0]|dupFlag {
		return false
	}
	return bytes.Equal(a[1:], b[1:])
}

func encode(p packets.ControlPacket) (Frame, error) {
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil, fmt.Errorf("mqttframe: encode %s: %w", p.String(), err)
	}
	return buf.Bytes(), nil
}

// mustEncode is for fixed-size acknowledgements, which cannot fail to encode.
func mustEncode(p packets.ControlPacket) Frame {
	f, err := encode(p)
	if err != nil {
		panic(err)
	}
	return f
}
