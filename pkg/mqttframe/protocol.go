package mqttframe

import (
	"fmt"
	"strconv"
	"strings"
)

// BridgeBit is OR-ed into the protocol level by bridges which try the
// private bridge extension of the remote broker.
const BridgeBit = 0x80

// Protocol levels.
const (
	Level31  = 3
	Level311 = 4
)

// ParseProtocolLevel resolves a protocol tag to the CONNECT protocol level
// byte. Tags are "3.1", "3.1.1", either with a "+bridge" suffix, or a
// decimal level such as "132".
func ParseProtocolLevel(tag string) (byte, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	base, bridge := strings.CutSuffix(tag, "+bridge")

	var level byte
	switch base {
	case "3.1", "mqisdp":
		level = Level31
	case "3.1.1", "mqtt", "":
		level = Level311
	default:
		n, err := strconv.ParseUint(base, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("mqttframe: unknown protocol %q", tag)
		}
		level = byte(n)
	}
	if bridge {
		level |= BridgeBit
	}
	if l := level &^ BridgeBit; l != Level31 && l != Level311 {
		return 0, fmt.Errorf("mqttframe: unsupported protocol level %d", l)
	}
	return level, nil
}

func protocolName(level byte) string {
	if level&^BridgeBit == Level31 {
		return "MQIsdp"
	}
	return "MQTT"
}
