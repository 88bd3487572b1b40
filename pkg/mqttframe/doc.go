// Package mqttframe builds and recognizes the canonical byte sequences of
// MQTT 3.1/3.1.1 control packets.
//
// Frames are plain byte slices. The conformance harness compares what a
// bridge sends against frames built here, byte for byte, so every builder
// produces exactly one encoding for a given set of parameters:
//
//	connect, _ := mqttframe.Connect(mqttframe.ConnectParams{
//	    ClientID:      "host.bridge_sample",
//	    KeepAlive:     60,
//	    ProtocolLevel: 0x84, // 3.1.1 with the bridge bit
//	})
//
// Encoding is delegated to github.com/eclipse/paho.mqtt.golang/packets.
// ReadFrame splits a byte stream into raw frames without decoding them, and
// Describe renders a frame for diagnostics.
//
// http://docs.oasis-open.org/mqtt/mqtt/v3.1.1/os/mqtt-v3.1.1-os.html
package mqttframe
