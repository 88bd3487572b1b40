// Package transport carries raw MQTT control packets between the harness
// and a bridge.
//
// It provides the listening endpoint the bridge connects to and a Framer
// that reads and writes whole control packets on an accepted connection,
// mirroring every frame to a protocol logger:
//
//	┌────────────────────────────────┐
//	│    Scripted exchange engine    │
//	├────────────────────────────────┤
//	│  Framer (one packet per read)  │
//	├────────────────────────────────┤
//	│  Listener (SO_REUSEADDR, TCP)  │
//	└────────────────────────────────┘
//
// The packet boundary logic is injected as a FrameCodec so the transport
// never interprets packet contents.
package transport
