// Command bridge-test checks that a broker's MQTT bridge redelivers an
// unacknowledged QoS 1 message after its connection is dropped.
//
// The harness impersonates the remote end of the bridge. It starts the
// broker under test with a bridge pointing at itself, receives the bridged
// PUBLISH, closes the connection without acknowledging it and expects the
// same message again, with DUP set and the same packet identifier, once the
// bridge has reconnected.
//
// Usage:
//
//	bridge-test run [flags]
//	bridge-test publish [flags]
//	bridge-test scenario [flags]
//
// Examples:
//
//	# Run against mosquitto from PATH on the default ports 1888/1889
//	bridge-test run
//
//	# Run a locally built broker and keep a protocol log
//	bridge-test run --broker-cmd ./src/mosquitto --protocol-log run.blog
//
//	# Emit JUnit XML for CI
//	bridge-test run --format junit > bridge.xml
//
// The exit status is 0 when the scenario passes and 1 otherwise.
package main

import (
	"os"

	"github.com/koyi0000/mosquitto-cluster/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	cli.PrintError(os.Stderr, err)
	os.Exit(cli.ExitCode(err))
}
