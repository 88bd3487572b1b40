package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/loader"
	"github.com/koyi0000/mosquitto-cluster/pkg/log"
)

func TestPublishArgs(t *testing.T) {
	sc := loader.Default()
	args := publishArgs(sc)

	assert.Equal(t, []string{
		"publish",
		"--host", "127.0.0.1",
		"--port", "1889",
		"--topic", "bridge/disconnect/test",
		"--payload", "disconnect-message",
		"--qos", "1",
		"--timeout", sc.Timeouts.Publisher.D().String(),
	}, args)

	sc.Message.Retain = true
	assert.Contains(t, publishArgs(sc), "--retain")
}

func TestNewPublisherUsesScenarioCommand(t *testing.T) {
	sc := loader.Default()
	sc.Publisher.Command = "mosquitto_pub"
	sc.Publisher.Args = []string{"-t", "x"}

	p, err := newPublisher(sc, nil)
	require.NoError(t, err)
	assert.Equal(t, "mosquitto_pub", p.Command)
	assert.Equal(t, []string{"-t", "x"}, p.Args)
	assert.Equal(t, sc.Timeouts.Publisher.D(), p.Timeout)
}

func TestNewPublisherDefaultsToSelf(t *testing.T) {
	p, err := newPublisher(loader.Default(), nil)
	require.NoError(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, exe, p.Command)
	assert.Equal(t, "publish", p.Args[0])
}

func TestOpenProtocolLog(t *testing.T) {
	logger := newLogger(&bytes.Buffer{}, false)

	sink, closeFn, err := openProtocolLog("", false, logger)
	require.NoError(t, err)
	assert.Nil(t, sink)
	closeFn()

	path := filepath.Join(t.TempDir(), "run.blog")
	sink, closeFn, err = openProtocolLog(path, true, logger)
	require.NoError(t, err)
	require.NotNil(t, sink)
	sink.Log(log.Event{Category: log.CategoryState, Layer: log.LayerScenario})
	closeFn()

	events, err := readAll(path)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func readAll(path string) ([]log.Event, error) {
	r, err := log.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}

// A broker that cannot be launched fails the run with a reported verdict.
func TestRunCommandBrokerLaunchFailure(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.blog")
	metricsPath := filepath.Join(dir, "run.prom")

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"run",
		"--format", "json",
		"--port", "0",
		"--broker-cmd", filepath.Join(dir, "no-such-broker"),
		"--hostname", "testhost",
		"--protocol-log", logPath,
		"--metrics-file", metricsPath,
	})

	err := cmd.Execute()
	require.ErrorIs(t, err, ErrScenarioFailed)
	assert.Equal(t, 1, ExitCode(err))

	var verdict map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &verdict))
	assert.Equal(t, "failed", verdict["status"])
	assert.Equal(t, "SubordinateProcessFailure", verdict["kind"])

	events, err := readAll(logPath)
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "bridgetest_verdict")

	errOut := &bytes.Buffer{}
	PrintError(errOut, err)
	assert.Empty(t, errOut.String(), "reported verdicts are not printed twice")
}
