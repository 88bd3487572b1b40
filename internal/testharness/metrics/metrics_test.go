package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/metrics"
)

func TestRecorder(t *testing.T) {
	r := metrics.NewRecorder()

	r.ObservePhase("initial", 1500*time.Millisecond)
	r.CountFrame("initial", "in")
	r.CountFrame("initial", "in")
	r.CountFrame("initial", "out")
	r.CountFailure("FrameMismatch")
	r.SetVerdict("bridge-br2b-disconnect-qos1", false)

	assert.Equal(t, 1.5, testutil.ToFloat64(r.PhaseDuration.WithLabelValues("initial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Frames.WithLabelValues("initial", "in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Frames.WithLabelValues("initial", "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StepFailures.WithLabelValues("FrameMismatch")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Verdict.WithLabelValues("bridge-br2b-disconnect-qos1")))

	r.SetVerdict("bridge-br2b-disconnect-qos1", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Verdict.WithLabelValues("bridge-br2b-disconnect-qos1")))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := metrics.NewRecorder(), metrics.NewRecorder()
	a.CountFailure("ConnectionTimeout")

	assert.Equal(t, 1, testutil.CollectAndCount(a.StepFailures))
	assert.Equal(t, 0, testutil.CollectAndCount(b.StepFailures))
}

func TestNilRecorder(t *testing.T) {
	var r *metrics.Recorder
	r.ObservePhase("initial", time.Second)
	r.CountFrame("initial", "in")
	r.CountFailure("x")
	r.SetVerdict("x", true)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteFile(filepath.Join(t.TempDir(), "none.prom")))
}

func TestWriteFile(t *testing.T) {
	r := metrics.NewRecorder()
	r.SetVerdict("demo", true)

	path := filepath.Join(t.TempDir(), "bridgetest.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `bridgetest_verdict{scenario="demo"} 1`), string(data))
}
