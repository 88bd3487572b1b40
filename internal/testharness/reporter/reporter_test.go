package reporter_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/engine"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/reporter"
	"github.com/koyi0000/mosquitto-cluster/internal/testharness/runner"
)

func phase(name engine.Phase, passed bool) *engine.PhaseResult {
	return &engine.PhaseResult{
		Phase:        name,
		ConnectionID: "3f0c9a4e-0000-4000-8000-000000000001",
		RemoteAddr:   "127.0.0.1:50312",
		Passed:       passed,
		Duration:     120 * time.Millisecond,
		StepResults: []*engine.StepResult{
			{Step: engine.Expect("connect", []byte{0x10}, 0), Index: 0, Passed: true, Duration: 10 * time.Millisecond},
			{Step: engine.Send("connack", []byte{0x20}), Index: 1, Passed: passed, Duration: time.Millisecond},
		},
	}
}

func passingVerdict() *runner.Verdict {
	return &runner.Verdict{
		ScenarioID: "bridge-br2b-disconnect-qos1",
		Name:       "Bridge redelivery",
		RunID:      "run-1",
		Passed:     true,
		Phases:     []*engine.PhaseResult{phase(engine.PhaseInitial, true), phase(engine.PhasePostReconnect, true)},
		Duration:   2 * time.Second,
	}
}

func failingVerdict() *runner.Verdict {
	return &runner.Verdict{
		ScenarioID:          "bridge-br2b-disconnect-qos1",
		Name:                "Bridge redelivery",
		RunID:               "run-2",
		Kind:                engine.FrameMismatch,
		Phase:               engine.PhasePostReconnect,
		Label:               "publish-dup",
		Error:               errors.New("publish-dup: expected PUBLISH <dup> received PUBLISH <mid 4>"),
		Expected:            []byte{0x3a, 0x02, 0x00, 0x02},
		Received:            []byte{0x3a, 0x02, 0x00, 0x04},
		ExpectedDescription: "PUBLISH: dup: true qos: 1 MessageID: 2",
		ReceivedDescription: "PUBLISH: dup: true qos: 1 MessageID: 4",
		Phases:              []*engine.PhaseResult{phase(engine.PhaseInitial, true), phase(engine.PhasePostReconnect, false)},
		Diagnostics:         "1700000000: mosquitto version 2.0.18 starting\n",
		Duration:            3 * time.Second,
	}
}

func TestTextReporterPass(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewTextReporter(&buf, false).ReportVerdict(passingVerdict())

	out := buf.String()
	if !strings.HasPrefix(out, "[PASS] bridge-br2b-disconnect-qos1") {
		t.Errorf("unexpected header: %q", out)
	}
	if strings.Contains(out, "Step 1") {
		t.Error("non-verbose pass should not list steps")
	}
}

func TestTextReporterVerboseListsSteps(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewTextReporter(&buf, true).ReportVerdict(passingVerdict())

	out := buf.String()
	for _, want := range []string{"Phase initial", "Phase post-reconnect", "Step 1: expect connect", "Step 2: send connack"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextReporterFailShowsDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewTextReporter(&buf, false).ReportVerdict(failingVerdict())

	out := buf.String()
	for _, want := range []string{
		"[FAIL]",
		"Failure:  FrameMismatch",
		"Phase:    post-reconnect",
		"Step:     publish-dup",
		"0x3a020002",
		"0x3a020004",
		"--- broker stderr ---",
		"mosquitto version 2.0.18 starting",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJSONReporter(&buf, false).ReportVerdict(failingVerdict())

	var got reporter.JSONVerdict
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got.Status != "failed" || got.Kind != "FrameMismatch" || got.Label != "publish-dup" {
		t.Errorf("unexpected verdict: %+v", got)
	}
	if got.Expected == nil || got.Expected.Hex != "3a020002" {
		t.Errorf("expected frame = %+v", got.Expected)
	}
	if len(got.Phases) != 2 || got.Phases[1].Status != "failed" || len(got.Phases[1].Steps) != 2 {
		t.Errorf("phases = %+v", got.Phases)
	}
}

func TestJSONReporterPassOmitsFailureFields(t *testing.T) {
	jv := reporter.ToJSON(passingVerdict())
	if jv.Status != "passed" || jv.Kind != "" || jv.Diagnostics != "" || jv.Expected != nil {
		t.Errorf("unexpected fields on pass: %+v", jv)
	}
}

func TestJUnitReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJUnitReporter(&buf).ReportVerdict(failingVerdict())

	out := buf.String()
	for _, want := range []string{
		`<testsuite name="bridge-br2b-disconnect-qos1" tests="2" failures="1"`,
		`<testcase name="initial"`,
		`<failure message="publish-dup: expected PUBLISH &lt;dup&gt; received PUBLISH &lt;mid 4&gt;" type="FrameMismatch">`,
		"<![CDATA[Step: publish-dup",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestJUnitReporterSetupFailure(t *testing.T) {
	v := &runner.Verdict{
		ScenarioID: "s",
		Kind:       engine.ConnectionTimeout,
		Phase:      engine.PhaseInitial,
		Label:      "accept",
		Error:      errors.New("accept: accept timed out after 40s"),
	}

	var buf bytes.Buffer
	reporter.NewJUnitReporter(&buf).ReportVerdict(v)

	out := buf.String()
	if !strings.Contains(out, `tests="1" failures="1"`) || !strings.Contains(out, `<testcase name="initial/accept"`) {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"", "text", "json", "junit"} {
		if _, err := reporter.New(format, &bytes.Buffer{}, false); err != nil {
			t.Errorf("New(%q): %v", format, err)
		}
	}
	if _, err := reporter.New("xml", &bytes.Buffer{}, false); err == nil {
		t.Error("expected error for unknown format")
	}
}
