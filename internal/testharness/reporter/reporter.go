// Package reporter formats scenario verdicts.
package reporter

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/koyi0000/mosquitto-cluster/internal/testharness/runner"
)

// Reporter formats and outputs verdicts.
type Reporter interface {
	ReportVerdict(v *runner.Verdict)
}

// New returns the reporter for format: "text", "json" or "junit".
func New(format string, w io.Writer, verbose bool) (Reporter, error) {
	switch format {
	case "", "text":
		return NewTextReporter(w, verbose), nil
	case "json":
		return NewJSONReporter(w, true), nil
	case "junit":
		return NewJUnitReporter(w), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

func status(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{
		writer:  w,
		verbose: verbose,
	}
}

// ReportVerdict reports a verdict in text format. Steps are listed for
// failing runs and, when verbose, for passing ones.
func (r *TextReporter) ReportVerdict(v *runner.Verdict) {
	fmt.Fprintf(r.writer, "[%s] %s - %s (%s)\n",
		status(v.Passed), v.ScenarioID, v.Name, v.Duration.Round(time.Millisecond))

	if r.verbose || !v.Passed {
		for _, pr := range v.Phases {
			fmt.Fprintf(r.writer, "  [%s] Phase %s (%s, %s)\n",
				status(pr.Passed), pr.Phase, pr.RemoteAddr, pr.Duration.Round(time.Millisecond))
			for _, sr := range pr.StepResults {
				fmt.Fprintf(r.writer, "    [%s] Step %d: %s %s (%s)\n",
					status(sr.Passed), sr.Index+1, sr.Step.Kind, sr.Step.Label, sr.Duration.Round(time.Millisecond))
			}
		}
	}

	if v.Passed {
		return
	}

	fmt.Fprintf(r.writer, "\n  Failure:  %s\n", v.Kind)
	if v.Phase != "" {
		fmt.Fprintf(r.writer, "  Phase:    %s\n", v.Phase)
	}
	fmt.Fprintf(r.writer, "  Step:     %s\n", v.Label)
	if v.Error != nil {
		fmt.Fprintf(r.writer, "  Error:    %v\n", v.Error)
	}
	if v.Expected != nil {
		fmt.Fprintf(r.writer, "  Expected: %s\n            0x%s\n", v.ExpectedDescription, hex.EncodeToString(v.Expected))
		fmt.Fprintf(r.writer, "  Received: %s\n            0x%s\n", v.ReceivedDescription, hex.EncodeToString(v.Received))
	}
	if d := strings.TrimRight(v.Diagnostics, "\n"); d != "" {
		fmt.Fprintf(r.writer, "\n--- broker stderr ---\n%s\n---\n", d)
	}
}

// JSONReporter outputs JSON-formatted reports.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: w,
		pretty: pretty,
	}
}

// JSONVerdict is the JSON representation of a verdict.
type JSONVerdict struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	RunID       string            `json:"run_id"`
	Status      string            `json:"status"`
	Duration    string            `json:"duration"`
	Kind        string            `json:"kind,omitempty"`
	Phase       string            `json:"phase,omitempty"`
	Label       string            `json:"label,omitempty"`
	Error       string            `json:"error,omitempty"`
	Expected    *JSONFrame        `json:"expected,omitempty"`
	Received    *JSONFrame        `json:"received,omitempty"`
	Phases      []JSONPhaseResult `json:"phases"`
	Diagnostics string            `json:"diagnostics,omitempty"`
}

// JSONFrame is a frame in hex with its rendering.
type JSONFrame struct {
	Hex         string `json:"hex"`
	Description string `json:"description"`
}

// JSONPhaseResult is the JSON representation of a phase.
type JSONPhaseResult struct {
	Phase        string           `json:"phase"`
	ConnectionID string           `json:"connection_id"`
	RemoteAddr   string           `json:"remote_addr,omitempty"`
	Status       string           `json:"status"`
	Duration     string           `json:"duration"`
	Steps        []JSONStepResult `json:"steps"`
}

// JSONStepResult is the JSON representation of a step result.
type JSONStepResult struct {
	Index    int    `json:"index"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// ReportVerdict reports a verdict in JSON format.
func (r *JSONReporter) ReportVerdict(v *runner.Verdict) {
	r.writeJSON(ToJSON(v))
}

// ToJSON converts a verdict to its JSON representation.
func ToJSON(v *runner.Verdict) JSONVerdict {
	jv := JSONVerdict{
		ID:       v.ScenarioID,
		Name:     v.Name,
		RunID:    v.RunID,
		Duration: v.Duration.Round(time.Millisecond).String(),
		Phases:   make([]JSONPhaseResult, 0, len(v.Phases)),
	}
	if v.Passed {
		jv.Status = "passed"
	} else {
		jv.Status = "failed"
		jv.Kind = v.Kind.String()
		jv.Phase = string(v.Phase)
		jv.Label = v.Label
		jv.Diagnostics = v.Diagnostics
	}
	if v.Error != nil {
		jv.Error = v.Error.Error()
	}
	if v.Expected != nil {
		jv.Expected = &JSONFrame{Hex: hex.EncodeToString(v.Expected), Description: v.ExpectedDescription}
		jv.Received = &JSONFrame{Hex: hex.EncodeToString(v.Received), Description: v.ReceivedDescription}
	}

	for _, pr := range v.Phases {
		jp := JSONPhaseResult{
			Phase:        string(pr.Phase),
			ConnectionID: pr.ConnectionID,
			RemoteAddr:   pr.RemoteAddr,
			Status:       "passed",
			Duration:     pr.Duration.Round(time.Millisecond).String(),
		}
		if !pr.Passed {
			jp.Status = "failed"
		}
		for _, sr := range pr.StepResults {
			js := JSONStepResult{
				Index:    sr.Index,
				Kind:     sr.Step.Kind.String(),
				Label:    sr.Step.Label,
				Status:   "passed",
				Duration: sr.Duration.Round(time.Millisecond).String(),
			}
			if !sr.Passed {
				js.Status = "failed"
			}
			if sr.Error != nil {
				js.Error = sr.Error.Error()
			}
			jp.Steps = append(jp.Steps, js)
		}
		jv.Phases = append(jv.Phases, jp)
	}
	return jv
}

func (r *JSONReporter) writeJSON(v any) {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`, err)
		return
	}

	fmt.Fprintln(r.writer, string(data))
}

// JUnitReporter outputs JUnit XML format for CI integration. Each phase is
// a test case; a run that failed before any phase gets a "setup" case.
type JUnitReporter struct {
	writer io.Writer
}

// NewJUnitReporter creates a new JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

// ReportVerdict reports a verdict in JUnit XML format.
func (r *JUnitReporter) ReportVerdict(v *runner.Verdict) {
	type testcase struct {
		name     string
		duration time.Duration
		failed   bool
	}

	var cases []testcase
	for _, pr := range v.Phases {
		cases = append(cases, testcase{name: string(pr.Phase), duration: pr.Duration, failed: !pr.Passed})
	}
	// Failures outside a phase script: setup, accept and reconnect.
	if !v.Passed && (len(cases) == 0 || !cases[len(cases)-1].failed) {
		name := v.Label
		if v.Phase != "" {
			name = string(v.Phase) + "/" + v.Label
		}
		cases = append(cases, testcase{name: name, failed: true})
	}

	failures := 0
	for _, c := range cases {
		if c.failed {
			failures++
		}
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n")

	fmt.Fprintf(&b, `<testsuite name="%s" tests="%d" failures="%d" time="%.3f">`,
		escapeXML(v.ScenarioID), len(cases), failures, v.Duration.Seconds())
	b.WriteString("\n")

	for _, c := range cases {
		fmt.Fprintf(&b, `  <testcase name="%s" classname="%s" time="%.3f">`,
			escapeXML(c.name), escapeXML(v.ScenarioID), c.duration.Seconds())
		b.WriteString("\n")

		if c.failed {
			msg := v.Kind.String()
			if v.Error != nil {
				msg = v.Error.Error()
			}
			fmt.Fprintf(&b, `    <failure message="%s" type="%s">`, escapeXML(msg), v.Kind)
			b.WriteString("\n")
			b.WriteString("      <![CDATA[")
			fmt.Fprintf(&b, "Step: %s\n", v.Label)
			if v.Expected != nil {
				fmt.Fprintf(&b, "Expected: %s\nReceived: %s\n", v.ExpectedDescription, v.ReceivedDescription)
			}
			if v.Diagnostics != "" {
				fmt.Fprintf(&b, "\n%s", strings.ReplaceAll(v.Diagnostics, "]]>", "]]]]><![CDATA[>"))
			}
			b.WriteString("]]>\n")
			b.WriteString("    </failure>\n")
		}

		b.WriteString("  </testcase>\n")
	}

	b.WriteString("</testsuite>\n")

	fmt.Fprint(r.writer, b.String())
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}

var (
	_ Reporter = (*TextReporter)(nil)
	_ Reporter = (*JSONReporter)(nil)
	_ Reporter = (*JUnitReporter)(nil)
)
