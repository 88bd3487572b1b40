package commands

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/koyi0000/mosquitto-cluster/pkg/log"
)

func exportEvents(t *testing.T) []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	frame := publishFrame(t, false)
	return []log.Event{
		{
			Timestamp:    ts,
			RunID:        "run-1",
			ConnectionID: "abc12345",
			Phase:        "initial",
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			Frame:        &log.FrameEvent{Size: len(frame), Type: "PUBLISH", Data: frame, Label: "publish"},
		},
		{
			Timestamp: ts.Add(time.Millisecond),
			RunID:     "run-1",
			Layer:     log.LayerScenario,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity: log.StateEntityScenario, OldState: "PHASE1_RUNNING", NewState: "AWAITING_RECONNECT",
			},
		},
		{
			Timestamp: ts.Add(2 * time.Millisecond),
			RunID:     "run-1",
			Phase:     "post-reconnect",
			Layer:     log.LayerScenario,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Message: "mid differs", Kind: "FrameMismatch"},
		},
	}
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, exportEvents(t))
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var first log.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if first.Frame == nil || first.Frame.Type != "PUBLISH" || first.Phase != "initial" {
		t.Errorf("unexpected first event: %+v", first)
	}
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, exportEvents(t))
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(records))
	}
	if records[0][0] != "timestamp" || records[0][3] != "phase" {
		t.Errorf("unexpected header: %v", records[0])
	}

	row := records[1]
	if row[3] != "initial" || row[4] != "IN" || row[7] != "PUBLISH" || row[8] != "publish" {
		t.Errorf("unexpected frame row: %v", row)
	}
	if !strings.Contains(row[10], "bridge/disconnect/test") {
		t.Errorf("expected decoded packet in detail column, got %q", row[10])
	}
	if records[2][7] != "state" || !strings.Contains(records[2][10], "PHASE1_RUNNING->AWAITING_RECONNECT") {
		t.Errorf("unexpected state row: %v", records[2])
	}
	if records[3][7] != "error" || records[3][8] != "FrameMismatch" {
		t.Errorf("unexpected error row: %v", records[3])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, exportEvents(t))
	err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out.xml"))
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}
