package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/koyi0000/mosquitto-cluster/pkg/log"
	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "run_id", "connection_id", "phase", "direction", "layer", "category", "type", "label", "size", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType := "unknown"
		var direction, label, size, detail string
		switch {
		case event.Frame != nil:
			eventType = event.Frame.Type
			direction = event.Direction.String()
			label = event.Frame.Label
			size = strconv.Itoa(event.Frame.Size)
			if !event.Frame.Truncated {
				detail = mqttframe.Describe(event.Frame.Data)
			}
		case event.StateChange != nil:
			eventType = "state"
			detail = event.StateChange.Entity.String() + " " + event.StateChange.OldState + "->" + event.StateChange.NewState
		case event.Error != nil:
			eventType = "error"
			label = event.Error.Kind
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.RunID,
			event.ConnectionID,
			event.Phase,
			direction,
			event.Layer.String(),
			event.Category.String(),
			eventType,
			label,
			size,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return cw.Error()
}
