// Package log captures protocol events of a conformance run.
//
// Capture is separate from operational logging (slog): it records every
// frame the harness reads or writes, every scenario state change and every
// failure as a machine-readable event, so a failed run can be inspected
// after the fact with the bridge-log tool.
//
// # Basic Usage
//
//	// During development: mirror events to the console.
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For CI artifacts: write a capture file.
//	file, _ := log.NewFileLogger("run.blog")
//	defer file.Close()
//
//	// Both.
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), file)
//
// # Event Types
//
//   - Transport: raw MQTT frames (FrameEvent)
//   - Scenario: orchestrator and connection state (StateChangeEvent)
//   - Errors at either layer (ErrorEventData)
//
// # File Format
//
// Capture files are a sequence of CBOR-encoded events with integer keys.
package log
