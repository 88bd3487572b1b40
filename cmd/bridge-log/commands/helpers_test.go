package commands

import (
	"path/filepath"
	"testing"

	"github.com/koyi0000/mosquitto-cluster/pkg/log"
	"github.com/koyi0000/mosquitto-cluster/pkg/mqttframe"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.blog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func publishFrame(t *testing.T, dup bool) []byte {
	t.Helper()
	f, err := mqttframe.Publish(mqttframe.PublishParams{
		Topic:     "bridge/disconnect/test",
		QoS:       1,
		MessageID: 2,
		Dup:       dup,
		Payload:   []byte("disconnect-message"),
	})
	if err != nil {
		t.Fatalf("build publish: %v", err)
	}
	return f
}
