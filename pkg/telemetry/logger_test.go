package telemetry

import (
	"path/filepath"
	"testing"
)

func TestNewLoggerZeroValueOutput(t *testing.T) {
	log, err := NewLogger(LoggingConfig{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("NewLogger with empty output: %v", err)
	}
	if log == nil {
		t.Fatal("expected a logger")
	}
}

func TestNewLoggerOutputTargets(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", filepath.Join(t.TempDir(), "forgeplane.log")} {
		if _, err := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: output}); err != nil {
			t.Fatalf("NewLogger output %q: %v", output, err)
		}
	}
}

func TestNewLoggerBadFilePath(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "info", Output: filepath.Join(t.TempDir(), "missing", "forgeplane.log")}); err == nil {
		t.Fatal("expected an error for an unwritable file path")
	}
}
