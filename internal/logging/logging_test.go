package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestComponentWritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "habitsync.log")

	factory, err := NewFactory(Options{File: logFile, Quiet: true})
	if err != nil {
		t.Fatalf("NewFactory() failed: %v", err)
	}

	logger := factory.Component("engine")
	logger.Println("hello from the engine")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[engine] ") {
		t.Errorf("log line missing component prefix: %q", data)
	}
	if !strings.Contains(string(data), "hello from the engine") {
		t.Errorf("log line missing message: %q", data)
	}
}

func TestQuietWithoutFileDiscards(t *testing.T) {
	factory, err := NewFactory(Options{Quiet: true})
	if err != nil {
		t.Fatalf("NewFactory() failed: %v", err)
	}
	// Must not panic or write anywhere.
	factory.Component("scheduler").Println("dropped")
}
