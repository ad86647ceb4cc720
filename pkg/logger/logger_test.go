package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"production", *ProductionConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "invoicer.log")
	log, err := NewLogger(&Config{Level: InfoLevel, Format: JSONFormat, Output: FileOutput, File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.WithComponent("batch").WithField("source_file", "a.jpg").Info("Image processed")
	log.Debug("filtered out")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at info level, got %d", len(lines))
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "batch" || entry["source_file"] != "a.jpg" || entry["msg"] != "Image processed" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestOrGlobal(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	SetGlobalLogger(NewNopLogger())
	if OrGlobal(nil, "x") == nil {
		t.Error("expected a logger derived from the global one")
	}
	if OrGlobal(NewNopLogger(), "x") == nil {
		t.Error("expected a component logger")
	}
}

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker(NewNopLogger(), "extract", time.Hour)
	p.Start(3)
	p.Step("a.jpg")
	p.Step("b.jpg")
	if p.Current() != 2 {
		t.Errorf("expected 2 steps, got %d", p.Current())
	}
	p.Step("c.jpg")
	p.Finish()

	p.Start(1)
	if p.Current() != 0 {
		t.Error("Start should reset the counter")
	}
}

func TestBarProgress(t *testing.T) {
	var out bytes.Buffer
	bar := NewBarProgress(&out, "Extracting")

	bar.Step("ignored before start")
	bar.Start(2)
	bar.Step("a.jpg")
	bar.Step("b.jpg")
	bar.Finish()

	if out.Len() == 0 {
		t.Error("expected the bar to render")
	}
}
