package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"desk-assistant-go/internal/config"
)

func TestFromConfig(t *testing.T) {
	base := config.LoggingConfig{Level: "info", FilePath: "x.log", MaxSize: 5}

	tests := []struct {
		name        string
		verbose     bool
		quiet       bool
		wantLevel   string
		wantConsole bool
	}{
		{"plain", false, false, "info", true},
		{"verbose", true, false, "debug", true},
		{"quiet", false, true, "error", false},
		{"quiet wins", true, true, "error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := FromConfig(base, tt.verbose, tt.quiet)
			if lc.Level != tt.wantLevel || lc.Console != tt.wantConsole {
				t.Errorf("got level %q console %v", lc.Level, lc.Console)
			}
			if lc.FilePath != "x.log" || lc.MaxSize != 5 {
				t.Errorf("file settings not carried: %+v", lc)
			}
		})
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	l, err := NewLogger(LoggerConfig{Level: "debug", FilePath: path, Console: true, ConsoleWriter: &console})
	if err != nil {
		t.Fatal(err)
	}
	WithJob(l, "j1").WithField("tier", "stream").Info("tier accepted")

	var entry map[string]interface{}
	if err := json.Unmarshal(console.Bytes(), &entry); err != nil {
		t.Fatalf("console output is not JSON: %q", console.String())
	}
	for key, want := range map[string]string{"message": "tier accepted", "level": "info", "job": "j1", "tier": "stream"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}

	data, err := os.ReadFile(path)
	if err != nil || !bytes.Contains(data, []byte("tier accepted")) {
		t.Errorf("log file: %q, %v", data, err)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if l := MustLogger(LoggerConfig{Level: "loud", ConsoleWriter: &bytes.Buffer{}}); l == nil {
		t.Error("MustLogger returned nil")
	}
}
