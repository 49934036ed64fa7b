package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meow-stack/actiondeck/internal/config"
)

func TestNewFromConfig_NoFile(t *testing.T) {
	cfg := config.Default()
	var buf bytes.Buffer

	logger, closer, err := NewFromConfig(cfg, t.TempDir(), &buf)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	if closer != nil {
		t.Error("Expected no closer when no file configured")
	}

	logger.Warn("careful", "key", "value")
	if !strings.Contains(buf.String(), "key=value") {
		t.Errorf("output should contain key=value: %s", buf.String())
	}
}

func TestNewFromConfig_WithFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Logging.Level = config.LogLevelDebug
	cfg.Logging.Format = config.LogFormatJSON
	cfg.Logging.File = filepath.Join("nested", "deck.log")

	var buf bytes.Buffer
	logger, closer, err := NewFromConfig(cfg, dir, &buf)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	if closer == nil {
		t.Fatal("Expected closer for log file")
	}
	logger.Debug("test message", "key", "value")
	closer.Close()

	data, err := os.ReadFile(filepath.Join(dir, "nested", "deck.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "test message") {
		t.Errorf("Log file does not contain expected message: %s", data)
	}
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Writer does not contain expected message: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input config.LogLevel
		want  slog.Level
	}{
		{config.LogLevelDebug, slog.LevelDebug},
		{config.LogLevelInfo, slog.LevelInfo},
		{config.LogLevelWarn, slog.LevelWarn},
		{config.LogLevelError, slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(config.LogFormatJSON, &buf, slog.LevelInfo))

	logger.Info("test", "key", "value")

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("JSON unmarshal failed: %v (output: %s)", err, buf.String())
	}
	if result["msg"] != "test" {
		t.Errorf("msg = %v, want test", result["msg"])
	}
	if result["key"] != "value" {
		t.Errorf("key = %v, want value", result["key"])
	}
}

func TestNewForTest(t *testing.T) {
	logger := NewForTest()
	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
	logger.Info("test message")
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithStep(WithRun(logger, "build", "run-1"), "loop[0].compile", "run").Info("test")

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("JSON unmarshal failed: %v", err)
	}
	want := map[string]string{
		"action":    "build",
		"run_id":    "run-1",
		"step":      "loop[0].compile",
		"step_kind": "run",
	}
	for k, v := range want {
		if result[k] != v {
			t.Errorf("%s = %v, want %s", k, result[k], v)
		}
	}
}

func TestWithAction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithFields(WithAction(logger, "deploy"), "attempt", 2).Info("test")

	var result map[string]any
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("JSON unmarshal failed: %v", err)
	}
	if result["action"] != "deploy" {
		t.Errorf("action = %v, want deploy", result["action"])
	}
	if result["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", result["attempt"])
	}
}
