package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info 不应在 warn 级别输出: %s", buf.String())
	}

	logger.Warn().Str("component", "parser").Msg("visible")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("日志应为 JSON: %v", err)
	}
	if entry["app"] != "appleswatch" || entry["component"] != "parser" || entry["message"] != "visible" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "bogus"}, &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) || bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
