package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetupEmitsRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("rfqd", "test", Options{Level: "debug", Output: &buf})
	logger.Debug("hello", slog.String("id", "7"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("expected key %q in %v", key, line)
		}
	}
	if line["severity"] != "DEBUG" || line["service"] != "rfqd" || line["id"] != "7" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestSetupRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("rfqd", "", Options{Level: "warn", Output: &buf})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info line to be filtered, got %q", buf.String())
	}
}

func TestSetupMasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("rfqd", "", Options{Output: &buf})
	logger.Info("permit", slog.String("signature", "0xdeadbeef"), slog.String("id", "3"), MaskToken("token", "eyJhbGciOiJIUzI1NiJ9.payload"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["signature"] != RedactedValue {
		t.Fatalf("signature leaked: %v", line["signature"])
	}
	if line["id"] != "3" {
		t.Fatalf("plain keys must pass through, got %v", line["id"])
	}
	if line["token"] != "eyJhbG..."+RedactedValue {
		t.Fatalf("unexpected token mask %v", line["token"])
	}
}

func TestMaskToken(t *testing.T) {
	if attr := MaskToken("token", "short"); attr.Value.String() != RedactedValue {
		t.Fatalf("short tokens are fully masked, got %v", attr)
	}
	if attr := MaskToken("token", "  "); attr.Value.String() != "" {
		t.Fatalf("empty tokens pass through, got %v", attr)
	}
	if !IsSensitive(" Authorization ") || IsSensitive("route") {
		t.Fatalf("unexpected sensitivity classification")
	}
}
