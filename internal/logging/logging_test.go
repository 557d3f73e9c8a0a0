package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", "json", "stockroom")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("hello")
	_ = logger.Sync()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["service.name"] != "stockroom" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewWithWriterFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn", "console", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("loud", "json", ""); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New("info", "xml", ""); err == nil {
		t.Fatalf("expected format error")
	}
}
