package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("quiet")
	log.Warn("loud", String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "loud") || !strings.Contains(out, "v") {
		t.Fatalf("warn line missing: %q", out)
	}
	if log.Enabled(LevelDebug) || !log.Enabled(LevelError) {
		t.Fatalf("Enabled does not match level")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	log.Error("ignored", Err(errors.New("x")))
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
}

func TestServiceWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.With(String("comp", "dispatch")).Debug("job done", Int("attempts", 2))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, b)
	}
	if rec["message"] != "job done" || rec["comp"] != "dispatch" || rec["attempts"] != float64(2) {
		t.Fatalf("record = %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"trace", "DEBUG", " info ", "warning", "error"} {
		if _, ok := ParseLevel(s); !ok {
			t.Fatalf("ParseLevel(%q) rejected", s)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatal("ParseLevel accepted an unknown level")
	}
}

func TestNotificationFieldsSkipEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.log")
	svc, log := New(Config{File: FileConfig{Enabled: true, Path: path}})
	log.Info("sent", Job("j-1"), Item(""), Platform("slack"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, b)
	}
	if rec["job"] != "j-1" || rec["platform"] != "slack" {
		t.Fatalf("record = %v", rec)
	}
	if _, ok := rec["item"]; ok {
		t.Fatalf("empty item should be omitted: %v", rec)
	}
}

func TestApplyChangesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.log")
	svc, log := New(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()
	if log.Enabled(LevelDebug) {
		t.Fatal("debug enabled at error level")
	}
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	if !log.Enabled(LevelDebug) {
		t.Fatal("Apply did not reach an existing Logger")
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"", "console", " JSON "} {
		if !ValidFormat(f) {
			t.Fatalf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("logfmt") {
		t.Fatal("ValidFormat accepted logfmt")
	}
}
