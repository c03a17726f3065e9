package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"wpplink/internal/config"
)

func TestFanoutWriter_ContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	w := newFanoutWriter(errorWriter{err: errors.New("broken stdout")}, &dst)

	n, err := w.Write([]byte("test"))
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if n != len("test") {
		t.Fatalf("unexpected bytes written: got %d, want %d", n, len("test"))
	}
	if got := dst.String(); got != "test" {
		t.Fatalf("unexpected destination contents: got %q", got)
	}
}

func TestManagerConfigure_LogFileStillReceivesLogsWhenConsoleFails(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	logPath := filepath.Join(t.TempDir(), "app.log")
	m := NewManager()
	m.out = errorWriter{err: errors.New("broken stderr")}
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	slog.Info("file must receive this message")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	cleanLogPath := filepath.Clean(logPath)
	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(cleanLogPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte("file must receive this message")) {
		t.Fatalf("log file does not contain test message, contents: %q", string(raw))
	}
}

func TestManagerRendersBytesAsHex(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	var out bytes.Buffer
	m := NewManager()
	m.out = &out
	if err := m.Configure(config.LoggingConfig{Level: "debug"}, ""); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	m.Logger("session").Debug("rx", "raw", []byte{0x01, 0x01, 0x01, 0x00, 0x00})

	got := out.String()
	if !bytes.Contains([]byte(got), []byte("raw=0101010000")) {
		t.Fatalf("expected hex rendering, got %q", got)
	}
	if !bytes.Contains([]byte(got), []byte("component=session")) {
		t.Fatalf("expected component attribute, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    slog.Level
		wantErr bool
	}{
		{raw: "debug", want: slog.LevelDebug},
		{raw: " INFO ", want: slog.LevelInfo},
		{raw: "", want: slog.LevelInfo},
		{raw: "warning", want: slog.LevelWarn},
		{raw: "error", want: slog.LevelError},
		{raw: "trace", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseLevel(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.raw, err)
		}
		if got.Level() != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.raw, tc.want, got.Level())
		}
	}
}

type errorWriter struct {
	err error
}

func (w errorWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}

func TestManagerWritesJSONRecords(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	var out bytes.Buffer
	m := NewManager()
	m.out = &out
	if err := m.Configure(config.LoggingConfig{Level: "info", Format: "JSON"}, ""); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	m.Logger("transport").Info("connected", "raw", []byte{0xde, 0xad})
	m.Logger("transport").Debug("filtered out")

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", out.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["msg"] != "connected" || rec["component"] != "transport" || rec["raw"] != "dead" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestManagerConfigureRejectsUnknownFormat(t *testing.T) {
	m := NewManager()
	if err := m.Configure(config.LoggingConfig{Format: "xml"}, ""); err == nil {
		t.Fatalf("expected an unknown format to be rejected")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		raw     string
		want    format
		wantErr bool
	}{
		{raw: "", want: formatText},
		{raw: "text", want: formatText},
		{raw: " Json ", want: formatJSON},
		{raw: "logfmt", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseFormat(tc.raw)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%q: unexpected error state %v", tc.raw, err)
		}
		if err == nil && got != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.raw, tc.want, got)
		}
	}
}
