package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewAttachesDeviceID(t *testing.T) {
	var buf bytes.Buffer
	logger := New("10000001", Options{Writer: &buf})
	logger.Info().Msg("hello")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("Unmarshal: %v, body=%s", err, buf.String())
	}
	if fields["device_id"] != "10000001" {
		t.Fatalf("device_id = %v, want 10000001", fields["device_id"])
	}
	if fields["message"] != "hello" {
		t.Fatalf("message = %v, want hello", fields["message"])
	}
}

func TestTwoLoggersAreIndependent(t *testing.T) {
	var bufA, bufB bytes.Buffer
	a := New("10000001", Options{Writer: &bufA})
	b := New("10000002", Options{Writer: &bufB})

	a.Info().Msg("from a")
	if bufB.Len() != 0 {
		t.Fatal("logger b must not receive logger a's output")
	}
	if !strings.Contains(bufA.String(), "10000001") {
		t.Fatal("logger a's own output missing its device id")
	}
	_ = b
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New("10000001", Options{Writer: &buf, Level: "not-a-level"})
	logger.Debug().Msg("should be suppressed")
	if buf.Len() != 0 {
		t.Fatal("debug message should be suppressed at the info fallback level")
	}
	logger.Info().Msg("should appear")
	if buf.Len() == 0 {
		t.Fatal("info message should have been written")
	}
}
