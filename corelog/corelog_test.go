package corelog

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(LevelWarn, &buf)

	Debugf(w, "cat", "debug message")
	if buf.Len() != 0 {
		t.Fatalf("expected debug message to be suppressed at LevelWarn, got %q", buf.String())
	}

	Warnf(w, "cat", nil, "warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Fatalf("expected warn message to be logged, got %q", buf.String())
	}
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	var l Logger = NoOp{}
	if l.IsEnabled(LevelError) {
		t.Fatalf("expected NoOp to report every level disabled")
	}
	l.Log(Entry{Level: LevelError, Message: "should be discarded"})
}
