package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	SetStream(&buf)
	defer SetStream(nil)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	l := Get(CategoryStore)
	l.Debug("dropped debug")
	l.Info("dropped info")
	l.Warn("kept warn")
	l.Error("kept error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d: %q", len(lines), buf.String())
	}

	var e Entry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}
	if e.Level != "warn" || e.Component != "store" || e.Message != "kept warn" {
		t.Errorf("unexpected record: %+v", e)
	}
	if e.Timestamp == "" {
		t.Error("record missing timestamp")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]int{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestSuppressCounters(t *testing.T) {
	ResetSuppressed()
	Suppress("reinforcer.update", errors.New("no such table: learnings"))
	Suppress("reinforcer.update", errors.New("no such table: learnings"))
	Suppress("abtest.record", errors.New("no such table: ab_tests"))
	Suppress("abtest.record", nil) // nil errors are not counted

	counts := SuppressedCounts()
	if len(counts) != 2 {
		t.Fatalf("expected 2 counter keys, got %d", len(counts))
	}
	if counts[0].Context != "abtest.record" || counts[0].Count != 1 {
		t.Errorf("unexpected first counter: %+v", counts[0])
	}
	if counts[1].Context != "reinforcer.update" || counts[1].Count != 2 {
		t.Errorf("unexpected second counter: %+v", counts[1])
	}
}
