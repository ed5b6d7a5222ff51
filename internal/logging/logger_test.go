package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/sernet/internal/ser"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtTrace bool
	}{
		{"info filters debug", "info", false, false},
		{"debug passes debug", "debug", true, false},
		{"trace passes everything", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.logAtDebug)
			}

			logger.Log(context.Background(), LevelTrace, "trace message")
			if got := strings.Contains(buf.String(), "trace message"); got != tt.logAtTrace {
				t.Errorf("trace logged = %v, want %v", got, tt.logAtTrace)
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "hello")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE label, got %q", buf.String())
	}
}

func TestNewEventLogger_InfoReturnsNil(t *testing.T) {
	dir := t.TempDir()
	if el := NewEventLogger(dir, "info"); el != nil {
		t.Error("expected nil EventLogger at info level")
	}
	if _, err := os.Stat(filepath.Join(dir, EventsFile)); !os.IsNotExist(err) {
		t.Error("events file should not be created at info level")
	}
}

func TestEventLogger_NilSafe(t *testing.T) {
	var el *EventLogger
	el.Log("run_started", map[string]any{"x": 1})
	el.ObserveStep(ser.StepStats{Step: 1})
	el.Close()
}

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()

	var events []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestEventLogger_DebugSkipsSteps(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLogger(dir, "debug")
	if el == nil {
		t.Fatal("expected EventLogger at debug level")
	}
	fields := map[string]any{"nodes": 66}
	el.Log("run_started", fields)
	el.ObserveStep(ser.StepStats{Step: 3, Counts: ser.Counts{Excited: 2}})
	el.Close()

	if _, ok := fields["time"]; ok {
		t.Error("Log must not mutate the caller's map")
	}

	events := readEvents(t, filepath.Join(dir, EventsFile))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0]["event"] != "run_started" || events[0]["nodes"] != float64(66) {
		t.Errorf("event = %v", events[0])
	}
	if _, ok := events[0]["time"]; !ok {
		t.Error("event missing time")
	}
}

func TestEventLogger_TraceRecordsSteps(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLogger(dir, "trace")
	el.ObserveStep(ser.StepStats{Step: 4, Recorded: true, Counts: ser.Counts{Quiescent: 5, Excited: 2, Refractory: 1}})
	el.Close()

	events := readEvents(t, filepath.Join(dir, EventsFile))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev["event"] != "step" || ev["step"] != float64(4) || ev["excited"] != float64(2) || ev["recorded"] != true {
		t.Errorf("step event = %v", ev)
	}
}
