package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) Broadcast(msgType string, payload interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, msgType)
	return nil
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if got := rb.Last(0); len(got) != 0 {
		t.Fatalf("expected empty buffer, got %v", got)
	}

	for i := 1; i <= 5; i++ {
		rb.Push(i)
	}

	got := rb.Last(0)
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Last(0) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Last(0) = %v, want %v", got, want)
		}
	}

	if tail := rb.Last(2); len(tail) != 2 || tail[0] != 4 || tail[1] != 5 {
		t.Errorf("Last(2) = %v", tail)
	}
	if rb.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rb.Len())
	}
}

func TestLogBroadcaster_Write(t *testing.T) {
	hub := &recordingHub{}
	b := NewLogBroadcaster(hub, 10)

	line := `{"level":"info","time":"2026-01-01T00:00:00Z","component":"download-monitor","cycleId":"abc","message":"Download poll cycle complete"}`
	if _, err := b.Write([]byte(line)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := b.Write([]byte("not json")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	logs := b.GetRecentLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.Level != "info" || entry.Component != "download-monitor" || entry.Message != "Download poll cycle complete" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Fields["cycleId"] != "abc" {
		t.Errorf("expected cycleId field, got %v", entry.Fields)
	}
	if len(hub.events) != 1 || hub.events[0] != "logs:entry" {
		t.Errorf("expected one logs:entry event, got %v", hub.events)
	}
}

func TestNew_StreamingAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	log := New(Config{
		Level:           "info",
		Format:          "json",
		Path:            dir,
		EnableStreaming: true,
		BufferSize:      5,
		Output:          &console,
	})
	defer log.Close()

	hub := &recordingHub{}
	log.SetBroadcastHub(hub)

	logger := log.WithComponent("test")
	logger.Info().Str("book", "Dune").Msg("hello")

	if !strings.Contains(console.String(), `"message":"hello"`) {
		t.Errorf("expected console output, got %q", console.String())
	}

	recent := log.GetRecentLogs()
	if len(recent) != 1 || recent[0].Component != "test" {
		t.Fatalf("unexpected recent logs %+v", recent)
	}

	path := log.GetLogFilePath()
	if path != filepath.Join(dir, FileName) {
		t.Errorf("GetLogFilePath() = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("expected log file to contain entry, got %q", data)
	}
}

func TestNew_NoStreaming(t *testing.T) {
	log := New(Config{Format: "json", Output: &bytes.Buffer{}})
	log.Info().Msg("x")

	if got := log.GetRecentLogs(); len(got) != 0 {
		t.Errorf("expected no buffered logs, got %v", got)
	}
	if log.GetLogFilePath() != "" {
		t.Error("expected no log file")
	}
	log.SetBroadcastHub(&recordingHub{})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "trace",
		"DEBUG":   "debug",
		"warning": "warn",
		"bogus":   "info",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
