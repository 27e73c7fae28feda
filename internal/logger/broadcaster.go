package logger

import (
	"encoding/json"
	"sync"
)

const defaultBufferSize = 1000

// Broadcaster pushes typed events to connected websocket clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// LogEntry is one structured log line as exposed over the API.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBroadcaster is an io.Writer that receives zerolog's JSON output,
// buffers entries and relays them to the hub as "logs:entry" events.
type LogBroadcaster struct {
	buffer *RingBuffer[LogEntry]

	mu  sync.RWMutex
	hub Broadcaster
}

// NewLogBroadcaster creates a broadcaster. hub may be nil and attached later.
func NewLogBroadcaster(hub Broadcaster, bufferSize int) *LogBroadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &LogBroadcaster{
		hub:    hub,
		buffer: NewRingBuffer[LogEntry](bufferSize),
	}
}

func (b *LogBroadcaster) SetHub(hub Broadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hub = hub
}

// Write implements io.Writer. Malformed lines are dropped.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	entry, ok := parseLogEntry(p)
	if !ok {
		return len(p), nil
	}

	b.buffer.Push(entry)

	b.mu.RLock()
	hub := b.hub
	b.mu.RUnlock()

	if hub != nil {
		// Logging the failure here would recurse into Write.
		_ = hub.Broadcast("logs:entry", entry)
	}
	return len(p), nil
}

// GetRecentLogs returns all buffered entries, oldest first.
func (b *LogBroadcaster) GetRecentLogs() []LogEntry {
	return b.buffer.Last(0)
}

func parseLogEntry(data []byte) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, false
	}

	entry := LogEntry{
		Timestamp: takeString(raw, "time"),
		Level:     takeString(raw, "level"),
		Component: takeString(raw, "component"),
		Message:   takeString(raw, "message"),
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}

func takeString(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	delete(raw, key)
	return s
}
