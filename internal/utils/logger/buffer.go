// internal/utils/logger/buffer.go
package logger

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is one structured log line kept by a Buffer.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring of the most recent log entries. It is an
// io.Writer for a JSON encoder core built with bufferEncoderConfig.
type Buffer struct {
	mu           sync.Mutex
	ring         []Entry
	currentIndex int
	wrapped      bool

	totalEntries   uint64
	droppedEntries uint64
}

// NewBuffer keeps at most size entries.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{ring: make([]Entry, size)}
}

func bufferEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// Write decodes one JSON-encoded entry. Lines that do not decode are
// counted and dropped.
func (b *Buffer) Write(p []byte) (int, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(p, &raw); err != nil {
		b.mu.Lock()
		b.droppedEntries++
		b.mu.Unlock()
		return len(p), nil
	}

	entry := Entry{Fields: make(map[string]interface{})}
	for k, v := range raw {
		switch k {
		case "ts":
			if s, ok := v.(string); ok {
				entry.Timestamp, _ = time.Parse(time.RFC3339Nano, s)
			}
		case "level":
			entry.Level, _ = v.(string)
		case "logger":
			entry.Logger, _ = v.(string)
		case "msg":
			entry.Message, _ = v.(string)
		default:
			entry.Fields[k] = v
		}
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	b.Add(entry)
	return len(p), nil
}

// Add stores entry, overwriting the oldest once the ring is full.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.currentIndex] = entry
	b.currentIndex = (b.currentIndex + 1) % len(b.ring)
	if b.currentIndex == 0 {
		b.wrapped = true
	}
	b.totalEntries++
}

// Recent returns up to limit of the newest entries, oldest first. A limit
// <= 0 returns everything held.
func (b *Buffer) Recent(limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.currentIndex
	start := 0
	if b.wrapped {
		count = len(b.ring)
		start = b.currentIndex
	}
	if limit > 0 && limit < count {
		start += count - limit
		count = limit
	}

	out := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

// Stats returns the number of entries seen and dropped.
func (b *Buffer) Stats() (total, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalEntries, b.droppedEntries
}

// Sync implements zapcore.WriteSyncer.
func (b *Buffer) Sync() error { return nil }
