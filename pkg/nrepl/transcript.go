package nrepl

import (
	"context"
	"sync"
	"time"
)

// TranscriptEntry is one recorded evaluation on a session.
type TranscriptEntry struct {
	Op    string    `json:"op"`
	NS    string    `json:"ns"`
	Code  string    `json:"code"`
	Value string    `json:"value,omitempty"`
	Err   string    `json:"err,omitempty"`
	Time  time.Time `json:"time"`
}

// TranscriptStore receives the evaluation history of sessions, for
// audit or replay. Append is called once per eval/load-file request;
// Flush once when the session's connection closes. Implementations
// must be safe for concurrent use across connections.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, entry TranscriptEntry) error
	Flush(ctx context.Context, sessionID string) error
	Close() error
}

// MemoryTranscripts keeps transcripts in process memory. Useful for
// tests and as the reference implementation.
type MemoryTranscripts struct {
	mu      sync.Mutex
	entries map[string][]TranscriptEntry
}

// NewMemoryTranscripts creates an empty in-memory store.
func NewMemoryTranscripts() *MemoryTranscripts {
	return &MemoryTranscripts{entries: map[string][]TranscriptEntry{}}
}

// Append implements TranscriptStore.
func (m *MemoryTranscripts) Append(_ context.Context, sessionID string, entry TranscriptEntry) error {
	m.mu.Lock()
	m.entries[sessionID] = append(m.entries[sessionID], entry)
	m.mu.Unlock()
	return nil
}

// Flush implements TranscriptStore. Entries stay readable after flush.
func (m *MemoryTranscripts) Flush(context.Context, string) error { return nil }

// Close implements TranscriptStore.
func (m *MemoryTranscripts) Close() error { return nil }

// Entries returns a copy of the recorded entries for a session.
func (m *MemoryTranscripts) Entries(sessionID string) []TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TranscriptEntry{}, m.entries[sessionID]...)
}
