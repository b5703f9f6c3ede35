package runtime

import (
	"sync"
	"time"

	"github.com/exclave-io/exclave/internal/runtime/jsoncodec"
)

// HistoryEntry records one dispatched action for debugging and replay.
type HistoryEntry struct {
	Action        string    `json:"action"`
	Args          []any     `json:"args,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Time          time.Time `json:"time"`
}

// history is a bounded ring of dispatched actions. A limit of zero or
// less disables recording entirely.
type history struct {
	mu      sync.Mutex
	entries []HistoryEntry
	next    int
	filled  int
}

func newHistory(limit int) *history {
	h := &history{}
	if limit > 0 {
		h.entries = make([]HistoryEntry, limit)
	}
	return h
}

func (h *history) Record(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return
	}
	h.entries[h.next] = entry
	h.next = (h.next + 1) % len(h.entries)
	if h.filled < len(h.entries) {
		h.filled++
	}
}

// Snapshot returns the recorded entries, oldest first.
func (h *history) Snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntry, 0, h.filled)
	if h.filled == 0 {
		return out
	}

	start := 0
	if h.filled == len(h.entries) {
		start = h.next
	}
	for i := 0; i < h.filled; i++ {
		out = append(out, h.entries[(start+i)%len(h.entries)])
	}
	return out
}

func (h *history) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filled
}

func (h *history) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	h.filled = 0
}

// Resize changes the ring capacity, dropping recorded entries.
func (h *history) Resize(limit int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > 0 {
		h.entries = make([]HistoryEntry, limit)
	} else {
		h.entries = nil
	}
	h.next = 0
	h.filled = 0
}

// DumpJSON renders the history oldest-first as indented JSON.
func (h *history) DumpJSON() ([]byte, error) {
	return jsoncodec.MarshalIndent(h.Snapshot(), "", "  ")
}
