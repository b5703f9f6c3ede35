package runtime

import (
	"fmt"
	"sync"
	"time"

	errs "github.com/exclave-io/exclave/internal/runtime/errors"
)

// outcome is the settled result of a pending request.
type outcome struct {
	result any
	err    error
}

// pendingEntry tracks one in-flight request. The entry is deleted from
// the table before its channel is written, so every entry settles at
// most once no matter how resolve, reject, timeout, and disposal race.
type pendingEntry struct {
	ch    chan outcome
	kind  string
	timer *time.Timer
}

// pendingTable maps correlation IDs to waiting callers.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingEntry)}
}

// Add registers a pending request and returns the channel its outcome
// will arrive on. A positive timeout arms a timer that rejects the entry
// with ErrCallTimeout; expired, when non-nil, runs after a timeout
// actually won the race against resolution. kind tags the expected
// response type for ResolveMatching and may be empty.
func (p *pendingTable) Add(id string, kind string, timeout time.Duration, expired func(id string)) <-chan outcome {
	entry := &pendingEntry{
		ch:   make(chan outcome, 1),
		kind: kind,
	}

	p.mu.Lock()
	p.entries[id] = entry
	p.mu.Unlock()

	if timeout > 0 {
		entry.timer = time.AfterFunc(timeout, func() {
			if p.settle(id, outcome{err: fmt.Errorf("%w after %s (id %s)", errs.ErrCallTimeout, timeout, id)}) && expired != nil {
				expired(id)
			}
		})
	}

	return entry.ch
}

// Resolve settles a pending request with a result. Returns false when no
// entry is waiting, which callers treat as a duplicate or late reply.
func (p *pendingTable) Resolve(id string, result any) bool {
	return p.settle(id, outcome{result: result})
}

// ResolveMatching settles a pending request only when its recorded kind
// matches.
func (p *pendingTable) ResolveMatching(id, kind string, result any) bool {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if !ok || entry.kind != kind {
		p.mu.Unlock()
		return false
	}
	delete(p.entries, id)
	p.mu.Unlock()

	entry.stop()
	entry.ch <- outcome{result: result}
	return true
}

// Reject settles a pending request with an error.
func (p *pendingTable) Reject(id string, err error) bool {
	return p.settle(id, outcome{err: err})
}

// RejectAll settles every pending request with the same error. Used on
// demotion and disposal so no caller hangs forever.
func (p *pendingTable) RejectAll(err error) {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*pendingEntry)
	p.mu.Unlock()

	for _, entry := range entries {
		entry.stop()
		entry.ch <- outcome{err: err}
	}
}

func (p *pendingTable) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *pendingTable) settle(id string, out outcome) bool {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	entry.stop()
	entry.ch <- out
	return true
}

func (e *pendingEntry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
}
