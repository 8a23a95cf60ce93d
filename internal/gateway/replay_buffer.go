package gateway

import "sync"

// ReplayBuffer keeps the most recent envelopes of one channel for gap
// backfill. Sequence numbers must be pushed in increasing order.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	start   int // index of the oldest entry
	size    int
}

type replayEntry struct {
	seq  int64
	data []byte
}

// NewReplayBuffer holds up to capacity envelopes; capacity <= 0 selects 500.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push stores a copy of data, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := len(rb.entries)
	if rb.size < n {
		rb.entries[(rb.start+rb.size)%n] = replayEntry{seq: seq, data: cp}
		rb.size++
		return
	}
	rb.entries[rb.start] = replayEntry{seq: seq, data: cp}
	rb.start = (rb.start + 1) % n
}

// Range returns the envelopes with seq in [from, to], oldest first.
func (rb *ReplayBuffer) Range(from, to int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	n := len(rb.entries)
	for i := 0; i < rb.size; i++ {
		e := rb.entries[(rb.start+i)%n]
		if e.seq > to {
			break
		}
		if e.seq >= from {
			out = append(out, e.data)
		}
	}
	return out
}

// Oldest returns the smallest buffered seq, or 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.size == 0 {
		return 0
	}
	return rb.entries[rb.start].seq
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
