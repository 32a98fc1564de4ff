package relaytest

import (
	"sync"
	"time"
)

// historyEntry stores one sequenced event frame for potential replay.
type historyEntry struct {
	seq    uint64
	frame  []byte
	pushed time.Time
}

// eventHistory is a ring buffer of the most recent sequenced event frames
// pushed to a session. When a client resumes with the last sequence it
// processed, the buffer supplies every frame it missed, in order. The ring
// overwrites the oldest entries when full, so a client that fell too far
// behind cannot be recovered and gets a fresh session instead.
type eventHistory struct {
	mu       sync.RWMutex
	entries  []*historyEntry
	head     int // next write position (circular)
	count    int
	capacity int
	minSeq   uint64 // lowest sequence still in the buffer
	maxSeq   uint64 // highest sequence in the buffer
}

func newEventHistory(capacity int) *eventHistory {
	if capacity <= 0 {
		capacity = 128
	}
	return &eventHistory{
		entries:  make([]*historyEntry, capacity),
		capacity: capacity,
	}
}

// add records an encoded event frame under its sequence number. The frame
// bytes are retained as-is; callers must not mutate them afterwards.
func (h *eventHistory) add(seq uint64, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = &historyEntry{seq: seq, frame: frame, pushed: time.Now()}
	h.head = (h.head + 1) % h.capacity

	if h.count < h.capacity {
		h.count++
	}

	h.maxSeq = seq
	if h.count == 1 {
		h.minSeq = seq
	} else if h.count == h.capacity {
		// Full ring: the oldest entry sits at head, about to be overwritten.
		if oldest := h.entries[h.head]; oldest != nil {
			h.minSeq = oldest.seq
		}
	}
}

// frames returns the frames for sequences (afterSeq, maxSeq], oldest first,
// or nil if any sequence in that range has already been overwritten.
func (h *eventHistory) frames(afterSeq uint64) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || afterSeq >= h.maxSeq {
		return nil
	}
	if afterSeq+1 < h.minSeq {
		return nil
	}

	bySeq := make(map[uint64][]byte, h.count)
	for i := 0; i < h.count; i++ {
		idx := (h.head - h.count + i + h.capacity) % h.capacity
		if entry := h.entries[idx]; entry != nil {
			bySeq[entry.seq] = entry.frame
		}
	}

	out := make([][]byte, 0, h.maxSeq-afterSeq)
	for seq := afterSeq + 1; seq <= h.maxSeq; seq++ {
		frame, ok := bySeq[seq]
		if !ok {
			return nil
		}
		out = append(out, frame)
	}
	return out
}

// canRecover reports whether every sequence after lastSeq is still in the
// buffer. A client that is fully caught up (lastSeq == maxSeq) is also
// recoverable; there is simply nothing to replay.
func (h *eventHistory) canRecover(lastSeq uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if lastSeq >= h.maxSeq {
		return lastSeq == h.maxSeq
	}
	return h.count > 0 && lastSeq+1 >= h.minSeq
}
