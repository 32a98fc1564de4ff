package client

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/relink-dev/relink/pkg/protocol"
)

// Call is an in-flight acknowledged send. The server's reply arrives in
// Reply and the terminal outcome in Error once Done is signaled; the fields
// must not be read before then.
type Call struct {
	// Channel and Name identify the event that was sent.
	Channel string
	Name    string

	// Args are the arguments the event was sent with.
	Args []protocol.Value

	// Reply holds the server's acknowledgement arguments on success.
	Reply []protocol.Value

	// Error is nil on success, or the reason the call was rejected:
	// AckTimeoutError, a transport failure, or a context error.
	Error error

	// Done receives the call itself when it completes.
	Done chan *Call

	id uint64
}

func (call *Call) complete(err error) {
	call.Error = err
	select {
	case call.Done <- call:
	default:
		// The channel is allocated with room for the single completion;
		// this arm exists so a misbehaving reuse cannot block the tracker.
	}
}

type pendingEntry struct {
	call      *Call
	frame     []byte
	attempts  int
	firstSent time.Time
	timer     *time.Timer
	carried   bool
	suspended bool
}

// ackTracker correlates acknowledged sends with their replies and drives
// the retransmission schedule. Every transmission of an entry reuses the
// originally encoded frame, byte for byte, so the server can deduplicate
// retries by correlation id alone.
type ackTracker struct {
	timeout    time.Duration
	maxRetries int
	send       func(frame []byte) error
	logger     *slog.Logger

	// observe, when set, reports each terminal outcome and its latency.
	observe func(outcome string, elapsed time.Duration)

	mu      sync.Mutex
	pending map[uint64]*pendingEntry
	nextID  uint64
}

func newAckTracker(timeout time.Duration, maxRetries int, send func([]byte) error, logger *slog.Logger) *ackTracker {
	return &ackTracker{
		timeout:    timeout,
		maxRetries: maxRetries,
		send:       send,
		logger:     logger,
		pending:    make(map[uint64]*pendingEntry),
	}
}

// next reserves a correlation id. Ids start at 1; zero on the wire means
// no acknowledgement was requested.
func (t *ackTracker) next() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return t.nextID
}

// track registers the call under id and arms its first timeout. The frame
// is retained verbatim for retransmission.
func (t *ackTracker) track(id uint64, call *Call, frame []byte) {
	call.id = id
	entry := &pendingEntry{
		call:      call,
		frame:     frame,
		attempts:  1,
		firstSent: time.Now(),
	}
	t.mu.Lock()
	t.pending[id] = entry
	entry.timer = time.AfterFunc(t.timeout, func() { t.onTimeout(id) })
	t.mu.Unlock()
}

func (t *ackTracker) onTimeout(id uint64) {
	t.mu.Lock()
	entry, ok := t.pending[id]
	if !ok || entry.suspended {
		t.mu.Unlock()
		return
	}
	if entry.attempts <= t.maxRetries {
		entry.attempts++
		entry.timer.Reset(t.timeout)
		frame := entry.frame
		attempt := entry.attempts
		t.mu.Unlock()
		t.logger.Debug("retransmitting unacknowledged event",
			slog.Uint64("ack_id", id),
			slog.Int("attempt", attempt),
		)
		if err := t.send(frame); err != nil {
			t.fail(id, err)
		}
		return
	}
	delete(t.pending, id)
	elapsed := time.Since(entry.firstSent)
	err := &AckTimeoutError{
		Channel:  entry.call.Channel,
		Name:     entry.call.Name,
		Attempts: entry.attempts,
		Elapsed:  elapsed,
	}
	t.mu.Unlock()
	if t.observe != nil {
		t.observe("timeout", elapsed)
	}
	entry.call.complete(err)
}

// resolve completes the call registered under id with the server's reply
// arguments. It reports false for unknown ids, which callers ignore apart
// from a debug log: the ack may simply have raced a timeout.
func (t *ackTracker) resolve(id uint64, reply []protocol.Value) bool {
	t.mu.Lock()
	entry, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.pending, id)
	entry.timer.Stop()
	elapsed := time.Since(entry.firstSent)
	t.mu.Unlock()
	if t.observe != nil {
		t.observe("ok", elapsed)
	}
	entry.call.Reply = reply
	entry.call.complete(nil)
	return true
}

// fail rejects a single pending call, if still pending.
func (t *ackTracker) fail(id uint64, err error) {
	t.mu.Lock()
	entry, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.pending, id)
	entry.timer.Stop()
	elapsed := time.Since(entry.firstSent)
	t.mu.Unlock()
	if t.observe != nil {
		t.observe("rejected", elapsed)
	}
	entry.call.complete(err)
}

// rejectAll rejects every pending call with err. Used on orderly shutdown
// and when a connection is lost without retention.
func (t *ackTracker) rejectAll(err error) {
	t.mu.Lock()
	entries := make([]*pendingEntry, 0, len(t.pending))
	for _, entry := range t.pending {
		entry.timer.Stop()
		entries = append(entries, entry)
	}
	t.pending = make(map[uint64]*pendingEntry)
	t.mu.Unlock()
	for _, entry := range entries {
		if t.observe != nil {
			t.observe("rejected", time.Since(entry.firstSent))
		}
		entry.call.complete(err)
	}
}

// suspend handles a connection loss. Without retention every pending call
// is rejected with err. With retention each call survives exactly one
// reconnect: its timer is paused and its frame queued for retransmission
// on the next connection, but a second loss before the ack arrives rejects
// it.
func (t *ackTracker) suspend(retain bool, err error) {
	if !retain {
		t.rejectAll(err)
		return
	}
	t.mu.Lock()
	var rejected []*pendingEntry
	for id, entry := range t.pending {
		if entry.carried {
			delete(t.pending, id)
			entry.timer.Stop()
			rejected = append(rejected, entry)
			continue
		}
		entry.carried = true
		entry.suspended = true
		entry.timer.Stop()
	}
	t.mu.Unlock()
	for _, entry := range rejected {
		if t.observe != nil {
			t.observe("rejected", time.Since(entry.firstSent))
		}
		entry.call.complete(err)
	}
}

// carriedFrames returns the frames of suspended calls in original send
// order, for flushing onto a freshly established connection.
func (t *ackTracker) carriedFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint64, 0, len(t.pending))
	for id, entry := range t.pending {
		if entry.suspended {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	frames := make([][]byte, len(ids))
	for i, id := range ids {
		frames[i] = t.pending[id].frame
	}
	return frames
}

// resume re-arms the timeout of every suspended call once its frame is back
// on the wire. The retransmission counts against the call's retry budget.
func (t *ackTracker) resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, entry := range t.pending {
		if !entry.suspended {
			continue
		}
		entry.suspended = false
		entry.attempts++
		entry.timer = time.AfterFunc(t.timeout, func() { t.onTimeout(id) })
	}
}

// pendingCount is a test hook.
func (t *ackTracker) pendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
