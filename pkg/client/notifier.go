package client

import (
	"log/slog"
	"sync"
)

// StateRegistration is the handle returned by OnStateChange, passed to
// OffStateChange to remove the handler.
type StateRegistration struct {
	id uint64
	fn func(StateChange)
}

type queuedChange struct {
	change StateChange
	subs   []*StateRegistration
}

// stateNotifier delivers state changes to handlers from a single dedicated
// goroutine. Transitions are queued in the order they happen, so handlers
// observe the exact lifecycle sequence, and a handler is free to call back
// into the client without deadlocking the state machine.
type stateNotifier struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queuedChange
	closed bool
}

func newStateNotifier(logger *slog.Logger) *stateNotifier {
	n := &stateNotifier{logger: logger}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *stateNotifier) push(change StateChange, subs []*StateRegistration) {
	n.mu.Lock()
	if !n.closed {
		n.queue = append(n.queue, queuedChange{change: change, subs: subs})
		n.cond.Signal()
	}
	n.mu.Unlock()
}

// close stops the notifier once the already queued changes are delivered.
func (n *stateNotifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Signal()
	n.mu.Unlock()
}

func (n *stateNotifier) run() {
	n.mu.Lock()
	for {
		for len(n.queue) == 0 {
			if n.closed {
				n.mu.Unlock()
				return
			}
			n.cond.Wait()
		}
		qc := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		for _, sub := range qc.subs {
			n.invoke(sub, qc.change)
		}

		n.mu.Lock()
	}
}

func (n *stateNotifier) invoke(sub *StateRegistration, change StateChange) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("state handler panicked",
				slog.String("from", change.From.String()),
				slog.String("to", change.To.String()),
				slog.Any("panic", r),
			)
		}
	}()
	sub.fn(change)
}
