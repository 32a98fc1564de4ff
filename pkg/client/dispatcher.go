package client

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/relink-dev/relink/pkg/protocol"
)

// Handler receives the arguments of one inbound event. Handlers run on the
// connection's read goroutine; blocking in one delays everything behind it.
type Handler func(args []protocol.Value)

// Registration is the handle returned by On and OnOnce. Passing it to Off
// removes exactly that handler, regardless of how many others share the
// same channel and event name.
type Registration struct {
	key   handlerKey
	id    uint64
	once  bool
	fired atomic.Bool
	fn    Handler
}

type handlerKey struct {
	channel string
	name    string
}

// dispatcher routes decoded events to registered handlers. Lookup is by
// exact channel and event name.
type dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[handlerKey][]*Registration
	nextID   uint64
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	return &dispatcher{
		logger:   logger,
		handlers: make(map[handlerKey][]*Registration),
	}
}

func (d *dispatcher) on(channel, name string, once bool, fn Handler) *Registration {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	reg := &Registration{
		key:  handlerKey{channel: channel, name: name},
		id:   d.nextID,
		once: once,
		fn:   fn,
	}
	d.handlers[reg.key] = append(d.handlers[reg.key], reg)
	return reg
}

// off removes the registration. It reports false when the handle was
// already removed, which is a harmless no-op.
func (d *dispatcher) off(reg *Registration) bool {
	if reg == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	regs := d.handlers[reg.key]
	for i, r := range regs {
		if r != reg {
			continue
		}
		// Dispatch iterates a snapshot of this slice outside the lock,
		// so removal builds a fresh slice instead of shifting in place.
		next := make([]*Registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(d.handlers, reg.key)
		} else {
			d.handlers[reg.key] = next
		}
		return true
	}
	return false
}

// dispatch invokes every handler registered for the event at the moment
// dispatch starts, in registration order, and returns how many ran.
// Handlers added during dispatch do not see the current event; handlers
// removed during dispatch are skipped only if they were once-handlers that
// already fired.
func (d *dispatcher) dispatch(channel, name string, args []protocol.Value) int {
	d.mu.RLock()
	regs := d.handlers[handlerKey{channel: channel, name: name}]
	d.mu.RUnlock()

	delivered := 0
	for _, reg := range regs {
		if reg.once {
			if !reg.fired.CompareAndSwap(false, true) {
				continue
			}
			d.off(reg)
		}
		d.invoke(reg, args)
		delivered++
	}
	return delivered
}

func (d *dispatcher) invoke(reg *Registration, args []protocol.Value) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				slog.String("channel", reg.key.channel),
				slog.String("event", reg.key.name),
				slog.Any("panic", r),
			)
		}
	}()
	reg.fn(args)
}

// handlerCount is a test hook reporting live registrations for a key.
func (d *dispatcher) handlerCount(channel, name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[handlerKey{channel: channel, name: name}])
}
