package client

import (
	"io"
	"log/slog"
	"testing"

	"github.com/relink-dev/relink/pkg/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchInRegistrationOrder(t *testing.T) {
	d := newDispatcher(discardLogger())

	var order []int
	for i := 0; i < 4; i++ {
		d.on("room", "msg", false, func([]protocol.Value) { order = append(order, i) })
	}

	if got := d.dispatch("room", "msg", nil); got != 4 {
		t.Fatalf("dispatch delivered to %d handlers, want 4", got)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("handlers ran out of order: %v", order)
		}
	}
}

func TestDispatchExactMatchOnly(t *testing.T) {
	d := newDispatcher(discardLogger())
	d.on("room", "msg", false, func([]protocol.Value) { t.Error("wrong handler invoked") })

	if got := d.dispatch("room", "other", nil); got != 0 {
		t.Errorf("dispatch(room/other) delivered %d, want 0", got)
	}
	if got := d.dispatch("lobby", "msg", nil); got != 0 {
		t.Errorf("dispatch(lobby/msg) delivered %d, want 0", got)
	}
}

func TestOffRemovesExactlyOneHandler(t *testing.T) {
	d := newDispatcher(discardLogger())

	var a, b int
	regA := d.on("room", "msg", false, func([]protocol.Value) { a++ })
	d.on("room", "msg", false, func([]protocol.Value) { b++ })

	if !d.off(regA) {
		t.Fatal("off() did not find a live registration")
	}
	if d.off(regA) {
		t.Error("off() on an already removed handle reported true")
	}

	d.dispatch("room", "msg", nil)
	if a != 0 || b != 1 {
		t.Errorf("after off: a=%d b=%d, want a=0 b=1", a, b)
	}
}

func TestOnceHandlerFiresOnce(t *testing.T) {
	d := newDispatcher(discardLogger())

	calls := 0
	d.on("room", "msg", true, func([]protocol.Value) { calls++ })

	d.dispatch("room", "msg", nil)
	d.dispatch("room", "msg", nil)

	if calls != 1 {
		t.Errorf("once handler ran %d times, want 1", calls)
	}
	if got := d.handlerCount("room", "msg"); got != 0 {
		t.Errorf("once handler still registered: count = %d", got)
	}
}

func TestHandlerAddedDuringDispatchMissesCurrentEvent(t *testing.T) {
	d := newDispatcher(discardLogger())

	late := 0
	d.on("room", "msg", false, func([]protocol.Value) {
		d.on("room", "msg", false, func([]protocol.Value) { late++ })
	})

	d.dispatch("room", "msg", nil)
	if late != 0 {
		t.Errorf("handler registered mid-dispatch saw the current event")
	}

	d.dispatch("room", "msg", nil)
	if late != 1 {
		t.Errorf("late handler ran %d times on the next event, want 1", late)
	}
}

func TestPanickingHandlerDoesNotStopDispatch(t *testing.T) {
	d := newDispatcher(discardLogger())

	ran := false
	d.on("room", "msg", false, func([]protocol.Value) { panic("boom") })
	d.on("room", "msg", false, func([]protocol.Value) { ran = true })

	if got := d.dispatch("room", "msg", nil); got != 2 {
		t.Errorf("dispatch delivered to %d handlers, want 2", got)
	}
	if !ran {
		t.Error("handler after the panicking one never ran")
	}
}

func TestDispatchPassesArguments(t *testing.T) {
	d := newDispatcher(discardLogger())

	var got []protocol.Value
	d.on("room", "msg", false, func(args []protocol.Value) { got = args })

	sent := []protocol.Value{protocol.String("hello"), protocol.Int(7)}
	d.dispatch("room", "msg", sent)

	if len(got) != 2 || got[0].Str != "hello" || got[1].Int != 7 {
		t.Errorf("handler received %+v, want the sent arguments", got)
	}
}
