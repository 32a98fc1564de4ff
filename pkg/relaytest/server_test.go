package relaytest

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relink-dev/relink/pkg/protocol"
)

func newTestRelay(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	relay := New(cfg)
	srv := httptest.NewServer(relay)
	t.Cleanup(func() {
		srv.Close()
		relay.Close()
	})
	return relay, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialRelay(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame *protocol.Frame) {
	t.Helper()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame.Encode()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *protocol.Frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := protocol.DecodeFrame(msg)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

// handshake runs the connect exchange and returns the server's answer.
func handshake(t *testing.T, conn *websocket.Conn, credential, sessionID string, lastSeq uint64) *protocol.ConnectAck {
	t.Helper()

	req := protocol.NewConnectRequest(credential)
	req.SessionID = sessionID
	req.LastSeq = lastSeq
	writeFrame(t, conn, protocol.NewFrame(protocol.FrameConnect, protocol.EncodeConnectRequest(req)))

	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameConnectAck {
		t.Fatalf("handshake reply type = %s, want %s", frame.Type, protocol.FrameConnectAck)
	}
	ack, err := protocol.DecodeConnectAck(frame.Payload)
	if err != nil {
		t.Fatalf("decode connect ack: %v", err)
	}
	return ack
}

func readEvent(t *testing.T, conn *websocket.Conn) *protocol.EventMessage {
	t.Helper()

	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameEvent {
		t.Fatalf("frame type = %s, want %s", frame.Type, protocol.FrameEvent)
	}
	ev, err := protocol.DecodeEvent(frame.Payload)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestHandshakeIssuesSession(t *testing.T) {
	_, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)

	ack := handshake(t, conn, "", "", 0)
	if ack.Status != protocol.HandshakeOK {
		t.Fatalf("status = %s, want %s", ack.Status, protocol.HandshakeOK)
	}
	if ack.SessionID == "" {
		t.Error("server issued an empty session id")
	}
	if ack.Recovered {
		t.Error("fresh session reported as recovered")
	}
	if ack.LastKnownSeq != 0 {
		t.Errorf("LastKnownSeq = %d, want 0", ack.LastKnownSeq)
	}
}

func TestHandshakeChecksCredential(t *testing.T) {
	_, url := newTestRelay(t, Config{
		Authorize: func(credential string) bool { return credential == "letmein" },
	})

	conn := dialRelay(t, url)
	if ack := handshake(t, conn, "wrong", "", 0); ack.Status != protocol.HandshakeNotAuthorized {
		t.Errorf("status = %s, want %s", ack.Status, protocol.HandshakeNotAuthorized)
	}

	conn2 := dialRelay(t, url)
	if ack := handshake(t, conn2, "letmein", "", 0); ack.Status != protocol.HandshakeOK {
		t.Errorf("status = %s, want %s", ack.Status, protocol.HandshakeOK)
	}
}

func TestHandshakeVersionMismatch(t *testing.T) {
	_, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)

	req := protocol.NewConnectRequest("")
	req.Version.Major++
	writeFrame(t, conn, protocol.NewFrame(protocol.FrameConnect, protocol.EncodeConnectRequest(req)))

	frame := readFrame(t, conn)
	ack, err := protocol.DecodeConnectAck(frame.Payload)
	if err != nil {
		t.Fatalf("decode connect ack: %v", err)
	}
	if ack.Status != protocol.HandshakeVersionMismatch {
		t.Errorf("status = %s, want %s", ack.Status, protocol.HandshakeVersionMismatch)
	}
}

func TestRejectNextHandshake(t *testing.T) {
	relay, url := newTestRelay(t, Config{})
	relay.RejectNextHandshake(protocol.HandshakeServerBusy)

	conn := dialRelay(t, url)
	if ack := handshake(t, conn, "", "", 0); ack.Status != protocol.HandshakeServerBusy {
		t.Fatalf("status = %s, want %s", ack.Status, protocol.HandshakeServerBusy)
	}

	// The injection is consumed; the next handshake goes through.
	conn2 := dialRelay(t, url)
	if ack := handshake(t, conn2, "", "", 0); ack.Status != protocol.HandshakeOK {
		t.Errorf("status = %s, want %s", ack.Status, protocol.HandshakeOK)
	}
}

func TestRefuseDial(t *testing.T) {
	relay, url := newTestRelay(t, Config{})

	relay.RefuseDial(true)
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial succeeded while the relay was refusing")
	}

	relay.RefuseDial(false)
	conn := dialRelay(t, url)
	if ack := handshake(t, conn, "", "", 0); ack.Status != protocol.HandshakeOK {
		t.Errorf("status = %s, want %s", ack.Status, protocol.HandshakeOK)
	}
}

func TestPushDeliversSequencedEvents(t *testing.T) {
	relay, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)
	ack := handshake(t, conn, "", "", 0)

	if err := relay.Push(ack.SessionID, "feed", "tick", protocol.String("one")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := relay.Push(ack.SessionID, "feed", "tick", protocol.String("two")); err != nil {
		t.Fatalf("push: %v", err)
	}

	for i, want := range []string{"one", "two"} {
		ev := readEvent(t, conn)
		if ev.Channel != "feed" || ev.Name != "tick" {
			t.Fatalf("event %d = %s/%s, want feed/tick", i, ev.Channel, ev.Name)
		}
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d Seq = %d, want %d", i, ev.Seq, i+1)
		}
		if len(ev.Args) != 1 || ev.Args[0].Str != want {
			t.Errorf("event %d args = %v, want [%q]", i, ev.Args, want)
		}
	}
}

func TestPushUnknownSession(t *testing.T) {
	relay, _ := newTestRelay(t, Config{})
	if err := relay.Push("nope", "feed", "tick"); err != ErrUnknownSession {
		t.Errorf("Push to unknown session = %v, want ErrUnknownSession", err)
	}
}

func TestResumeReplaysMissedEvents(t *testing.T) {
	relay, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)
	ack := handshake(t, conn, "", "", 0)
	id := ack.SessionID

	for _, v := range []string{"1", "2", "3"} {
		if err := relay.Push(id, "feed", "tick", protocol.String(v)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	var last uint64
	for i := 0; i < 3; i++ {
		last = readEvent(t, conn).Seq
	}
	if last != 3 {
		t.Fatalf("last received seq = %d, want 3", last)
	}

	// Fault the transport, then keep pushing into the detached session.
	if !relay.DropConnection(id) {
		t.Fatal("DropConnection found no connection to drop")
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	relay.Push(id, "feed", "tick", protocol.String("4"))
	relay.Push(id, "feed", "tick", protocol.String("5"))

	conn2 := dialRelay(t, url)
	ack2 := handshake(t, conn2, "", id, 3)
	if !ack2.Recovered {
		t.Fatal("resume within the window was not recovered")
	}
	if ack2.SessionID != id {
		t.Fatalf("resumed session id = %q, want %q", ack2.SessionID, id)
	}
	if ack2.LastKnownSeq != 5 {
		t.Errorf("LastKnownSeq = %d, want 5", ack2.LastKnownSeq)
	}

	for _, want := range []uint64{4, 5} {
		ev := readEvent(t, conn2)
		if ev.Seq != want {
			t.Fatalf("replayed event Seq = %d, want %d", ev.Seq, want)
		}
	}
}

func TestResumeUnknownSessionGetsFresh(t *testing.T) {
	_, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)

	ack := handshake(t, conn, "", "never-issued", 7)
	if ack.Status != protocol.HandshakeOK {
		t.Fatalf("status = %s, want %s", ack.Status, protocol.HandshakeOK)
	}
	if ack.Recovered {
		t.Error("unknown session reported as recovered")
	}
	if ack.SessionID == "never-issued" || ack.SessionID == "" {
		t.Errorf("fresh session id = %q", ack.SessionID)
	}
	if ack.LastKnownSeq != 0 {
		t.Errorf("LastKnownSeq = %d, want 0", ack.LastKnownSeq)
	}
}

func TestDisconnectEndsSession(t *testing.T) {
	_, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)
	ack := handshake(t, conn, "", "", 0)

	dm := protocol.NewDisconnect(protocol.DisconnectNormal, "done")
	writeFrame(t, conn, protocol.NewFrame(protocol.FrameDisconnect, protocol.EncodeDisconnect(dm)))

	// The relay closes the connection once the goodbye is processed.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	conn2 := dialRelay(t, url)
	ack2 := handshake(t, conn2, "", ack.SessionID, 0)
	if ack2.Recovered {
		t.Error("session resumed after an orderly disconnect")
	}
	if ack2.SessionID == ack.SessionID {
		t.Error("session id reissued after an orderly disconnect")
	}
}

func TestHandlerAnswersAck(t *testing.T) {
	relay, url := newTestRelay(t, Config{})
	relay.Handle("math", "add", func(sessionID string, args []protocol.Value) []protocol.Value {
		var sum int64
		for _, a := range args {
			sum += a.Int
		}
		return []protocol.Value{protocol.Int(sum)}
	})

	conn := dialRelay(t, url)
	handshake(t, conn, "", "", 0)

	ev := &protocol.EventMessage{
		Channel: "math",
		Name:    "add",
		AckID:   7,
		Args:    []protocol.Value{protocol.Int(2), protocol.Int(3)},
	}
	writeFrame(t, conn, protocol.NewEventFrame(ev))

	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameAckReply {
		t.Fatalf("frame type = %s, want %s", frame.Type, protocol.FrameAckReply)
	}
	reply, err := protocol.DecodeAckReply(frame.Payload)
	if err != nil {
		t.Fatalf("decode ack reply: %v", err)
	}
	if reply.AckID != 7 {
		t.Errorf("AckID = %d, want 7", reply.AckID)
	}
	if len(reply.Args) != 1 || reply.Args[0].Int != 5 {
		t.Errorf("reply args = %v, want [5]", reply.Args)
	}
}

func TestUnhandledEventStillAcked(t *testing.T) {
	_, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)
	handshake(t, conn, "", "", 0)

	ev := &protocol.EventMessage{Channel: "void", Name: "shout", AckID: 1}
	writeFrame(t, conn, protocol.NewEventFrame(ev))

	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameAckReply {
		t.Fatalf("frame type = %s, want %s", frame.Type, protocol.FrameAckReply)
	}
	reply, err := protocol.DecodeAckReply(frame.Payload)
	if err != nil {
		t.Fatalf("decode ack reply: %v", err)
	}
	if reply.AckID != 1 {
		t.Errorf("AckID = %d, want 1", reply.AckID)
	}
	if len(reply.Args) != 0 {
		t.Errorf("reply args = %v, want none", reply.Args)
	}
}

func TestChannelFallbackHandler(t *testing.T) {
	relay, url := newTestRelay(t, Config{})
	relay.Handle("echo", "", func(sessionID string, args []protocol.Value) []protocol.Value {
		return args
	})
	relay.Handle("echo", "silent", func(sessionID string, args []protocol.Value) []protocol.Value {
		return nil
	})

	conn := dialRelay(t, url)
	handshake(t, conn, "", "", 0)

	// No exact match for "shout", so the channel fallback answers.
	ev := &protocol.EventMessage{
		Channel: "echo",
		Name:    "shout",
		AckID:   1,
		Args:    []protocol.Value{protocol.String("hi")},
	}
	writeFrame(t, conn, protocol.NewEventFrame(ev))
	reply, err := protocol.DecodeAckReply(readFrame(t, conn).Payload)
	if err != nil {
		t.Fatalf("decode ack reply: %v", err)
	}
	if len(reply.Args) != 1 || reply.Args[0].Str != "hi" {
		t.Errorf("fallback reply = %v, want [hi]", reply.Args)
	}

	// An exact match still wins over the fallback.
	ev = &protocol.EventMessage{Channel: "echo", Name: "silent", AckID: 2}
	writeFrame(t, conn, protocol.NewEventFrame(ev))
	reply, err = protocol.DecodeAckReply(readFrame(t, conn).Payload)
	if err != nil {
		t.Fatalf("decode ack reply: %v", err)
	}
	if len(reply.Args) != 0 {
		t.Errorf("exact-match reply = %v, want none", reply.Args)
	}
}

func TestSilenceAcks(t *testing.T) {
	relay, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)
	handshake(t, conn, "", "", 0)

	relay.SilenceAcks(true)
	writeFrame(t, conn, protocol.NewEventFrame(&protocol.EventMessage{Channel: "c", Name: "n", AckID: 1}))

	// A timed-out read poisons the websocket, so this connection is only
	// good for proving the silence.
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received a reply while acks were silenced")
	}

	relay.SilenceAcks(false)
	conn2 := dialRelay(t, url)
	handshake(t, conn2, "", "", 0)
	writeFrame(t, conn2, protocol.NewEventFrame(&protocol.EventMessage{Channel: "c", Name: "n", AckID: 2}))

	frame := readFrame(t, conn2)
	if frame.Type != protocol.FrameAckReply {
		t.Fatalf("frame type = %s, want %s", frame.Type, protocol.FrameAckReply)
	}
}

func TestBroadcastReachesAllSessions(t *testing.T) {
	relay, url := newTestRelay(t, Config{})

	connA := dialRelay(t, url)
	handshake(t, connA, "", "", 0)
	connB := dialRelay(t, url)
	handshake(t, connB, "", "", 0)

	relay.Broadcast("feed", "tick", protocol.String("all"))

	for _, conn := range []*websocket.Conn{connA, connB} {
		ev := readEvent(t, conn)
		if ev.Seq != 1 {
			t.Errorf("Seq = %d, want 1 (sequences are per session)", ev.Seq)
		}
		if len(ev.Args) != 1 || ev.Args[0].Str != "all" {
			t.Errorf("args = %v, want [\"all\"]", ev.Args)
		}
	}
}

func TestPingAnswered(t *testing.T) {
	_, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)
	handshake(t, conn, "", "", 0)

	ct, pp := protocol.NewPing(42)
	writeFrame(t, conn, protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(ct, pp)))

	frame := readFrame(t, conn)
	if frame.Type != protocol.FrameControl {
		t.Fatalf("frame type = %s, want %s", frame.Type, protocol.FrameControl)
	}
	rt, rp, err := protocol.DecodeControl(frame.Payload)
	if err != nil {
		t.Fatalf("decode control: %v", err)
	}
	if rt != protocol.ControlPong {
		t.Errorf("control type = %s, want %s", rt, protocol.ControlPong)
	}
	if rp.Timestamp != 42 {
		t.Errorf("pong timestamp = %d, want 42", rp.Timestamp)
	}
}

func TestDropConnection(t *testing.T) {
	relay, url := newTestRelay(t, Config{})
	conn := dialRelay(t, url)
	ack := handshake(t, conn, "", "", 0)

	if !relay.DropConnection(ack.SessionID) {
		t.Fatal("DropConnection found no connection")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if relay.DropConnection(ack.SessionID) {
		t.Error("DropConnection dropped an already-detached session")
	}
}
