package relaytest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relink-dev/relink/pkg/protocol"
)

// session is the server side of one logical client session. It outlives
// individual connections: a transport drop detaches it, and a client that
// presents its id again within the resume window reattaches to it.
type session struct {
	id     string
	srv    *Server
	logger *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn // nil while detached
	lastSeq    uint64          // highest sequence assigned to this session
	history    *eventHistory
	detachedAt time.Time // valid while conn == nil
	gone       bool      // ended; the id can never be resumed
}

// detach drops the session's connection if conn is still the one attached.
// A read loop on a superseded connection must not detach its replacement.
func (c *session) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.detachedAt = time.Now()
}

// push assigns the next sequence number to the event, records the frame
// for replay, and writes it if a connection is attached. Detached sessions
// still record: the whole point of the history is delivering what a client
// missed while it was away.
func (c *session) push(channel, name string, args []protocol.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gone {
		return
	}

	c.lastSeq++
	frame := protocol.NewEventFrame(&protocol.EventMessage{
		Channel: channel,
		Name:    name,
		Seq:     c.lastSeq,
		Args:    args,
	}).Encode()

	c.history.add(c.lastSeq, frame)
	c.writeLocked(frame)
}

// writeLocked writes one frame on the attached connection, if any.
// Callers hold c.mu, which also serializes writers for gorilla.
func (c *session) writeLocked(frame []byte) {
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.srv.writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.logger.Debug("write failed", "error", err)
		c.conn.Close()
		c.conn = nil
		c.detachedAt = time.Now()
	}
}

// readLoop consumes frames from conn until it fails or the client leaves.
func (c *session) readLoop(conn *websocket.Conn) {
	defer c.detach(conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Debug("read error", "error", err)
			}
			return
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			c.logger.Warn("frame decode error", "error", err)
			continue
		}

		switch frame.Type {
		case protocol.FrameEvent:
			c.handleEventFrame(frame.Payload)

		case protocol.FrameControl:
			c.handleControlFrame(frame.Payload)

		case protocol.FrameDisconnect:
			c.handleDisconnectFrame(frame.Payload)
			return

		case protocol.FrameAckReply:
			// The relay never requests acks on its own pushes.
			c.logger.Debug("unexpected ack reply")

		default:
			c.logger.Warn("unknown frame type", "type", frame.Type)
		}
	}
}

// handleEventFrame dispatches a client event to the registered handler and
// answers the ack request, if any.
func (c *session) handleEventFrame(payload []byte) {
	ev, err := protocol.DecodeEvent(payload)
	if err != nil {
		c.logger.Warn("event decode error", "error", err)
		c.sendError(protocol.NewError(protocol.ErrInvalidEvent, "malformed event"))
		return
	}

	reply := c.srv.invokeHandler(c.id, ev)

	if ev.WantsAck() && !c.srv.acksSilenced() {
		ack := protocol.NewAckReplyFrame(&protocol.AckReplyMessage{
			AckID: ev.AckID,
			Args:  reply,
		}).Encode()

		c.mu.Lock()
		c.writeLocked(ack)
		c.mu.Unlock()
	}
}

// handleControlFrame answers pings so clients can keep their heartbeat.
func (c *session) handleControlFrame(payload []byte) {
	ct, pp, err := protocol.DecodeControl(payload)
	if err != nil {
		c.logger.Warn("control decode error", "error", err)
		return
	}

	switch ct {
	case protocol.ControlPing:
		rt, rp := protocol.NewPong(pp.Timestamp)
		frame := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(rt, rp)).Encode()
		c.mu.Lock()
		c.writeLocked(frame)
		c.mu.Unlock()

	case protocol.ControlPong:
		c.logger.Debug("received pong")
	}
}

// handleDisconnectFrame ends the session for good. An orderly goodbye
// means the client will not be back for this id.
func (c *session) handleDisconnectFrame(payload []byte) {
	dm, err := protocol.DecodeDisconnect(payload)
	if err != nil {
		c.logger.Warn("disconnect decode error", "error", err)
	} else {
		c.logger.Info("client disconnected", "reason", dm.Reason.String(), "message", dm.Message)
	}

	c.mu.Lock()
	c.gone = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.srv.forget(c.id)
}

func (c *session) sendError(em *protocol.ErrorMessage) {
	frame := protocol.NewFrame(protocol.FrameError, protocol.EncodeErrorMessage(em)).Encode()
	c.mu.Lock()
	c.writeLocked(frame)
	c.mu.Unlock()
}

// close tears the session down from the server side.
func (c *session) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gone = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// dropConn severs the transport without ending the session, simulating a
// network fault. The session stays resumable.
func (c *session) dropConn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return false
	}
	c.conn.Close()
	c.conn = nil
	c.detachedAt = time.Now()
	return true
}
