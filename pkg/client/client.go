// Package client implements the relink session client: a reconnecting,
// acknowledgement-tracking connection to a relink server over a pluggable
// transport.
//
// A Client owns at most one live Transport at a time. Each established
// connection runs two goroutines, a reader and a writer, both tagged with
// the connection's epoch; when the transport is replaced, callbacks from
// the previous epoch are ignored. Application-visible work happens through
// Emit and Call for outbound events, On for inbound ones, and
// OnStateChange for lifecycle transitions.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/relink-dev/relink/pkg/protocol"
)

// errAttemptSuperseded aborts a connection attempt that lost a race with
// Disconnect, Close or a newer attempt. Never surfaced to callers.
var errAttemptSuperseded = errors.New("relink: connection attempt superseded")

// Client is a relink session client. Create one with New; the zero value
// is not usable. All methods are safe for concurrent use.
type Client struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics
	tracer  trace.Tracer

	dispatcher *dispatcher
	tracker    *ackTracker
	backoff    *backoff
	notifier   *stateNotifier

	mu             sync.Mutex
	state          State
	sess           Session
	epoch          uint64
	tr             Transport
	writeCh        chan []byte
	connDone       chan struct{}
	queue          [][]byte
	waiters        []chan error
	reconnectTimer *time.Timer
	closed         bool

	stateSubs  []*StateRegistration
	stateSubID uint64
}

// New builds a Client from cfg. With AutoConnect set the client starts
// connecting immediately; otherwise it stays in StateDisconnected until
// Connect is called.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("relink: config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: newMetrics(cfg.Registerer),
		state:   StateDisconnected,
	}
	c.dispatcher = newDispatcher(c.logger)
	c.notifier = newStateNotifier(c.logger)
	c.backoff = newBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts, cfg.rng)
	c.tracker = newAckTracker(cfg.AckTimeout, cfg.MaxAckRetries, func(frame []byte) error {
		c.metrics.observeRetransmission()
		return c.enqueue(frame)
	}, c.logger)
	if c.metrics != nil {
		c.tracker.observe = c.metrics.observeAck
	}
	if cfg.EnableTracing {
		c.tracer = otel.Tracer("relink-client")
	}

	if cfg.AutoConnect {
		go func() {
			if err := c.Connect(context.Background()); err != nil {
				c.logger.Warn("auto connect failed", slog.Any("error", err))
			}
		}()
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the current session. The zero Session
// means no handshake has completed yet.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// OnStateChange registers a handler for lifecycle transitions. Handlers
// run on a dedicated goroutine, one transition at a time, in the order the
// transitions happened; they may call back into the client.
func (c *Client) OnStateChange(fn func(StateChange)) *StateRegistration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubID++
	reg := &StateRegistration{id: c.stateSubID, fn: fn}
	c.stateSubs = append(c.stateSubs, reg)
	return reg
}

// OffStateChange removes a handler registered with OnStateChange. It
// reports false when the handle was already removed.
func (c *Client) OffStateChange(reg *StateRegistration) bool {
	if reg == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.stateSubs {
		if sub != reg {
			continue
		}
		next := make([]*StateRegistration, 0, len(c.stateSubs)-1)
		next = append(next, c.stateSubs[:i]...)
		next = append(next, c.stateSubs[i+1:]...)
		c.stateSubs = next
		return true
	}
	return false
}

// On registers a handler for events on the given channel and event name
// and returns its registration handle.
func (c *Client) On(channel, name string, fn Handler) *Registration {
	return c.dispatcher.on(channel, name, false, fn)
}

// OnOnce registers a handler that is removed after its first invocation.
func (c *Client) OnOnce(channel, name string, fn Handler) *Registration {
	return c.dispatcher.on(channel, name, true, fn)
}

// Off removes a handler by its registration handle. It reports false when
// the handle was already removed.
func (c *Client) Off(reg *Registration) bool {
	return c.dispatcher.off(reg)
}

// Connect moves the client toward StateConnected and blocks until the
// connection is established, the client gives up (StateFailed), or ctx is
// done. While reconnection is enabled the full retry schedule runs before
// Connect returns an error. A ctx cancellation only abandons the wait; use
// Disconnect to abort the attempt itself.
//
// Calling Connect while a connection attempt is already in flight joins
// that attempt. Calling it while connected returns nil immediately.
func (c *Client) Connect(ctx context.Context) error {
	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "relink.connect",
			trace.WithAttributes(attribute.String("relink.url", c.cfg.URL)))
		defer span.End()
	}
	err := c.connect(ctx)
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting, StateReconnecting:
		w := make(chan error, 1)
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()
		return awaitOutcome(ctx, w)
	}

	c.backoff.Reset()
	w := make(chan error, 1)
	c.waiters = append(c.waiters, w)
	epoch := c.nextEpochLocked()
	c.transitionLocked(StateConnecting, false, nil)
	c.mu.Unlock()

	go c.runConnect(epoch)
	return awaitOutcome(ctx, w)
}

func awaitOutcome(ctx context.Context, w chan error) error {
	select {
	case err := <-w:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection deliberately: it cancels any pending
// reconnection, rejects in-flight calls, drops queued frames, and leaves
// the client in StateDisconnected. The client can Connect again afterward.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	switch c.state {
	case StateDisconnected, StateDisconnecting:
		c.mu.Unlock()
		return nil
	case StateFailed:
		c.transitionLocked(StateDisconnected, false, nil)
		c.mu.Unlock()
		return nil
	}

	// StateConnecting, StateReconnecting or StateConnected.
	connected := c.state == StateConnected
	c.nextEpochLocked()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	waiters := c.waiters
	c.waiters = nil
	c.transitionLocked(StateDisconnecting, false, nil)
	c.teardownLocked(connected)
	c.queue = nil
	// A deliberate close ends the logical session too; the server drops
	// its side on the disconnect frame, so there is nothing to resume.
	c.sess = Session{}
	c.transitionLocked(StateDisconnected, false, nil)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- ErrConnectionClosed
	}
	c.tracker.rejectAll(&TransportError{Op: "close", Err: ErrConnectionClosed})
	c.logger.Info("disconnected")
	return nil
}

// Close disconnects and permanently shuts the client down. Every
// subsequent operation returns ErrClientClosed. Close is idempotent.
func (c *Client) Close() error {
	err := c.Disconnect()
	if errors.Is(err, ErrClientClosed) {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.notifier.close()
	return err
}

// Emit sends a fire-and-forget event. It never blocks: while disconnected
// the frame is buffered and flushed on the next connection, and a full
// queue fails fast with ErrSendQueueFull. Delivery failures after
// acceptance are not reported; use Call for that.
func (c *Client) Emit(channel, name string, args ...protocol.Value) error {
	m := &protocol.EventMessage{Channel: channel, Name: name, Args: args}
	if err := c.enqueue(protocol.NewEventFrame(m).Encode()); err != nil {
		return err
	}
	c.metrics.observeEventSent()
	return nil
}

// Call sends an acknowledged event and returns immediately with its Call
// handle; Done signals when the server replies or the retry schedule is
// exhausted. The encoded frame is retransmitted verbatim up to
// MaxAckRetries times, each transmission waiting AckTimeout.
func (c *Client) Call(channel, name string, args ...protocol.Value) *Call {
	call := &Call{
		Channel: channel,
		Name:    name,
		Args:    args,
		Done:    make(chan *Call, 1),
	}
	id := c.tracker.next()
	m := &protocol.EventMessage{Channel: channel, Name: name, AckID: id, Args: args}
	frame := protocol.NewEventFrame(m).Encode()

	// Track before sending so a reply cannot race the bookkeeping.
	c.tracker.track(id, call, frame)
	if err := c.enqueue(frame); err != nil {
		c.tracker.fail(id, err)
		return call
	}
	c.metrics.observeEventSent()
	return call
}

// CallContext is Call with blocking semantics: it waits for the ack, the
// retry schedule, or ctx, whichever finishes first. On ctx expiry the call
// is abandoned and its retransmissions stop.
func (c *Client) CallContext(ctx context.Context, channel, name string, args ...protocol.Value) ([]protocol.Value, error) {
	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "relink.call", trace.WithAttributes(
			attribute.String("relink.channel", channel),
			attribute.String("relink.event", name),
		))
		defer span.End()
	}
	reply, err := c.callContext(ctx, channel, name, args...)
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reply, err
}

func (c *Client) callContext(ctx context.Context, channel, name string, args ...protocol.Value) ([]protocol.Value, error) {
	call := c.Call(channel, name, args...)
	select {
	case <-ctx.Done():
		c.tracker.fail(call.id, ctx.Err())
		<-call.Done
	case <-call.Done:
	}
	return call.Reply, call.Error
}

// enqueue hands a frame to the current connection's writer, or buffers it
// until one exists. It never blocks.
func (c *Client) enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.state == StateConnected && c.writeCh != nil {
		select {
		case c.writeCh <- frame:
			return nil
		default:
			return ErrSendQueueFull
		}
	}
	if len(c.queue) >= c.cfg.SendQueueSize {
		return ErrSendQueueFull
	}
	c.queue = append(c.queue, frame)
	return nil
}

// nextEpochLocked invalidates every callback tagged with a previous epoch.
func (c *Client) nextEpochLocked() uint64 {
	c.epoch++
	return c.epoch
}

// transitionLocked records a state change and queues it for handler
// delivery. Callers hold c.mu.
func (c *Client) transitionLocked(to State, recovered bool, err error) {
	from := c.state
	c.state = to
	c.metrics.observeState(to)
	c.logger.Debug("state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	subs := make([]*StateRegistration, len(c.stateSubs))
	copy(subs, c.stateSubs)
	c.notifier.push(StateChange{From: from, To: to, Recovered: recovered, Err: err}, subs)
}

func (c *Client) runConnect(epoch uint64) {
	err := c.establish(epoch)
	if err == nil || errors.Is(err, errAttemptSuperseded) {
		return
	}
	c.connectFailed(epoch, err)
}

// establish performs one full connection attempt: dial, handshake,
// recovery evaluation, and goroutine startup. On success the client is in
// StateConnected before it returns.
func (c *Client) establish(epoch uint64) error {
	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.state != StateConnecting {
		c.mu.Unlock()
		return errAttemptSuperseded
	}
	prev := c.sess
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	tr, err := c.cfg.Dial(dialCtx, c.cfg.URL)
	cancel()
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}

	ack, err := c.handshake(tr, prev)
	if err != nil {
		tr.Close()
		return err
	}

	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.state != StateConnecting {
		c.mu.Unlock()
		tr.Close()
		return errAttemptSuperseded
	}
	sess := evaluateRecovery(prev, ack.SessionID, ack.Recovered, ack.LastKnownSeq)
	c.sess = sess
	c.tr = tr
	pingInterval := c.cfg.PingInterval
	if ack.PingInterval > 0 {
		pingInterval = time.Duration(ack.PingInterval) * time.Millisecond
	}
	readTimeout := pingInterval + c.cfg.PingTimeout

	carried := c.tracker.carriedFrames()
	queued := c.queue
	c.queue = nil
	writeCh := make(chan []byte, c.cfg.SendQueueSize+len(carried)+len(queued))
	for _, f := range carried {
		writeCh <- f
	}
	for _, f := range queued {
		writeCh <- f
	}
	c.writeCh = writeCh
	done := make(chan struct{})
	c.connDone = done
	c.backoff.Reset()
	waiters := c.waiters
	c.waiters = nil
	c.transitionLocked(StateConnected, sess.Recovered, nil)
	c.mu.Unlock()

	for range carried {
		c.metrics.observeRetransmission()
	}
	c.tracker.resume()
	c.metrics.observeConnect()
	c.logger.Info("connected",
		slog.String("session_id", sess.ID),
		slog.Bool("recovered", sess.Recovered),
	)

	go c.readLoop(epoch, tr, readTimeout)
	go c.writeLoop(epoch, tr, writeCh, done, pingInterval)

	for _, w := range waiters {
		w <- nil
	}
	return nil
}

// handshake runs the connect exchange on a fresh transport, offering the
// previous session for recovery.
func (c *Client) handshake(tr Transport, prev Session) (*protocol.ConnectAck, error) {
	req := &protocol.ConnectRequest{
		Version:    protocol.CurrentVersion,
		Credential: c.cfg.Credential,
		SessionID:  prev.ID,
		LastSeq:    prev.LastSeq,
	}
	frame := protocol.NewFrame(protocol.FrameConnect, protocol.EncodeConnectRequest(req))

	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if err := tr.SetWriteDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "handshake", Err: err}
	}
	if err := tr.WriteMessage(frame.Encode()); err != nil {
		return nil, &TransportError{Op: "handshake", Err: err}
	}
	if err := tr.SetReadDeadline(deadline); err != nil {
		return nil, &TransportError{Op: "handshake", Err: err}
	}
	data, err := tr.ReadMessage()
	if err != nil {
		return nil, &TransportError{Op: "handshake", Err: err}
	}
	reply, err := protocol.DecodeFrame(data)
	if err != nil {
		return nil, &TransportError{Op: "handshake", Err: err}
	}
	switch reply.Type {
	case protocol.FrameConnectAck:
	case protocol.FrameError:
		if em, decErr := protocol.DecodeErrorMessage(reply.Payload); decErr == nil {
			return nil, &TransportError{Op: "handshake", Err: em}
		}
		return nil, &TransportError{Op: "handshake", Err: fmt.Errorf("undecodable %s frame", reply.Type)}
	default:
		return nil, &TransportError{Op: "handshake", Err: fmt.Errorf("unexpected %s frame", reply.Type)}
	}
	ack, err := protocol.DecodeConnectAck(reply.Payload)
	if err != nil {
		return nil, &TransportError{Op: "handshake", Err: err}
	}
	if ack.Status != protocol.HandshakeOK {
		c.metrics.observeHandshakeFailure(ack.Status.String())
		return nil, &HandshakeError{Status: ack.Status}
	}
	return ack, nil
}

func (c *Client) connectFailed(epoch uint64, cause error) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("connection attempt failed", slog.Any("error", cause))
	c.scheduleRetryLocked(cause)
	c.mu.Unlock()
}

// connLost handles an established connection dying underneath us.
func (c *Client) connLost(epoch uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch || c.state != StateConnected {
		return
	}
	c.logger.Warn("connection lost", slog.Any("error", cause))
	c.teardownLocked(false)
	// Pending calls are settled before any retry is armed, so a fast
	// reconnect cannot observe them half-suspended.
	retain := c.cfg.RetainPendingOnReconnect && !c.cfg.DisableReconnection
	c.tracker.suspend(retain, cause)
	c.scheduleRetryLocked(cause)
}

// scheduleRetryLocked decides what a failure means: a timer-driven retry,
// or StateFailed when retrying is pointless or exhausted. Callers hold
// c.mu with state Connecting or Connected.
func (c *Client) scheduleRetryLocked(cause error) {
	var hs *HandshakeError
	if errors.As(cause, &hs) && !hs.Temporary() {
		c.failLocked(cause)
		return
	}
	if c.cfg.DisableReconnection {
		c.failLocked(cause)
		return
	}
	delay, ok := c.backoff.Next()
	if !ok {
		c.failLocked(&ReconnectionExhaustedError{Attempts: c.backoff.Attempts(), LastErr: cause})
		return
	}
	c.transitionLocked(StateReconnecting, false, cause)
	c.metrics.observeReconnectAttempt()
	c.logger.Info("reconnecting", slog.Duration("delay", delay))
	c.reconnectTimer = time.AfterFunc(delay, c.reconnectFire)
}

func (c *Client) reconnectFire() {
	c.mu.Lock()
	if c.closed || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	epoch := c.nextEpochLocked()
	c.transitionLocked(StateConnecting, false, nil)
	c.mu.Unlock()
	go c.runConnect(epoch)
}

// failLocked enters the terminal StateFailed: waiters and pending calls
// are rejected with err and buffered frames dropped. Callers hold c.mu.
func (c *Client) failLocked(err error) {
	c.transitionLocked(StateFailed, false, err)
	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		w <- err
	}
	c.queue = nil
	c.tracker.rejectAll(err)
	c.logger.Error("giving up", slog.Any("error", err))
}

// teardownLocked closes the current transport and stops its writer. With
// sendBye it first offers the server an orderly disconnect frame.
func (c *Client) teardownLocked(sendBye bool) {
	if c.tr != nil {
		if sendBye {
			dm := protocol.NewDisconnect(protocol.DisconnectNormal, "")
			frame := protocol.NewFrame(protocol.FrameDisconnect, protocol.EncodeDisconnect(dm))
			c.tr.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.tr.WriteMessage(frame.Encode()); err != nil {
				c.logger.Debug("disconnect frame not sent", slog.Any("error", err))
			}
		}
		c.tr.Close()
		c.tr = nil
	}
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.writeCh = nil
}

// serverDisconnect handles an orderly close initiated by the server. The
// client does not reconnect; the server asked us to leave.
func (c *Client) serverDisconnect(epoch uint64, dm *protocol.DisconnectMessage) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.logger.Info("server closed the session",
		slog.String("reason", dm.Reason.String()),
		slog.String("message", dm.Message),
	)
	c.nextEpochLocked()
	c.transitionLocked(StateDisconnecting, false, nil)
	c.teardownLocked(false)
	c.queue = nil
	c.sess = Session{}
	c.transitionLocked(StateDisconnected, false, nil)
	c.mu.Unlock()

	c.tracker.rejectAll(&TransportError{Op: "close", Err: ErrConnectionClosed})
}

func (c *Client) readLoop(epoch uint64, tr Transport, readTimeout time.Duration) {
	for {
		if err := tr.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			c.connLost(epoch, &TransportError{Op: "read", Err: err})
			return
		}
		data, err := tr.ReadMessage()
		if err != nil {
			c.connLost(epoch, &TransportError{Op: "read", Err: err})
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", slog.Any("error", err))
			continue
		}
		if !c.handleFrame(epoch, frame) {
			return
		}
	}
}

// handleFrame routes one inbound frame. It reports false when the read
// loop should stop because the connection is being torn down.
func (c *Client) handleFrame(epoch uint64, frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.FrameEvent:
		m, err := protocol.DecodeEvent(frame.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed event", slog.Any("error", err))
			return true
		}
		c.handleEvent(epoch, m)

	case protocol.FrameAckReply:
		m, err := protocol.DecodeAckReply(frame.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed ack reply", slog.Any("error", err))
			return true
		}
		if !c.tracker.resolve(m.AckID, m.Args) {
			c.logger.Debug("ignoring ack with no pending call", slog.Uint64("ack_id", m.AckID))
		}

	case protocol.FrameControl:
		ct, pp, err := protocol.DecodeControl(frame.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed control frame", slog.Any("error", err))
			return true
		}
		if ct == protocol.ControlPing {
			pongType, pong := protocol.NewPong(pp.Timestamp)
			reply := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(pongType, pong))
			if err := c.enqueue(reply.Encode()); err != nil {
				c.logger.Debug("could not queue pong", slog.Any("error", err))
			}
		}

	case protocol.FrameDisconnect:
		dm, err := protocol.DecodeDisconnect(frame.Payload)
		if err != nil {
			dm = protocol.NewDisconnect(protocol.DisconnectError, "")
		}
		c.serverDisconnect(epoch, dm)
		return false

	case protocol.FrameError:
		em, err := protocol.DecodeErrorMessage(frame.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed error frame", slog.Any("error", err))
			return true
		}
		if em.IsFatal() {
			c.connLost(epoch, em)
			return false
		}
		c.logger.Warn("server reported an error",
			slog.String("code", em.Code.String()),
			slog.String("message", em.Message),
		)

	default:
		c.logger.Warn("ignoring unexpected frame", slog.String("type", frame.Type.String()))
	}
	return true
}

// handleEvent deduplicates, acknowledges and dispatches one inbound event.
func (c *Client) handleEvent(epoch uint64, m *protocol.EventMessage) {
	if m.Sequenced() {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		if m.Seq <= c.sess.LastSeq {
			c.mu.Unlock()
			c.metrics.observeDuplicate()
			c.logger.Debug("dropping duplicate event",
				slog.Uint64("seq", m.Seq),
				slog.String("event", m.Name),
			)
			// Still acknowledged: the server resent because it never
			// learned the first delivery arrived.
			c.ackIfWanted(m)
			return
		}
		c.sess.LastSeq = m.Seq
		c.mu.Unlock()
	}
	c.ackIfWanted(m)
	c.metrics.observeEventReceived()
	c.dispatcher.dispatch(m.Channel, m.Name, m.Args)
}

// ackIfWanted queues a delivery receipt for events that request one.
func (c *Client) ackIfWanted(m *protocol.EventMessage) {
	if !m.WantsAck() {
		return
	}
	reply := protocol.NewAckReplyFrame(&protocol.AckReplyMessage{AckID: m.AckID})
	if err := c.enqueue(reply.Encode()); err != nil {
		c.logger.Debug("could not queue delivery ack", slog.Any("error", err))
	}
}

func (c *Client) writeLoop(epoch uint64, tr Transport, ch <-chan []byte, done <-chan struct{}, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case frame := <-ch:
			if err := c.write(tr, frame); err != nil {
				c.connLost(epoch, &TransportError{Op: "write", Err: err})
				return
			}
		case <-ticker.C:
			pingType, ping := protocol.NewPing(uint64(time.Now().UnixMilli()))
			frame := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(pingType, ping))
			if err := c.write(tr, frame.Encode()); err != nil {
				c.connLost(epoch, &TransportError{Op: "write", Err: err})
				return
			}
		}
	}
}

func (c *Client) write(tr Transport, frame []byte) error {
	if err := tr.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return tr.WriteMessage(frame)
}
