package relaytest

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relink-dev/relink/pkg/protocol"
)

// ErrUnknownSession is returned by Push when no session has the given id.
var ErrUnknownSession = errors.New("relaytest: unknown session")

// Handler processes one client event. The returned values become the ack
// reply arguments when the event requests an acknowledgment.
type Handler func(sessionID string, args []protocol.Value) []protocol.Value

// Config configures a relay Server. The zero value is usable.
type Config struct {
	// Authorize validates handshake credentials. Nil accepts everything.
	Authorize func(credential string) bool

	// HistorySize is the per-session replay buffer capacity, in events.
	// Default: 128.
	HistorySize int

	// ResumeWindow is how long a detached session stays resumable.
	// Default: 2 minutes.
	ResumeWindow time.Duration

	// PingInterval is the heartbeat interval advertised to clients in the
	// handshake ack. Default: 0, meaning clients keep their own default.
	PingInterval time.Duration

	// WriteTimeout bounds each websocket write. Default: 10 seconds.
	WriteTimeout time.Duration

	// Logger receives server logs. Default: slog.Default().
	Logger *slog.Logger
}

// Server is an in-process relay implementing the server side of the
// protocol: handshake with session recovery, sequenced pushes with replay,
// ack replies, and heartbeat. It exists so client behavior can be
// exercised against real frames over a real connection, and it backs the
// demo `serve` command. It is not a production server: there is no
// authentication beyond the Authorize hook, no limits, no persistence.
type Server struct {
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	authorize    func(credential string) bool
	historySize  int
	resumeWindow time.Duration
	pingInterval time.Duration
	writeTimeout time.Duration

	mu         sync.Mutex
	sessions   map[string]*session
	handlers   map[handlerKey]Handler
	rejectNext []protocol.HandshakeStatus
	refuse     bool
	silence    bool
	closed     bool
}

type handlerKey struct {
	channel string
	name    string
}

// New creates a relay server. Mount it on any mux, or hand it straight to
// httptest.NewServer.
func New(cfg Config) *Server {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 128
	}
	if cfg.ResumeWindow <= 0 {
		cfg.ResumeWindow = 2 * time.Minute
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		logger:       cfg.Logger.With("component", "relaytest"),
		authorize:    cfg.Authorize,
		historySize:  cfg.HistorySize,
		resumeWindow: cfg.ResumeWindow,
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
		handlers: make(map[handlerKey]Handler),
	}
}

// Handle registers fn for events on the given channel and name. An empty
// name registers a channel-wide fallback consulted when no exact name
// matches. Handlers run on the owning session's read loop, one event at a
// time per client.
func (s *Server) Handle(channel, name string, fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[handlerKey{channel, name}] = fn
}

// Push sends a sequenced event to one session. Detached sessions record
// the event for replay on resume.
func (s *Server) Push(sessionID, channel, name string, args ...protocol.Value) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	sess.push(channel, name, args)
	return nil
}

// Broadcast sends a sequenced event to every session, detached ones
// included.
func (s *Server) Broadcast(channel, name string, args ...protocol.Value) {
	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.push(channel, name, args)
	}
}

// RejectNextHandshake makes the server answer the next handshake with the
// given status instead of accepting it. Calls queue up in order.
func (s *Server) RejectNextHandshake(status protocol.HandshakeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = append(s.rejectNext, status)
}

// RefuseDial makes the server reject requests before the websocket
// upgrade, so dial attempts fail at the transport level.
func (s *Server) RefuseDial(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// SilenceAcks suppresses ack replies to client events, forcing clients
// into their retransmission path.
func (s *Server) SilenceAcks(silence bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silence = silence
}

// DropConnection severs a session's transport without ending the session,
// as a network fault would. Reports whether a connection was dropped.
func (s *Server) DropConnection(sessionID string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()

	return ok && sess.dropConn()
}

// Close ends every session and rejects further connections.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.close()
	}
}

// ServeHTTP upgrades the request and runs the protocol handshake.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	refuse := s.refuse || s.closed
	s.mu.Unlock()

	if refuse {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(int64(protocol.MaxPayloadSize) + protocol.FrameHeaderSize)
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		s.logger.Debug("handshake read failed", "error", err)
		conn.Close()
		return
	}

	frame, err := protocol.DecodeFrame(msg)
	if err != nil || frame.Type != protocol.FrameConnect {
		s.sendHandshakeError(conn, protocol.HandshakeInvalidFormat)
		conn.Close()
		return
	}

	req, err := protocol.DecodeConnectRequest(frame.Payload)
	if err != nil {
		s.sendHandshakeError(conn, protocol.HandshakeInvalidFormat)
		conn.Close()
		return
	}

	if status, injected := s.popRejection(); injected {
		s.sendHandshakeError(conn, status)
		conn.Close()
		return
	}

	if req.Version.Major != protocol.CurrentVersion.Major {
		s.sendHandshakeError(conn, protocol.HandshakeVersionMismatch)
		conn.Close()
		return
	}

	if s.authorize != nil && !s.authorize(req.Credential) {
		s.sendHandshakeError(conn, protocol.HandshakeNotAuthorized)
		conn.Close()
		return
	}

	s.completeHandshake(conn, req)
}

// completeHandshake resolves the resume request, answers it, replays
// missed frames, and installs the connection. The session lock is held
// from the recovery decision through the install so a concurrent push is
// either replayed from history or written live — never lost between the
// two.
func (s *Server) completeHandshake(conn *websocket.Conn, req *protocol.ConnectRequest) {
	s.mu.Lock()

	var sess *session
	var recovered bool

	if req.SessionID != "" {
		if prev, ok := s.sessions[req.SessionID]; ok {
			prev.mu.Lock()
			resumable := !prev.gone &&
				(prev.conn != nil || time.Since(prev.detachedAt) <= s.resumeWindow) &&
				prev.history.canRecover(req.LastSeq)
			if resumable {
				sess = prev
				recovered = true
			} else {
				prev.mu.Unlock()
				delete(s.sessions, req.SessionID)
				prev.close()
			}
		}
	}

	if sess == nil {
		sess = &session{
			id:      uuid.New().String(),
			srv:     s,
			history: newEventHistory(s.historySize),
		}
		sess.logger = s.logger.With("session_id", sess.id)
		s.sessions[sess.id] = sess
		sess.mu.Lock()
	}

	s.mu.Unlock()

	ack := protocol.NewConnectAck(sess.id, recovered, sess.lastSeq, uint64(time.Now().UnixMilli()))
	ack.PingInterval = uint32(s.pingInterval / time.Millisecond)
	ackFrame := protocol.NewFrame(protocol.FrameConnectAck, protocol.EncodeConnectAck(ack))

	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, ackFrame.Encode()); err != nil {
		sess.mu.Unlock()
		s.logger.Debug("handshake write failed", "error", err)
		conn.Close()
		return
	}

	var replay [][]byte
	if recovered {
		replay = sess.history.frames(req.LastSeq)
	}

	conn.SetReadDeadline(time.Time{})
	if old := sess.conn; old != nil {
		old.Close()
	}
	sess.conn = conn
	for _, frame := range replay {
		sess.writeLocked(frame)
	}
	sess.mu.Unlock()

	s.logger.Info("session attached",
		"session_id", sess.id,
		"recovered", recovered,
		"replayed", len(replay))

	go sess.readLoop(conn)
}

func (s *Server) popRejection() (protocol.HandshakeStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.rejectNext) == 0 {
		return 0, false
	}
	status := s.rejectNext[0]
	s.rejectNext = s.rejectNext[1:]
	return status, true
}

func (s *Server) sendHandshakeError(conn *websocket.Conn, status protocol.HandshakeStatus) {
	ack := protocol.NewConnectAckError(status)
	frame := protocol.NewFrame(protocol.FrameConnectAck, protocol.EncodeConnectAck(ack))

	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	conn.WriteMessage(websocket.BinaryMessage, frame.Encode())
}

// invokeHandler runs the handler registered for the event, recovering
// panics so a bad handler cannot kill the session's read loop.
func (s *Server) invokeHandler(sessionID string, ev *protocol.EventMessage) []protocol.Value {
	s.mu.Lock()
	fn := s.handlers[handlerKey{ev.Channel, ev.Name}]
	if fn == nil {
		fn = s.handlers[handlerKey{ev.Channel, ""}]
	}
	s.mu.Unlock()

	if fn == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic",
				"channel", ev.Channel,
				"name", ev.Name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	return fn(sessionID, ev.Args)
}

func (s *Server) acksSilenced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silence
}

func (s *Server) forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
