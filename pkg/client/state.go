package client

// State is the connection lifecycle state of a Client.
//
// Transitions:
//
//	DISCONNECTED --Connect--> CONNECTING --handshake ok--> CONNECTED
//	CONNECTING   --failure--> RECONNECTING (delay) --> CONNECTING
//	CONNECTING   --rejected or exhausted--> FAILED
//	CONNECTED    --transport loss--> RECONNECTING or FAILED
//	CONNECTED    --Disconnect--> DISCONNECTING --> DISCONNECTED
//	FAILED       --Connect--> CONNECTING
//
// FAILED is terminal until the application calls Connect again.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnecting
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChange describes one lifecycle transition. Handlers registered with
// OnStateChange receive every transition in order.
type StateChange struct {
	// From is the state the client left.
	From State

	// To is the state the client entered.
	To State

	// Recovered is true on a transition into StateConnected when the
	// server resumed the previous session instead of issuing a fresh one.
	Recovered bool

	// Err is the cause for failure-driven transitions: the transport or
	// handshake error entering StateReconnecting, and the terminal error
	// entering StateFailed. Nil for orderly transitions.
	Err error
}

// Session identifies the server-side session the client is attached to.
type Session struct {
	// ID is the server-assigned session identifier. Empty until the first
	// handshake completes.
	ID string

	// LastSeq is the highest sequenced event number dispatched so far.
	// It is offered to the server on reconnect so delivery can resume
	// past it.
	LastSeq uint64

	// Recovered reports whether the current connection resumed this
	// session rather than starting a fresh one.
	Recovered bool
}

// evaluateRecovery decides, from the previous session and the server's
// handshake reply, whether the connection continues the old session.
//
// Recovery requires all of: the client had a session to resume, the server
// confirmed it retained that exact session, and the server's delivery log
// reaches at least as far as the client has already seen. Anything else
// means a fresh session; the client then adopts the server's sequence
// position wholesale.
func evaluateRecovery(prev Session, sessionID string, recovered bool, lastKnownSeq uint64) Session {
	if recovered && prev.ID != "" && sessionID == prev.ID && lastKnownSeq >= prev.LastSeq {
		return Session{ID: prev.ID, LastSeq: prev.LastSeq, Recovered: true}
	}
	return Session{ID: sessionID, LastSeq: lastKnownSeq, Recovered: false}
}
