package protocol

// HandshakeStatus represents the result of a handshake.
type HandshakeStatus uint8

const (
	HandshakeOK              HandshakeStatus = 0x00
	HandshakeVersionMismatch HandshakeStatus = 0x01
	HandshakeNotAuthorized   HandshakeStatus = 0x02 // Credential rejected
	HandshakeSessionExpired  HandshakeStatus = 0x03
	HandshakeServerBusy      HandshakeStatus = 0x04
	HandshakeInvalidFormat   HandshakeStatus = 0x05 // Malformed handshake message
	HandshakeInternalError   HandshakeStatus = 0x06 // Server error
)

// String returns the string representation of the handshake status.
func (hs HandshakeStatus) String() string {
	switch hs {
	case HandshakeOK:
		return "OK"
	case HandshakeVersionMismatch:
		return "VersionMismatch"
	case HandshakeNotAuthorized:
		return "NotAuthorized"
	case HandshakeSessionExpired:
		return "SessionExpired"
	case HandshakeServerBusy:
		return "ServerBusy"
	case HandshakeInvalidFormat:
		return "InvalidFormat"
	case HandshakeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Retryable reports whether a client may retry the handshake after this
// status. Credential and version rejections are permanent; capacity and
// session problems are not.
func (hs HandshakeStatus) Retryable() bool {
	switch hs {
	case HandshakeServerBusy, HandshakeSessionExpired, HandshakeInternalError:
		return true
	default:
		return false
	}
}

// ProtocolVersion represents a protocol version as major.minor.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// CurrentVersion is the current protocol version.
var CurrentVersion = ProtocolVersion{Major: 1, Minor: 0}

// ConnectRequest is sent by the client once the transport is established.
type ConnectRequest struct {
	Version    ProtocolVersion // Protocol version
	Credential string          // Opaque credential, passed through to the server
	SessionID  string          // Existing session ID (empty if new)
	LastSeq    uint64          // Highest server sequence number processed
}

// ConnectAck is the server's response to ConnectRequest.
type ConnectAck struct {
	Status       HandshakeStatus // Handshake result
	SessionID    string          // Session ID (new or resumed)
	Recovered    bool            // True if the previous session was resumed
	LastKnownSeq uint64          // Server's view of the session's last sequence
	ServerTime   uint64          // Server time in Unix milliseconds
	PingInterval uint32          // Heartbeat interval in ms (0 = client default)
}

// EncodeConnectRequest encodes a ConnectRequest to bytes.
func EncodeConnectRequest(cr *ConnectRequest) []byte {
	e := NewEncoder()
	EncodeConnectRequestTo(e, cr)
	return e.Bytes()
}

// EncodeConnectRequestTo encodes a ConnectRequest using the provided encoder.
func EncodeConnectRequestTo(e *Encoder, cr *ConnectRequest) {
	e.WriteByte(cr.Version.Major)
	e.WriteByte(cr.Version.Minor)
	e.WriteString(cr.Credential)
	e.WriteString(cr.SessionID)
	e.WriteUvarint(cr.LastSeq)
}

// DecodeConnectRequest decodes a ConnectRequest from bytes.
func DecodeConnectRequest(data []byte) (*ConnectRequest, error) {
	d := NewDecoder(data)
	return DecodeConnectRequestFrom(d)
}

// DecodeConnectRequestFrom decodes a ConnectRequest from a decoder.
func DecodeConnectRequestFrom(d *Decoder) (*ConnectRequest, error) {
	cr := &ConnectRequest{}
	var err error

	major, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	minor, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	cr.Version = ProtocolVersion{Major: major, Minor: minor}

	cr.Credential, err = d.ReadString()
	if err != nil {
		return nil, err
	}

	cr.SessionID, err = d.ReadString()
	if err != nil {
		return nil, err
	}

	cr.LastSeq, err = d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	return cr, nil
}

// EncodeConnectAck encodes a ConnectAck to bytes.
func EncodeConnectAck(ca *ConnectAck) []byte {
	e := NewEncoder()
	EncodeConnectAckTo(e, ca)
	return e.Bytes()
}

// EncodeConnectAckTo encodes a ConnectAck using the provided encoder.
func EncodeConnectAckTo(e *Encoder, ca *ConnectAck) {
	e.WriteByte(byte(ca.Status))
	e.WriteString(ca.SessionID)
	e.WriteBool(ca.Recovered)
	e.WriteUvarint(ca.LastKnownSeq)
	e.WriteUint64(ca.ServerTime)
	e.WriteUvarint(uint64(ca.PingInterval))
}

// DecodeConnectAck decodes a ConnectAck from bytes.
func DecodeConnectAck(data []byte) (*ConnectAck, error) {
	d := NewDecoder(data)
	return DecodeConnectAckFrom(d)
}

// DecodeConnectAckFrom decodes a ConnectAck from a decoder.
func DecodeConnectAckFrom(d *Decoder) (*ConnectAck, error) {
	ca := &ConnectAck{}
	var err error

	status, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ca.Status = HandshakeStatus(status)

	ca.SessionID, err = d.ReadString()
	if err != nil {
		return nil, err
	}

	ca.Recovered, err = d.ReadBool()
	if err != nil {
		return nil, err
	}

	ca.LastKnownSeq, err = d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	ca.ServerTime, err = d.ReadUint64()
	if err != nil {
		return nil, err
	}

	interval, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ca.PingInterval = uint32(interval)

	return ca, nil
}

// NewConnectRequest creates a new ConnectRequest with the current version.
func NewConnectRequest(credential string) *ConnectRequest {
	return &ConnectRequest{
		Version:    CurrentVersion,
		Credential: credential,
	}
}

// NewConnectAck creates a new successful ConnectAck.
func NewConnectAck(sessionID string, recovered bool, lastKnownSeq, serverTime uint64) *ConnectAck {
	return &ConnectAck{
		Status:       HandshakeOK,
		SessionID:    sessionID,
		Recovered:    recovered,
		LastKnownSeq: lastKnownSeq,
		ServerTime:   serverTime,
	}
}

// NewConnectAckError creates a ConnectAck with an error status.
func NewConnectAckError(status HandshakeStatus) *ConnectAck {
	return &ConnectAck{
		Status: status,
	}
}
