package protocol

// ControlType identifies the type of control message.
type ControlType uint8

const (
	ControlPing ControlType = 0x01 // Heartbeat probe
	ControlPong ControlType = 0x02 // Response to ping
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// PingPong is the payload for Ping and Pong messages.
type PingPong struct {
	Timestamp uint64 // Unix timestamp in milliseconds
}

// EncodeControl encodes a control message to bytes.
func EncodeControl(ct ControlType, pp *PingPong) []byte {
	e := NewEncoder()
	EncodeControlTo(e, ct, pp)
	return e.Bytes()
}

// EncodeControlTo encodes a control message using the provided encoder.
func EncodeControlTo(e *Encoder, ct ControlType, pp *PingPong) {
	e.WriteByte(byte(ct))
	if pp != nil {
		e.WriteUint64(pp.Timestamp)
	} else {
		e.WriteUint64(0)
	}
}

// DecodeControl decodes a control message from bytes.
func DecodeControl(data []byte) (ControlType, *PingPong, error) {
	d := NewDecoder(data)
	return DecodeControlFrom(d)
}

// DecodeControlFrom decodes a control message from a decoder.
func DecodeControlFrom(d *Decoder) (ControlType, *PingPong, error) {
	typeByte, err := d.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	ct := ControlType(typeByte)

	ts, err := d.ReadUint64()
	if err != nil {
		return ct, nil, err
	}
	return ct, &PingPong{Timestamp: ts}, nil
}

// NewPing creates a new Ping message.
func NewPing(timestamp uint64) (ControlType, *PingPong) {
	return ControlPing, &PingPong{Timestamp: timestamp}
}

// NewPong creates a new Pong message.
func NewPong(timestamp uint64) (ControlType, *PingPong) {
	return ControlPong, &PingPong{Timestamp: timestamp}
}

// DisconnectReason indicates why a connection is being torn down.
type DisconnectReason uint8

const (
	DisconnectNormal         DisconnectReason = 0x00 // Normal closure
	DisconnectGoingAway      DisconnectReason = 0x01 // Client/server going away
	DisconnectSessionExpired DisconnectReason = 0x02 // Session expired
	DisconnectServerShutdown DisconnectReason = 0x03 // Server shutting down
	DisconnectError          DisconnectReason = 0x04 // Error occurred
)

// String returns the string representation of the disconnect reason.
func (dr DisconnectReason) String() string {
	switch dr {
	case DisconnectNormal:
		return "Normal"
	case DisconnectGoingAway:
		return "GoingAway"
	case DisconnectSessionExpired:
		return "SessionExpired"
	case DisconnectServerShutdown:
		return "ServerShutdown"
	case DisconnectError:
		return "Error"
	default:
		return "Unknown"
	}
}

// DisconnectMessage is sent when tearing down a connection on purpose.
type DisconnectMessage struct {
	Reason  DisconnectReason
	Message string
}

// EncodeDisconnect encodes a DisconnectMessage to bytes.
func EncodeDisconnect(dm *DisconnectMessage) []byte {
	e := NewEncoder()
	EncodeDisconnectTo(e, dm)
	return e.Bytes()
}

// EncodeDisconnectTo encodes a DisconnectMessage using the provided encoder.
func EncodeDisconnectTo(e *Encoder, dm *DisconnectMessage) {
	e.WriteByte(byte(dm.Reason))
	e.WriteString(dm.Message)
}

// DecodeDisconnect decodes a DisconnectMessage from bytes.
func DecodeDisconnect(data []byte) (*DisconnectMessage, error) {
	d := NewDecoder(data)
	return DecodeDisconnectFrom(d)
}

// DecodeDisconnectFrom decodes a DisconnectMessage from a decoder.
func DecodeDisconnectFrom(d *Decoder) (*DisconnectMessage, error) {
	reason, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &DisconnectMessage{
		Reason:  DisconnectReason(reason),
		Message: message,
	}, nil
}

// NewDisconnect creates a new DisconnectMessage.
func NewDisconnect(reason DisconnectReason, message string) *DisconnectMessage {
	return &DisconnectMessage{Reason: reason, Message: message}
}
