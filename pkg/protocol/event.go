package protocol

// EventMessage is a named event with arguments, sent in either direction.
//
// Seq is the server-assigned delivery sequence number; zero means the
// event is unsequenced (client→server events always are). AckID is the
// sender's acknowledgment correlation id; zero means no ack is requested.
// Both are mirrored into the frame flags by NewEventFrame so receivers can
// route without a full decode.
type EventMessage struct {
	Channel string
	Name    string
	Seq     uint64
	AckID   uint64
	Args    []Value
}

// Sequenced reports whether the event carries a server sequence number.
func (m *EventMessage) Sequenced() bool { return m.Seq != 0 }

// WantsAck reports whether the sender requested an acknowledgment.
func (m *EventMessage) WantsAck() bool { return m.AckID != 0 }

// AckReplyMessage completes an ack-requesting event.
type AckReplyMessage struct {
	AckID uint64
	Args  []Value
}

// EncodeEvent encodes an event payload to bytes.
// Binary argument values are moved into the trailing attachment section.
func EncodeEvent(m *EventMessage) []byte {
	enc := NewEncoder()
	EncodeEventTo(enc, m)
	return enc.Bytes()
}

// EncodeEventTo encodes an event payload using the provided encoder.
func EncodeEventTo(enc *Encoder, m *EventMessage) {
	var atts [][]byte

	enc.WriteString(m.Channel)
	enc.WriteString(m.Name)
	enc.WriteUvarint(m.Seq)
	enc.WriteUvarint(m.AckID)
	encodeValues(enc, m.Args, &atts)
	encodeAttachments(enc, atts)
}

// DecodeEvent decodes an event payload from bytes.
func DecodeEvent(data []byte) (*EventMessage, error) {
	d := NewDecoder(data)
	return DecodeEventFrom(d)
}

// DecodeEventFrom decodes an event payload from a decoder.
func DecodeEventFrom(d *Decoder) (*EventMessage, error) {
	m := &EventMessage{}
	var err error

	m.Channel, err = d.ReadString()
	if err != nil {
		return nil, err
	}

	m.Name, err = d.ReadString()
	if err != nil {
		return nil, err
	}

	m.Seq, err = d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	m.AckID, err = d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	args, err := decodeValues(d)
	if err != nil {
		return nil, err
	}

	atts, err := decodeAttachments(d)
	if err != nil {
		return nil, err
	}

	m.Args, err = resolveValues(args, atts)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// EncodeAckReply encodes an ack reply payload to bytes.
func EncodeAckReply(m *AckReplyMessage) []byte {
	enc := NewEncoder()
	EncodeAckReplyTo(enc, m)
	return enc.Bytes()
}

// EncodeAckReplyTo encodes an ack reply payload using the provided encoder.
func EncodeAckReplyTo(enc *Encoder, m *AckReplyMessage) {
	var atts [][]byte

	enc.WriteUvarint(m.AckID)
	encodeValues(enc, m.Args, &atts)
	encodeAttachments(enc, atts)
}

// DecodeAckReply decodes an ack reply payload from bytes.
func DecodeAckReply(data []byte) (*AckReplyMessage, error) {
	d := NewDecoder(data)
	return DecodeAckReplyFrom(d)
}

// DecodeAckReplyFrom decodes an ack reply payload from a decoder.
func DecodeAckReplyFrom(d *Decoder) (*AckReplyMessage, error) {
	m := &AckReplyMessage{}
	var err error

	m.AckID, err = d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	args, err := decodeValues(d)
	if err != nil {
		return nil, err
	}

	atts, err := decodeAttachments(d)
	if err != nil {
		return nil, err
	}

	m.Args, err = resolveValues(args, atts)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NewEventFrame encodes an event into a ready-to-send frame, setting
// FlagSequenced and FlagAckRequest to mirror the payload.
func NewEventFrame(m *EventMessage) *Frame {
	var flags FrameFlags
	if m.Sequenced() {
		flags |= FlagSequenced
	}
	if m.WantsAck() {
		flags |= FlagAckRequest
	}
	return NewFrameWithFlags(FrameEvent, flags, EncodeEvent(m))
}

// NewAckReplyFrame encodes an ack reply into a ready-to-send frame.
func NewAckReplyFrame(m *AckReplyMessage) *Frame {
	return NewFrame(FrameAckReply, EncodeAckReply(m))
}
