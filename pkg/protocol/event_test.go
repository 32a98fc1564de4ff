package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func TestEventEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		event *EventMessage
	}{
		{
			name: "no args",
			event: &EventMessage{
				Channel: "chat",
				Name:    "typing",
			},
		},
		{
			name: "scalar args",
			event: &EventMessage{
				Channel: "chat",
				Name:    "message",
				Args:    []Value{String("room-1"), String("hello"), Int(3)},
			},
		},
		{
			name: "ack requested",
			event: &EventMessage{
				Channel: "orders",
				Name:    "submit",
				AckID:   17,
				Args:    []Value{Object(map[string]Value{"sku": String("A-99"), "qty": Int(2)})},
			},
		},
		{
			name: "sequenced from server",
			event: &EventMessage{
				Channel: "feed",
				Name:    "update",
				Seq:     512,
				Args:    []Value{Float(20.25)},
			},
		},
		{
			name: "binary attachment",
			event: &EventMessage{
				Channel: "files",
				Name:    "chunk",
				AckID:   3,
				Args:    []Value{String("upload-7"), Binary(bytes.Repeat([]byte{0x5A}, 2048))},
			},
		},
		{
			name: "empty channel and name",
			event: &EventMessage{
				Channel: "",
				Name:    "",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeEvent(tc.event)
			if len(encoded) == 0 {
				t.Fatal("encoded event is empty")
			}

			decoded, err := DecodeEvent(encoded)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}

			if decoded.Channel != tc.event.Channel {
				t.Errorf("Channel = %q, want %q", decoded.Channel, tc.event.Channel)
			}
			if decoded.Name != tc.event.Name {
				t.Errorf("Name = %q, want %q", decoded.Name, tc.event.Name)
			}
			if decoded.Seq != tc.event.Seq {
				t.Errorf("Seq = %d, want %d", decoded.Seq, tc.event.Seq)
			}
			if decoded.AckID != tc.event.AckID {
				t.Errorf("AckID = %d, want %d", decoded.AckID, tc.event.AckID)
			}
			if len(tc.event.Args) == 0 {
				if len(decoded.Args) != 0 {
					t.Errorf("Args = %+v, want empty", decoded.Args)
				}
			} else if !reflect.DeepEqual(decoded.Args, tc.event.Args) {
				t.Errorf("Args = %+v, want %+v", decoded.Args, tc.event.Args)
			}
		})
	}
}

func TestEventFrameFlags(t *testing.T) {
	tests := []struct {
		name      string
		event     *EventMessage
		wantFlags FrameFlags
	}{
		{
			name:      "plain",
			event:     &EventMessage{Channel: "c", Name: "n"},
			wantFlags: 0,
		},
		{
			name:      "ack",
			event:     &EventMessage{Channel: "c", Name: "n", AckID: 1},
			wantFlags: FlagAckRequest,
		},
		{
			name:      "sequenced",
			event:     &EventMessage{Channel: "c", Name: "n", Seq: 9},
			wantFlags: FlagSequenced,
		},
		{
			name:      "both",
			event:     &EventMessage{Channel: "c", Name: "n", Seq: 9, AckID: 1},
			wantFlags: FlagSequenced | FlagAckRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewEventFrame(tc.event)
			if f.Type != FrameEvent {
				t.Errorf("Type = %v, want FrameEvent", f.Type)
			}
			if f.Flags != tc.wantFlags {
				t.Errorf("Flags = %v, want %v", f.Flags, tc.wantFlags)
			}

			decoded, err := DecodeEvent(f.Payload)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if decoded.Sequenced() != tc.event.Sequenced() {
				t.Errorf("Sequenced() = %v, want %v", decoded.Sequenced(), tc.event.Sequenced())
			}
			if decoded.WantsAck() != tc.event.WantsAck() {
				t.Errorf("WantsAck() = %v, want %v", decoded.WantsAck(), tc.event.WantsAck())
			}
		})
	}
}

func TestAckReplyRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		reply *AckReplyMessage
	}{
		{
			name:  "no args",
			reply: &AckReplyMessage{AckID: 1},
		},
		{
			name:  "result args",
			reply: &AckReplyMessage{AckID: 88, Args: []Value{String("ok"), Int(200)}},
		},
		{
			name:  "binary result",
			reply: &AckReplyMessage{AckID: 5, Args: []Value{Binary([]byte{0xDE, 0xAD})}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewAckReplyFrame(tc.reply)
			if f.Type != FrameAckReply {
				t.Errorf("Type = %v, want FrameAckReply", f.Type)
			}

			decoded, err := DecodeAckReply(f.Payload)
			if err != nil {
				t.Fatalf("DecodeAckReply() error = %v", err)
			}
			if decoded.AckID != tc.reply.AckID {
				t.Errorf("AckID = %d, want %d", decoded.AckID, tc.reply.AckID)
			}
			if len(tc.reply.Args) > 0 && !reflect.DeepEqual(decoded.Args, tc.reply.Args) {
				t.Errorf("Args = %+v, want %+v", decoded.Args, tc.reply.Args)
			}
		})
	}
}

func TestEventIdenticalReencoding(t *testing.T) {
	// The same message must encode to the same bytes every time so a
	// stored payload can be retransmitted verbatim. Maps are excluded:
	// their iteration order is unspecified, which is why senders keep the
	// encoded bytes rather than re-encoding on retry.
	event := &EventMessage{
		Channel: "jobs",
		Name:    "enqueue",
		AckID:   41,
		Args:    []Value{String("payload"), Int(1), Binary([]byte{9, 9, 9})},
	}

	first := EncodeEvent(event)
	second := EncodeEvent(event)
	if !bytes.Equal(first, second) {
		t.Error("re-encoding the same event produced different bytes")
	}
}
