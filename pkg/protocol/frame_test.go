package protocol

import (
	"bytes"
	"io"
	"testing"
)

func TestFrameEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			name:  "empty payload",
			frame: NewFrame(FrameControl, nil),
		},
		{
			name:  "small payload",
			frame: NewFrame(FrameEvent, []byte{0x01, 0x02, 0x03}),
		},
		{
			name:  "flags set",
			frame: NewFrameWithFlags(FrameEvent, FlagAckRequest|FlagSequenced, []byte("payload")),
		},
		{
			name:  "large payload",
			frame: NewFrame(FrameEvent, bytes.Repeat([]byte{0xAB}, 100_000)),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := tc.frame.Encode()
			if len(encoded) != FrameHeaderSize+len(tc.frame.Payload) {
				t.Fatalf("encoded length = %d, want %d", len(encoded), FrameHeaderSize+len(tc.frame.Payload))
			}

			decoded, err := DecodeFrame(encoded)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if decoded.Type != tc.frame.Type {
				t.Errorf("Type = %v, want %v", decoded.Type, tc.frame.Type)
			}
			if decoded.Flags != tc.frame.Flags {
				t.Errorf("Flags = %v, want %v", decoded.Flags, tc.frame.Flags)
			}
			if !bytes.Equal(decoded.Payload, tc.frame.Payload) {
				t.Errorf("Payload mismatch: got %d bytes, want %d bytes", len(decoded.Payload), len(tc.frame.Payload))
			}
		})
	}
}

func TestFrameHeaderLayout(t *testing.T) {
	f := NewFrameWithFlags(FrameEvent, FlagSequenced, []byte("abc"))
	encoded := f.Encode()

	if encoded[0] != byte(FrameEvent) {
		t.Errorf("type byte = %x, want %x", encoded[0], byte(FrameEvent))
	}
	if encoded[1] != byte(FlagSequenced) {
		t.Errorf("flags byte = %x, want %x", encoded[1], byte(FlagSequenced))
	}
	// 4-byte big-endian length
	length := int(encoded[2])<<24 | int(encoded[3])<<16 | int(encoded[4])<<8 | int(encoded[5])
	if length != 3 {
		t.Errorf("length field = %d, want 3", length)
	}
}

func TestFrameEncodeTo(t *testing.T) {
	f := NewFrameWithFlags(FrameAckReply, FlagAckRequest, []byte{0x07})
	e := NewEncoder()
	f.EncodeTo(e)

	if !bytes.Equal(e.Bytes(), f.Encode()) {
		t.Errorf("EncodeTo() = %v, want %v", e.Bytes(), f.Encode())
	}
}

func TestDecodeFrameTruncated(t *testing.T) {
	f := NewFrame(FrameEvent, []byte("hello"))
	encoded := f.Encode()

	// Header too short
	if _, err := DecodeFrame(encoded[:3]); err != io.ErrUnexpectedEOF {
		t.Errorf("DecodeFrame(short header) error = %v, want ErrUnexpectedEOF", err)
	}

	// Payload shorter than the header claims
	if _, err := DecodeFrame(encoded[:FrameHeaderSize+2]); err != io.ErrUnexpectedEOF {
		t.Errorf("DecodeFrame(short payload) error = %v, want ErrUnexpectedEOF", err)
	}
}

func TestDecodeFrameTooLarge(t *testing.T) {
	// Header claiming a payload above the ceiling must be rejected before
	// any allocation happens.
	header := []byte{byte(FrameEvent), 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := DecodeFrame(header); err != ErrFrameTooLarge {
		t.Errorf("DecodeFrame(oversized) error = %v, want ErrFrameTooLarge", err)
	}
	if _, err := ReadFrame(bytes.NewReader(header)); err != ErrFrameTooLarge {
		t.Errorf("ReadFrame(oversized) error = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer

	frames := []*Frame{
		NewFrame(FrameConnect, []byte("hello")),
		NewFrameWithFlags(FrameEvent, FlagAckRequest, []byte{0x01}),
		NewFrame(FrameDisconnect, nil),
	}

	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
	}

	for i, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame() #%d error = %v", i, err)
		}
		if got.Type != want.Type || got.Flags != want.Flags || !bytes.Equal(got.Payload, want.Payload) {
			t.Errorf("frame #%d = %+v, want %+v", i, got, want)
		}
	}

	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("ReadFrame(empty) error = %v, want EOF", err)
	}
}

func TestFrameTypeString(t *testing.T) {
	tests := []struct {
		ft   FrameType
		want string
	}{
		{FrameConnect, "Connect"},
		{FrameConnectAck, "ConnectAck"},
		{FrameEvent, "Event"},
		{FrameAckReply, "AckReply"},
		{FrameControl, "Control"},
		{FrameDisconnect, "Disconnect"},
		{FrameError, "Error"},
		{FrameType(0xEE), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.ft.String(); got != tt.want {
			t.Errorf("FrameType(%d).String() = %q, want %q", tt.ft, got, tt.want)
		}
	}
}

func TestFrameFlagsHas(t *testing.T) {
	flags := FlagAckRequest | FlagSequenced
	if !flags.Has(FlagAckRequest) {
		t.Error("Has(FlagAckRequest) = false, want true")
	}
	if !flags.Has(FlagSequenced) {
		t.Error("Has(FlagSequenced) = false, want true")
	}
	if FrameFlags(0).Has(FlagAckRequest) {
		t.Error("zero flags Has(FlagAckRequest) = true, want false")
	}
}
