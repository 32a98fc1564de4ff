// Package protocol implements the relink binary wire protocol.
//
// The protocol carries named events between a client and a server over a
// message-oriented transport (one frame per transport message). It is
// optimized for small payloads, fast encoding without reflection, and
// session resumption after a dropped connection.
//
// # Wire Format
//
// Every message is framed with a 6-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameConnect (0x00): client handshake (credential, session resume)
//   - FrameConnectAck (0x01): server handshake response
//   - FrameEvent (0x02): named event with arguments, either direction
//   - FrameAckReply (0x03): response to an event that requested an ack
//   - FrameControl (0x04): ping/pong heartbeat
//   - FrameDisconnect (0x05): graceful teardown with a reason
//   - FrameError (0x06): server error report
//
// # Encoding
//
// The payload encoding uses varints for small integers (protobuf-style),
// ZigZag for signed values, varint length prefixes for strings and byte
// slices, and big-endian for fixed-width integers. Event arguments are
// tagged values (null, bool, int, float, string, binary, array, object).
//
// Binary argument values are not encoded inline: the encoder replaces each
// one with a reference into the frame's attachment section and appends the
// raw bytes there, so large blobs are never varint-walked. The decoder
// resolves references back into the argument tree, returning the original
// shape to the caller.
//
// # Handshake
//
//	Client                          Server
//	  │                                │
//	  │──── ConnectRequest ──────────>│
//	  │     (version, credential,     │
//	  │      session id, last seq)    │
//	  │                                │
//	  │<──── ConnectAck ──────────────│
//	  │     (status, session id,      │
//	  │      recovered, last seq)     │
//	  │                                │
//
// A client presenting a known session id and the last server sequence
// number it processed may have its session resumed: the server replays the
// missed sequenced events in order before any live traffic.
package protocol
