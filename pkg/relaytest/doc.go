// Package relaytest provides an in-process relay server implementing the
// server side of the relink protocol, for tests and demos.
//
// The server speaks real frames over real websockets: handshake with
// session recovery, sequenced pushes with replay of missed events, ack
// replies, and heartbeat. Mount it on any mux or hand it to httptest:
//
//	relay := relaytest.New(relaytest.Config{})
//	srv := httptest.NewServer(relay)
//	defer srv.Close()
//
// # Driving clients
//
// Push and Broadcast deliver sequenced events; Handle answers client
// events, acking them when asked:
//
//	relay.Handle("room", "join", func(sessionID string, args []protocol.Value) []protocol.Value {
//	    return []protocol.Value{protocol.String("welcome")}
//	})
//	relay.Push(sessionID, "room", "message", protocol.String("hello"))
//
// # Failure injection
//
// Tests drive clients through their failure paths without touching the
// network stack:
//
//	relay.RejectNextHandshake(protocol.HandshakeNotAuthorized)
//	relay.DropConnection(sessionID) // transport fault; session resumable
//	relay.SilenceAcks(true)         // force client retransmissions
//	relay.RefuseDial(true)          // fail dials before the upgrade
package relaytest
