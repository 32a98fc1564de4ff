// Package ws carries relink frames over WebSocket using
// github.com/gorilla/websocket. Each frame travels as one binary message.
package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relink-dev/relink/pkg/client"
	"github.com/relink-dev/relink/pkg/protocol"
)

// Transport adapts a websocket connection to the client's Transport
// contract. Both endpoints of a relink connection can use it; the relay
// test server wraps its accepted connections the same way.
type Transport struct {
	conn *websocket.Conn

	// gorilla allows a single concurrent writer.
	writeMu sync.Mutex
}

// NewTransport wraps an established websocket connection. The read limit
// is pinned to the protocol's maximum frame size so an oversized message
// fails the read instead of ballooning memory.
func NewTransport(conn *websocket.Conn) *Transport {
	conn.SetReadLimit(int64(protocol.MaxPayloadSize) + protocol.FrameHeaderSize)
	return &Transport{conn: conn}
}

// ReadMessage returns the next binary message. Non-binary messages are
// skipped; relink never sends them.
func (t *Transport) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (t *Transport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close sends a best-effort close message and tears the connection down.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

func (t *Transport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *Transport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

// Dialer builds a client.Dialer from a websocket dialer. A nil d uses
// websocket.DefaultDialer. URLs use the ws:// and wss:// schemes.
func Dialer(d *websocket.Dialer) client.Dialer {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string) (client.Transport, error) {
		conn, resp, err := d.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("ws: dial %s: %w (status %d)", url, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("ws: dial %s: %w", url, err)
		}
		return NewTransport(conn), nil
	}
}
