// Package quicstream carries relink frames over a single bidirectional
// QUIC stream. Frames are self-delimiting, so the stream needs no extra
// record layer: each message is one frame, header included.
package quicstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/relink-dev/relink/pkg/client"
	"github.com/relink-dev/relink/pkg/protocol"
)

// ALPN is the application protocol negotiated during the QUIC handshake.
const ALPN = "relink"

const closeDone = quic.ApplicationErrorCode(0)

// Transport adapts one QUIC stream to the client's Transport contract.
type Transport struct {
	conn   quic.Connection
	stream quic.Stream

	writeMu sync.Mutex
}

// NewTransport wraps an open stream on conn. The stream carries the whole
// relink session; closing the transport closes the connection.
func NewTransport(conn quic.Connection, stream quic.Stream) *Transport {
	return &Transport{conn: conn, stream: stream}
}

// ReadMessage reassembles the next frame from the stream: the fixed
// header first, then exactly the payload it announces.
func (t *Transport) ReadMessage() ([]byte, error) {
	buf := make([]byte, protocol.FrameHeaderSize)
	if _, err := io.ReadFull(t.stream, buf); err != nil {
		return nil, err
	}
	_, _, length, err := protocol.DecodeFrameHeader(buf)
	if err != nil {
		return nil, err
	}
	if length > protocol.MaxPayloadSize {
		return nil, protocol.ErrFrameTooLarge
	}
	if length == 0 {
		return buf, nil
	}
	msg := make([]byte, protocol.FrameHeaderSize+length)
	copy(msg, buf)
	if _, err := io.ReadFull(t.stream, msg[protocol.FrameHeaderSize:]); err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *Transport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.stream.Write(data)
	return err
}

func (t *Transport) Close() error {
	t.stream.CancelRead(quic.StreamErrorCode(closeDone))
	t.stream.Close()
	return t.conn.CloseWithError(closeDone, "closed")
}

func (t *Transport) SetReadDeadline(deadline time.Time) error {
	return t.stream.SetReadDeadline(deadline)
}

func (t *Transport) SetWriteDeadline(deadline time.Time) error {
	return t.stream.SetWriteDeadline(deadline)
}

// Dialer builds a client.Dialer that connects over QUIC. URLs use the
// quic:// scheme, for example quic://relay.example.com:7843. A nil
// tlsConf gets a fresh config; either way the relink ALPN is enforced.
func Dialer(tlsConf *tls.Config, quicConf *quic.Config) client.Dialer {
	return func(ctx context.Context, rawURL string) (client.Transport, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("quicstream: dial %s: %w", rawURL, err)
		}
		if u.Scheme != "quic" {
			return nil, fmt.Errorf("quicstream: dial %s: unsupported scheme %q", rawURL, u.Scheme)
		}

		tc := &tls.Config{}
		if tlsConf != nil {
			tc = tlsConf.Clone()
		}
		tc.NextProtos = []string{ALPN}

		conn, err := quic.DialAddr(ctx, u.Host, tc, quicConf)
		if err != nil {
			return nil, fmt.Errorf("quicstream: dial %s: %w", rawURL, err)
		}
		stream, err := conn.OpenStreamSync(ctx)
		if err != nil {
			conn.CloseWithError(closeDone, "no stream")
			return nil, fmt.Errorf("quicstream: open stream: %w", err)
		}
		return NewTransport(conn, stream), nil
	}
}
