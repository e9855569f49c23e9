package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// DialWSS opens a wss:// connection using gorilla/websocket, and adapts
// its message-oriented API to the byte-stream Conn the core expects.
func DialWSS(ctx context.Context, u *url.URL, addr string, tlsConfig *tls.Config) (Conn, error) {
	path := u.Path
	if path == "" {
		path = "/mqtt"
	}
	loc := (&url.URL{Scheme: "wss", Host: addr, Path: path}).String()

	dialer := &websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		Subprotocols:     []string{"mqtt"},
		HandshakeTimeout: 30 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, loc, http.Header{})
	if err != nil {
		return nil, err
	}
	return &gorillaConn{conn: conn}, nil
}

// gorillaConn adapts a *websocket.Conn's discrete binary messages to the
// continuous byte stream the packet codec expects, buffering the tail of
// a message across successive Read calls.
type gorillaConn struct {
	conn *websocket.Conn
	buf  bytes.Buffer
}

func (c *gorillaConn) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		c.buf.Write(data)
	}
	return c.buf.Read(p)
}

func (c *gorillaConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *gorillaConn) Close() error { return c.conn.Close() }

func (c *gorillaConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *gorillaConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *gorillaConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
