// Package transport opens the byte-duplex stream the core reads and
// writes MQTT frames over. The core depends only on the Conn interface;
// concrete dialers for tcp://, ssl://, ws:// and wss:// are provided here
// but a caller may supply any other net.Conn-shaped implementation.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Conn is the byte-duplex stream the sender and receiver loops read and
// write MQTT frames over.
type Conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dial opens a Conn to uri, dispatching on scheme. Supported schemes are
// tcp/mqtt (plain TCP), ssl/tls/mqtts (TLS), ws (RFC 6455 over
// golang.org/x/net/websocket) and wss (RFC 6455 over
// github.com/gorilla/websocket). Default ports are 1883 for plaintext
// schemes and 8883 for TLS schemes.
func Dial(ctx context.Context, uri string, tlsConfig *tls.Config) (Conn, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("transport: parse %q: %w", uri, err)
	}
	addr := withDefaultPort(u)

	switch u.Scheme {
	case "tcp", "mqtt":
		return DialTCP(ctx, addr)
	case "ssl", "tls", "mqtts":
		return DialTLS(ctx, addr, tlsConfig)
	case "ws":
		return DialWS(ctx, u, addr)
	case "wss":
		return DialWSS(ctx, u, addr, tlsConfig)
	case "local":
		// Accepted by the reference client's error strings but never
		// documented as a supported scheme; treated as unsupported here.
		return nil, fmt.Errorf("transport: scheme %q is not a supported transport", u.Scheme)
	default:
		return nil, fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
}

func withDefaultPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "wss":
		return net.JoinHostPort(u.Hostname(), "8883")
	default:
		return net.JoinHostPort(u.Hostname(), "1883")
	}
}
