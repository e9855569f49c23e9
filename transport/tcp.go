package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// DialTCP opens a plaintext TCP connection to addr ("host:port").
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
}

// DialTLS opens a TLS connection to addr, using cfg (nil for defaults).
func DialTLS(ctx context.Context, addr string, cfg *tls.Config) (Conn, error) {
	dialer := &tls.Dialer{Config: cfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn.(*tls.Conn), nil
}
