package transport

import (
	"context"
	"net/url"

	"golang.org/x/net/websocket"
)

// DialWS opens a ws:// connection, negotiating the "mqtt" subprotocol and
// binary framing as required by the MQTT-over-WebSocket transport binding.
func DialWS(_ context.Context, u *url.URL, addr string) (Conn, error) {
	path := u.Path
	if path == "" {
		path = "/mqtt"
	}
	loc := (&url.URL{Scheme: "ws", Host: addr, Path: path}).String()
	origin := (&url.URL{Scheme: "http", Host: addr}).String()

	cfg, err := websocket.NewConfig(loc, origin)
	if err != nil {
		return nil, err
	}
	cfg.Protocol = []string{"mqtt"}

	ws, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return ws, nil
}
