package mqtt

import (
	"context"
	"net"

	"nhooyr.io/websocket"
)

// WebSocketURL, when set, makes each connect attempt dial a WebSocket transport
// instead of raw TCP/TLS, carrying MQTT framing inside binary WebSocket
// messages (spec.md §6 "Wire... optional WebSocket"). Grounded on the
// teacher's options.go doc comment for a custom ContextDialer backed by
// nhooyr.io/websocket, turned into a first-class transport instead of
// requiring the caller to implement ContextDialer themselves.
func dialWebSocket(ctx context.Context, url string) (net.Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
}
