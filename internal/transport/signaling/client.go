package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Connect dials the host's signaling WebSocket. The URL should carry the
// PIN as a query parameter, e.g. "ws://host:port/ws?pin=1234".
func Connect(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("signaling: connect to %s: %w", url, err)
	}
	return conn, nil
}
