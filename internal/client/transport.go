package client

import (
	"context"

	"collab-editor-api/internal/realtime"

	"github.com/gorilla/websocket"
)

// Conn is one physical connection to the hub.
type Conn interface {
	// ReadEvent blocks until the next server event or a transport error.
	ReadEvent() (*realtime.Event, error)

	// WriteJSON sends one frame to the hub.
	WriteJSON(v any) error

	// Close tears down the physical connection. Safe to call twice.
	Close() error
}

// Transport dials physical connections. The session owns the retry logic;
// a transport only knows how to open one connection.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsTransport struct {
	dialer *websocket.Dialer
}

// NewWebSocketTransport returns the default websocket transport.
func NewWebSocketTransport() Transport {
	return &wsTransport{dialer: websocket.DefaultDialer}
}

func (t *wsTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadEvent() (*realtime.Event, error) {
	var ev realtime.Event
	if err := c.conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *wsConn) WriteJSON(v any) error {
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
