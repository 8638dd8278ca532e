package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"collab-editor-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait   = 5 * time.Second
	wsReadLimit   = 512 * 1024 // documents travel whole, so allow large frames
	wsSendBacklog = 32
)

// Protocol-level keepalive timing. The writer pump pings on a ticker and any
// conforming client pongs back, refreshing the read deadline, so a viewer
// that never sends frames stays connected. Vars to allow test stubbing.
var (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is already handled at Gin level; allow upgrade from any origin here
		return true
	},
}

// wsSink implements realtime.Sink over a websocket connection. Pushes go
// through a bounded queue drained by a single writer goroutine, so a slow
// reader can never stall the hub's broadcast path: when the queue is full the
// push fails and the hub marks the connection dead.
type wsSink struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func newWSSink(conn *websocket.Conn) *wsSink {
	s := &wsSink{
		conn: conn,
		send: make(chan []byte, wsSendBacklog),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

func (s *wsSink) Push(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *wsSink) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *wsSink) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

// resolveIdentity prefers the JWT identity set by the optional auth
// middleware, then explicit query params, then a generated anonymous user.
func resolveIdentity(c *gin.Context) realtime.Identity {
	id := realtime.Identity{
		UserID:    c.GetString("user_id"),
		UserName:  c.GetString("username"),
		UserEmail: c.GetString("user_email"),
	}
	if id.UserID == "" {
		id.UserID = c.Query("userId")
		id.UserName = c.Query("userName")
		id.UserEmail = c.Query("userEmail")
	}
	if id.UserID == "" {
		id.UserID = fmt.Sprintf("anon-%d", time.Now().UnixNano())
	}
	if id.UserName == "" {
		id.UserName = "Anonymous"
	}
	return id
}

// WebSocketHandler upgrades the connection and joins it to the document's
// channel. Server events flow out through the sink; inbound frames are
// content-change submissions. GET /api/realtime/:id
func WebSocketHandler(hub *realtime.Hub, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		documentID := c.Param("id")
		identity := resolveIdentity(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		sink := newWSSink(conn)
		connID, err := hub.Join(documentID, identity, sink)
		if err != nil {
			// JoinFailure: nothing was registered, just drop the socket.
			log.Warn().Err(err).Str("document_id", documentID).Msg("join rejected")
			sink.Close()
			return
		}
		defer func() {
			hub.Leave(documentID, connID)
			sink.Close()
		}()

		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			hub.Touch(documentID, connID)
			return nil
		})

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				// Intentional close and network failure look the same here;
				// either way the deferred Leave (or the sweep) cleans up.
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			hub.Touch(documentID, connID)

			var msg realtime.ClientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Debug().Err(err).Str("connection_id", connID).Msg("dropping malformed frame")
				continue
			}
			if msg.Type != realtime.EventContentChange {
				continue
			}
			if err := hub.Submit(documentID, connID, msg.Content, identity.UserID, identity.UserName); err != nil {
				return
			}
		}
	}
}
