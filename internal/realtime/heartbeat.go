package realtime

import (
	"time"
)

// runHeartbeat is the per-connection keepalive emitter, started at join time.
// Each tick pushes a heartbeat event to this one sink; a push failure marks
// the connection dead and stops the emitter. Removal of the connection (by
// Leave or the sweep) closes conn.stop, which also stops it.
func (h *Hub) runHeartbeat(documentID string, conn *Connection) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.stop:
			return
		case <-ticker.C:
			if !h.emitHeartbeat(documentID, conn) {
				return
			}
		}
	}
}

// emitHeartbeat delivers one heartbeat to a single connection. False means
// the connection is gone or its sink rejected the write.
func (h *Hub) emitHeartbeat(documentID string, conn *Connection) bool {
	ch := h.channel(documentID)
	if ch == nil {
		return false
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	cur, ok := ch.conns[conn.ID]
	if !ok || cur != conn || !cur.live {
		return false
	}
	if !h.deliverLocked(conn, newHeartbeatEvent()) {
		h.log.Debug().
			Str("document_id", documentID).
			Str("connection_id", conn.ID).
			Msg("heartbeat delivery failed, connection marked dead")
		return false
	}
	return true
}
