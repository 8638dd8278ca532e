package realtime

import (
	"time"
)

// Sink is the outbound side of one live connection. The actual network
// transport is managed by the caller (see the websocket handler); the hub only
// needs to hand serialized events over and learn about failures.
type Sink interface {
	// Push hands one serialized event to the connection. It must not block;
	// false means the sink is closed or cannot accept the event.
	Push(payload []byte) bool

	// Close releases the underlying transport. Must be safe to call twice.
	Close()
}

// Identity is the caller resolved by the identity provider. UserID is
// required; name and email may be empty for anonymous participants.
type Identity struct {
	UserID    string
	UserName  string
	UserEmail string
}

// Connection is one physical live channel to one client. It is owned by the
// hub for the lifetime of the channel; lastSeen and live are only touched
// while the owning document channel is locked.
type Connection struct {
	ID        string
	UserID    string
	UserName  string
	UserEmail string

	sink     Sink
	lastSeen time.Time
	live     bool
	stop     chan struct{} // closed exactly once, when the connection is removed
}
