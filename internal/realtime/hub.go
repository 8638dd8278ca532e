package realtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"collab-editor-api/internal/cache"

	"github.com/rs/zerolog"
)

const (
	// DefaultConnectionTimeout is how long a connection may go unseen before
	// the sweep removes it.
	DefaultConnectionTimeout = 120 * time.Second
	// DefaultHeartbeatInterval is the per-connection keepalive period.
	DefaultHeartbeatInterval = 30 * time.Second
)

var (
	// ErrMissingDocumentID rejects a join with an empty document id.
	ErrMissingDocumentID = errors.New("realtime: document id required")
	// ErrMissingUserID rejects a join with an empty user id.
	ErrMissingUserID = errors.New("realtime: user id required")
	// ErrUnknownConnection reports a submit for a connection the hub does not hold.
	ErrUnknownConnection = errors.New("realtime: unknown connection")
)

// LiveState is the in-memory latest content of a document, decoupled from the
// durable document store. It is lost on restart; the durable copy lives in the
// database and is at most one debounce interval behind.
type LiveState struct {
	Content       string
	LastUpdated   time.Time
	LastUpdatedBy string
}

// documentChannel aggregates the live connections of one document. Its mutex
// also serializes broadcasts, which is what gives per-channel delivery order.
type documentChannel struct {
	mu      sync.Mutex
	id      string
	conns   map[string]*Connection
	evicted bool // set by evictChannel; a joiner holding this pointer must refetch
}

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	// ConnectionTimeout is the staleness cutoff applied by Sweep.
	ConnectionTimeout time.Duration
	// HeartbeatInterval is the per-connection keepalive period.
	HeartbeatInterval time.Duration
	// Retention is how long a document's live state outlives its evicted
	// channel, so a prompt rejoin still hydrates. It defaults to
	// ConnectionTimeout. While the channel has connections the state never
	// expires.
	Retention time.Duration
	// Logger receives hub activity; the zero value is a disabled logger.
	Logger zerolog.Logger
}

// Hub is the process-wide registry of live connections and live document
// state. One instance is created in main and injected into the handlers; all
// methods are safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*documentChannel

	states *cache.TTLCache[string, LiveState]

	connTimeout       time.Duration
	heartbeatInterval time.Duration
	retention         time.Duration
	log               zerolog.Logger
}

// NewHub constructs an empty hub.
func NewHub(opts Options) *Hub {
	if opts.ConnectionTimeout <= 0 {
		opts.ConnectionTimeout = DefaultConnectionTimeout
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = opts.ConnectionTimeout
	}
	return &Hub{
		channels:          make(map[string]*documentChannel),
		states:            cache.NewTTLCache[string, LiveState](),
		connTimeout:       opts.ConnectionTimeout,
		heartbeatInterval: opts.HeartbeatInterval,
		retention:         opts.Retention,
		log:               opts.Logger,
	}
}

// Join admits a new connection to a document's channel, creating the channel
// if absent. On success the new sink has already received connection-success
// and, if the document has live content, document-state; every connection of
// the channel has received a presence-update; and the connection's heartbeat
// emitter is running.
func (h *Hub) Join(documentID string, id Identity, sink Sink) (string, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", ErrMissingDocumentID
	}
	if strings.TrimSpace(id.UserID) == "" {
		return "", ErrMissingUserID
	}

	conn := &Connection{
		ID:        fmt.Sprintf("%s-%d", id.UserID, time.Now().UnixNano()),
		UserID:    id.UserID,
		UserName:  id.UserName,
		UserEmail: id.UserEmail,
		sink:      sink,
		lastSeen:  time.Now(),
		live:      true,
		stop:      make(chan struct{}),
	}

	// The sweep may evict the channel between lookup and lock; refetch until
	// the insert lands in a channel still registered with the hub.
	var ch *documentChannel
	for {
		ch = h.getOrCreateChannel(documentID)
		ch.mu.Lock()
		if !ch.evicted {
			break
		}
		ch.mu.Unlock()
	}
	ch.conns[conn.ID] = conn
	h.deliverLocked(conn, newConnectionSuccessEvent(conn.ID, conn.UserID, documentID))
	if state, ok := h.states.Get(documentID); ok && state.Content != "" {
		// A rejoin within the retention window revives the state for good.
		h.states.Set(documentID, state, 0)
		h.deliverLocked(conn, newDocumentStateEvent(state))
	}
	h.broadcastLocked(ch, newPresenceUpdateEvent(presenceLocked(ch)), "")
	ch.mu.Unlock()

	go h.runHeartbeat(documentID, conn)

	h.log.Debug().
		Str("document_id", documentID).
		Str("connection_id", conn.ID).
		Str("user", conn.UserName).
		Msg("connection joined")
	return conn.ID, nil
}

// Leave removes a connection and republishes presence to the survivors.
// An emptied channel is left in place; the next sweep evicts it, which keeps
// a near-simultaneous rejoin from racing channel teardown.
func (h *Hub) Leave(documentID, connectionID string) {
	ch := h.channel(documentID)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	conn, ok := ch.conns[connectionID]
	if ok {
		delete(ch.conns, connectionID)
		close(conn.stop)
		conn.sink.Close()
		if len(ch.conns) > 0 {
			h.broadcastLocked(ch, newPresenceUpdateEvent(presenceLocked(ch)), "")
		}
	}
	ch.mu.Unlock()

	if ok {
		h.log.Debug().
			Str("document_id", documentID).
			Str("connection_id", connectionID).
			Msg("connection left")
	}
}

// Touch records inbound activity on a connection, resetting its staleness clock.
func (h *Hub) Touch(documentID, connectionID string) {
	ch := h.channel(documentID)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	if conn, ok := ch.conns[connectionID]; ok {
		conn.lastSeen = time.Now()
	}
	ch.mu.Unlock()
}

// MarkDead flags a connection so the next sweep collects it. It does not free
// anything by itself.
func (h *Hub) MarkDead(documentID, connectionID string) {
	ch := h.channel(documentID)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	if conn, ok := ch.conns[connectionID]; ok {
		conn.live = false
	}
	ch.mu.Unlock()
}

// Snapshot returns the current distinct-user presence of a document, computed
// from live connections only.
func (h *Hub) Snapshot(documentID string) []PresenceUser {
	ch := h.channel(documentID)
	if ch == nil {
		return nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return presenceLocked(ch)
}

// State returns the document's live content snapshot, or a zero LiveState if
// the document has none.
func (h *Hub) State(documentID string) LiveState {
	state, _ := h.states.Get(documentID)
	return state
}

// Submit applies a content change: last-writer-wins overwrite of the live
// state, then a content-change broadcast to every other connection of the
// channel. Arrival order at the hub is the only tiebreak between concurrent
// writers. The call returns once the fan-out has been enqueued; persistence
// is a separate, debounced concern of the client.
func (h *Hub) Submit(documentID, connectionID, content, userID, userName string) error {
	ch := h.channel(documentID)
	if ch == nil {
		return ErrUnknownConnection
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, ok := ch.conns[connectionID]; !ok {
		return ErrUnknownConnection
	}
	// No expiry while the channel lives: the retention window is only armed
	// when the emptied channel is evicted.
	h.states.Set(documentID, LiveState{
		Content:       content,
		LastUpdated:   time.Now(),
		LastUpdatedBy: userID,
	}, 0)
	h.broadcastLocked(ch, newContentChangeEvent(content, userID, userName), connectionID)
	return nil
}

// Broadcast fans an event out to every live connection of a document except
// the excluded one (pass "" to exclude nobody).
func (h *Hub) Broadcast(documentID string, event Event, excludeConnectionID string) {
	ch := h.channel(documentID)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	h.broadcastLocked(ch, event, excludeConnectionID)
	ch.mu.Unlock()
}

// Sweep removes connections that are stale or marked dead, republishes
// presence where membership changed, evicts emptied channels, and collects
// live state whose retention window has lapsed. It is the only place dead
// connections are freed.
func (h *Hub) Sweep(ts time.Time) (removedConns, removedChannels int) {
	h.mu.RLock()
	chans := make(map[string]*documentChannel, len(h.channels))
	for id, ch := range h.channels {
		chans[id] = ch
	}
	h.mu.RUnlock()

	for id, ch := range chans {
		ch.mu.Lock()
		removed := 0
		for connID, conn := range ch.conns {
			if conn.live && ts.Sub(conn.lastSeen) <= h.connTimeout {
				continue
			}
			delete(ch.conns, connID)
			close(conn.stop)
			conn.sink.Close()
			removed++
		}
		if removed > 0 && len(ch.conns) > 0 {
			h.broadcastLocked(ch, newPresenceUpdateEvent(presenceLocked(ch)), "")
		}
		empty := len(ch.conns) == 0
		ch.mu.Unlock()
		removedConns += removed

		if empty && h.evictChannel(id, ch) {
			removedChannels++
		}
	}

	h.states.PurgeExpired()
	return removedConns, removedChannels
}

// evictChannel drops an empty channel and arms the retention window on its
// live state; the state then expires on its own and PurgeExpired collects it.
// The emptiness check is repeated under both locks so a join that slipped in
// wins.
func (h *Hub) evictChannel(id string, ch *documentChannel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.channels[id]
	if !ok || cur != ch {
		return false
	}
	cur.mu.Lock()
	defer cur.mu.Unlock()
	if len(cur.conns) > 0 {
		return false
	}
	delete(h.channels, id)
	cur.evicted = true
	if state, ok := h.states.Get(id); ok {
		h.states.Set(id, state, h.retention)
	}
	h.log.Debug().Str("document_id", id).Msg("evicted empty channel")
	return true
}

// ChannelCount reports how many document channels are currently held.
func (h *Hub) ChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

func (h *Hub) getOrCreateChannel(documentID string) *documentChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[documentID]; ok {
		return ch
	}
	ch := &documentChannel{
		id:    documentID,
		conns: make(map[string]*Connection),
	}
	h.channels[documentID] = ch
	return ch
}

func (h *Hub) channel(documentID string) *documentChannel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[documentID]
}

// deliverLocked pushes one event to a single connection. The owning channel
// must be locked.
func (h *Hub) deliverLocked(conn *Connection, event Event) bool {
	payload, err := event.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("type", string(event.Type)).Msg("event encode failed")
		return false
	}
	if !conn.live {
		return false
	}
	if !conn.sink.Push(payload) {
		conn.live = false
		return false
	}
	conn.lastSeen = time.Now()
	return true
}

// broadcastLocked serializes the event once and attempts delivery to every
// live connection except the excluded one. A failure marks that connection
// dead and never interrupts delivery to the rest; there is no retry.
func (h *Hub) broadcastLocked(ch *documentChannel, event Event, excludeConnectionID string) {
	payload, err := event.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("type", string(event.Type)).Msg("event encode failed")
		return
	}

	sent, failed := 0, 0
	for connID, conn := range ch.conns {
		if connID == excludeConnectionID || !conn.live {
			continue
		}
		if conn.sink.Push(payload) {
			conn.lastSeen = time.Now()
			sent++
		} else {
			conn.live = false
			failed++
		}
	}

	if failed > 0 {
		h.log.Warn().
			Str("document_id", ch.id).
			Str("type", string(event.Type)).
			Int("sent", sent).
			Int("failed", failed).
			Msg("broadcast had delivery failures")
	}
}

// presenceLocked derives the distinct-user presence set from the channel's
// live connections, keeping the most recently seen name/email per user. The
// owning channel must be locked.
func presenceLocked(ch *documentChannel) []PresenceUser {
	latest := make(map[string]*Connection)
	for _, conn := range ch.conns {
		if !conn.live {
			continue
		}
		if prev, ok := latest[conn.UserID]; !ok || conn.lastSeen.After(prev.lastSeen) {
			latest[conn.UserID] = conn
		}
	}

	users := make([]PresenceUser, 0, len(latest))
	for _, conn := range latest {
		users = append(users, PresenceUser{
			ID:    conn.UserID,
			Name:  conn.UserName,
			Email: conn.UserEmail,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
