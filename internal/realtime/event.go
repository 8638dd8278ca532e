package realtime

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of a wire event.
type EventType string

const (
	// EventConnectionSuccess is sent only to a newly joined connection and
	// carries its assigned connection id.
	EventConnectionSuccess EventType = "connection-success"
	// EventDocumentState is sent only to a newly joined connection and carries
	// the current live content of the document.
	EventDocumentState EventType = "document-state"
	// EventContentChange carries new content to every other connection of a
	// document.
	EventContentChange EventType = "content-change"
	// EventPresenceUpdate carries the current set of distinct online users.
	EventPresenceUpdate EventType = "presence-update"
	// EventHeartbeat is a per-connection keepalive, never fanned out.
	EventHeartbeat EventType = "heartbeat"
)

// PresenceUser is one distinct online user of a document.
type PresenceUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Event is the single wire shape pushed to clients. Fields are type-specific;
// unused ones are omitted from the JSON encoding.
type Event struct {
	Type          EventType      `json:"type"`
	ConnectionID  string         `json:"connectionId,omitempty"`
	DocumentID    string         `json:"documentId,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	UserName      string         `json:"userName,omitempty"`
	Content       string         `json:"content,omitempty"`
	LastUpdated   int64          `json:"lastUpdated,omitempty"` // unix milliseconds
	LastUpdatedBy string         `json:"lastUpdatedBy,omitempty"`
	Count         int            `json:"count,omitempty"`
	Users         []PresenceUser `json:"users,omitempty"`
	Timestamp     string         `json:"timestamp"`
}

// Encode serializes the event once for delivery to any number of sinks.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ClientMessage is the inbound frame a client sends over its live connection.
// Only content-change submissions are meaningful; anything else is ignored.
type ClientMessage struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newConnectionSuccessEvent(connectionID, userID, documentID string) Event {
	return Event{
		Type:         EventConnectionSuccess,
		ConnectionID: connectionID,
		UserID:       userID,
		DocumentID:   documentID,
		Timestamp:    eventTimestamp(),
	}
}

func newDocumentStateEvent(state LiveState) Event {
	return Event{
		Type:          EventDocumentState,
		Content:       state.Content,
		LastUpdated:   state.LastUpdated.UnixMilli(),
		LastUpdatedBy: state.LastUpdatedBy,
		Timestamp:     eventTimestamp(),
	}
}

func newContentChangeEvent(content, userID, userName string) Event {
	return Event{
		Type:      EventContentChange,
		Content:   content,
		UserID:    userID,
		UserName:  userName,
		Timestamp: eventTimestamp(),
	}
}

func newPresenceUpdateEvent(users []PresenceUser) Event {
	return Event{
		Type:      EventPresenceUpdate,
		Count:     len(users),
		Users:     users,
		Timestamp: eventTimestamp(),
	}
}

func newHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: eventTimestamp(),
	}
}
