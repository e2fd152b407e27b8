package voicecast

import "context"

// Client is the narrow surface of the underlying messaging client this SDK
// depends on. The real event store, crypto and sync machinery live behind
// it; WSClient is the reference implementation.
type Client interface {
	// UserID returns the id of the logged-in user, or "" when unknown.
	UserID() string
	// DeviceID returns the id of this device, or "" when unknown.
	DeviceID() string
	// SyncState returns the current sync lifecycle state.
	SyncState() SyncState
	// OnSyncStateChange subscribes to sync lifecycle transitions and
	// returns a disposer.
	OnSyncStateChange(fn SyncStateHandler) (remove func())

	// GetRoom returns the room with the given id, or nil when unknown.
	GetRoom(roomID string) Room
	// Rooms returns every room the client knows about.
	Rooms() []Room

	// SendStateEvent sends a state event and returns its event id once the
	// server acknowledged the send.
	SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content map[string]interface{}) (string, error)
	// SendMessageEvent sends an ordinary room message and returns its
	// event id.
	SendMessageEvent(ctx context.Context, roomID string, content map[string]interface{}) (string, error)
	// FetchRoomEvent fetches a single event by id from the server.
	FetchRoomEvent(ctx context.Context, roomID, eventID string) (*Event, error)
}

// Room is the read side of one room's state and timeline.
type Room interface {
	ID() string
	// CurrentStateEvent returns the latest state event for the given type
	// and state key, or nil.
	CurrentStateEvent(eventType, stateKey string) *Event
	// CurrentStateEvents returns the latest state event per state key for
	// the given type.
	CurrentStateEvents(eventType string) []*Event
	// FindEventByID looks the event up in the locally known timeline.
	FindEventByID(eventID string) *Event
	// RelationChildren returns the locally known events relating to the
	// given event, filtered by relation type and event type.
	RelationChildren(eventID, relType, eventType string) []*Event
	// CanSendStateEvent reports whether the user may send the given state
	// event type in this room.
	CanSendStateEvent(eventType, userID string) bool
	// OnStateEvent subscribes to state event arrivals and returns a
	// disposer.
	OnStateEvent(fn func(*Event)) (remove func())
	// OnTimelineEvent subscribes to timeline event arrivals and returns a
	// disposer.
	OnTimelineEvent(fn func(*Event)) (remove func())
}

// Dialog presents a titled message with an acknowledgement action. The
// application shell provides the real modal system.
type Dialog interface {
	ShowMessage(title, message string)
}

// NoopDialog discards all messages. Useful for headless use.
type NoopDialog struct{}

func (NoopDialog) ShowMessage(title, message string) {}
