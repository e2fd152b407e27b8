package voicecast

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Wire message types exchanged with the sync gateway.
const (
	wsMsgHello            = "hello"
	wsMsgSync             = "sync"
	wsMsgEvent            = "event"
	wsMsgSendStateEvent   = "send_state_event"
	wsMsgSendMessageEvent = "send_message_event"
	wsMsgFetchEvent       = "fetch_event"
	wsMsgResponse         = "response"
	wsMsgError            = "error"
	wsMsgUploadMedia      = "upload_media"
	wsMsgFetchMedia       = "fetch_media"
)

type wsMessage struct {
	Type      string                 `json:"type"`
	TxnID     string                 `json:"txn_id,omitempty"`
	RoomID    string                 `json:"room_id,omitempty"`
	EventType string                 `json:"event_type,omitempty"`
	StateKey  string                 `json:"state_key,omitempty"`
	EventID   string                 `json:"event_id,omitempty"`
	Content   map[string]interface{} `json:"content,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	DeviceID  string                 `json:"device_id,omitempty"`
	Event     *wireEvent             `json:"event,omitempty"`
	CanSend   bool                   `json:"can_send,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Data      string                 `json:"data,omitempty"` // base64 media payload
	MimeType  string                 `json:"mimetype,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type wireEvent struct {
	ID        string                 `json:"event_id"`
	Type      string                 `json:"type"`
	RoomID    string                 `json:"room_id"`
	Sender    string                 `json:"sender"`
	StateKey  *string                `json:"state_key,omitempty"`
	Timestamp int64                  `json:"origin_server_ts"`
	Content   map[string]interface{} `json:"content"`
	Redacted  bool                   `json:"redacted,omitempty"`
}

func (w *wireEvent) toEvent() *Event {
	event := &Event{
		ID:        w.ID,
		Type:      w.Type,
		RoomID:    w.RoomID,
		Sender:    w.Sender,
		Timestamp: time.UnixMilli(w.Timestamp),
		Content:   w.Content,
		Redacted:  w.Redacted,
	}
	if w.StateKey != nil {
		event.StateKey = *w.StateKey
	}
	return event
}

// isState reports whether the wire event is a state event. Absence of a
// state key, not emptiness, is the discriminator.
func (w *wireEvent) isState() bool { return w.StateKey != nil }

// WSClient is the reference Client implementation over a websocket sync
// gateway. It keeps a per-room cache of current state, timeline events
// and reference relations so the SDK's read paths never hit the network.
type WSClient struct {
	config *Config
	logger *Logger

	userID   string
	deviceID string

	conn              *websocket.Conn
	connMu            sync.Mutex
	shouldReconnect   bool
	reconnectAttempts int
	ctx               context.Context
	cancel            context.CancelFunc

	mu           sync.Mutex
	syncState    SyncState
	rooms        map[string]*wsRoom
	pending      map[string]chan *wsMessage
	syncHandlers handlerRegistry[SyncStateHandler]
}

func NewWSClient(config *Config) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSClient{
		config:          config,
		logger:          GetGlobalLogger().WithComponent("WSClient"),
		shouldReconnect: true,
		ctx:             ctx,
		cancel:          cancel,
		syncState:       SyncStateIdle,
		rooms:           make(map[string]*wsRoom),
		pending:         make(map[string]chan *wsMessage),
	}
}

// Connect dials the gateway and starts the read loop. Retries up to
// MaxReconnectAttempts with ReconnectDelay between attempts.
func (c *WSClient) Connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connectWithRetry()
}

func (c *WSClient) connectWithRetry() error {
	for c.reconnectAttempts < c.config.MaxReconnectAttempts {
		if err := c.performConnection(); err != nil {
			c.reconnectAttempts++
			if c.reconnectAttempts >= c.config.MaxReconnectAttempts {
				c.setSyncState(SyncStateError)
				return WrapError(err, ErrCodeWebSocket).AddDetail("attempts", c.reconnectAttempts)
			}

			if c.config.DebugWebsocket {
				c.logger.Debugf("Connection attempt %d failed, retrying in %.1fs: %v", c.reconnectAttempts, c.config.ReconnectDelay, err)
			}

			time.Sleep(time.Duration(c.config.ReconnectDelay * float64(time.Second)))
			continue
		}

		c.reconnectAttempts = 0
		c.setSyncState(SyncStateSyncing)
		go c.readLoop()
		return nil
	}

	return NewWebSocketError(fmt.Sprintf("failed to connect after %d attempts", c.config.MaxReconnectAttempts))
}

func (c *WSClient) performConnection() error {
	header := make(http.Header)
	if c.config.UseTokenAuth {
		token, err := GenerateWsToken(c.userID)
		if err != nil {
			return err
		}
		header.Set("Authorization", "Bearer "+token.Token)
	}
	for k, v := range c.config.Headers {
		header.Set(k, v)
	}

	if c.config.WsEndpoint == nil {
		return NewConfigError("websocket endpoint not configured")
	}
	conn, _, err := websocket.DefaultDialer.Dial(*c.config.WsEndpoint, header)
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

func (c *WSClient) readLoop() {
	defer func() {
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var message wsMessage
			if err := c.conn.ReadJSON(&message); err != nil {
				if c.config.DebugWebsocket {
					c.logger.Debugf("WebSocket read error: %v", err)
				}
				if c.shouldReconnect && c.SyncState() == SyncStateSyncing {
					c.setSyncState(SyncStateError)
					go c.handleReconnect()
				}
				return
			}
			c.handleMessage(&message)
		}
	}
}

func (c *WSClient) handleReconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.shouldReconnect {
		return
	}
	if err := c.connectWithRetry(); err != nil {
		c.logger.WithError(err).Error("Reconnection failed")
	}
}

func (c *WSClient) handleMessage(message *wsMessage) {
	switch message.Type {
	case wsMsgHello:
		c.mu.Lock()
		c.userID = message.UserID
		c.deviceID = message.DeviceID
		c.mu.Unlock()
	case wsMsgEvent, wsMsgSync:
		if message.Event != nil {
			c.ingestEvent(message.Event.toEvent(), message.Event.isState())
		}
	case wsMsgResponse, wsMsgError:
		c.mu.Lock()
		ch, ok := c.pending[message.TxnID]
		if ok {
			delete(c.pending, message.TxnID)
		}
		c.mu.Unlock()
		if ok {
			ch <- message
		}
	}
}

func (c *WSClient) ingestEvent(event *Event, isState bool) {
	c.mu.Lock()
	room, ok := c.rooms[event.RoomID]
	if !ok {
		room = newWSRoom(event.RoomID)
		c.rooms[event.RoomID] = room
	}
	c.mu.Unlock()

	room.ingest(event, isState)
}

// request sends a message with a fresh transaction id and waits for the
// matching response.
func (c *WSClient) request(ctx context.Context, message *wsMessage) (*wsMessage, error) {
	message.TxnID = uuid.NewString()
	ch := make(chan *wsMessage, 1)

	c.mu.Lock()
	c.pending[message.TxnID] = ch
	c.mu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	var err error
	if conn == nil {
		err = NewVoicecastError("not connected", ErrCodeNotConnected)
	} else {
		err = conn.WriteJSON(message)
	}
	c.connMu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, message.TxnID)
		c.mu.Unlock()
		return nil, WrapError(err, ErrCodeWebSocket)
	}

	select {
	case response := <-ch:
		if response.Type == wsMsgError {
			return nil, NewWebSocketError(response.Error)
		}
		return response, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, message.TxnID)
		c.mu.Unlock()
		return nil, WrapError(ctx.Err(), ErrCodeWebSocket)
	}
}

func (c *WSClient) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *WSClient) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *WSClient) SyncState() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncState
}

func (c *WSClient) OnSyncStateChange(fn SyncStateHandler) (remove func()) {
	return c.syncHandlers.add(fn)
}

func (c *WSClient) setSyncState(state SyncState) {
	c.mu.Lock()
	if c.syncState == state {
		c.mu.Unlock()
		return
	}
	c.syncState = state
	c.mu.Unlock()

	c.logger.LogConnectionEvent("sync_state_changed", state, nil)
	c.syncHandlers.notify(func(fn SyncStateHandler) { fn(state) })
}

func (c *WSClient) GetRoom(roomID string) Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room, ok := c.rooms[roomID]; ok {
		return room
	}
	return nil
}

func (c *WSClient) Rooms() []Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID() < rooms[j].ID() })
	return rooms
}

func (c *WSClient) SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content map[string]interface{}) (string, error) {
	response, err := c.request(ctx, &wsMessage{
		Type:      wsMsgSendStateEvent,
		RoomID:    roomID,
		EventType: eventType,
		StateKey:  stateKey,
		Content:   content,
	})
	if err != nil {
		return "", err
	}
	return response.EventID, nil
}

func (c *WSClient) SendMessageEvent(ctx context.Context, roomID string, content map[string]interface{}) (string, error) {
	response, err := c.request(ctx, &wsMessage{
		Type:    wsMsgSendMessageEvent,
		RoomID:  roomID,
		Content: content,
	})
	if err != nil {
		return "", err
	}
	return response.EventID, nil
}

func (c *WSClient) FetchRoomEvent(ctx context.Context, roomID, eventID string) (*Event, error) {
	response, err := c.request(ctx, &wsMessage{
		Type:    wsMsgFetchEvent,
		RoomID:  roomID,
		EventID: eventID,
	})
	if err != nil {
		return nil, err
	}
	if response.Event == nil {
		return nil, NewDataIntegrityError("fetch returned no event").AddDetail("event_id", eventID)
	}
	event := response.Event.toEvent()
	c.ingestEvent(event, response.Event.isState())
	return event, nil
}

// Upload pushes one chunk payload to the media endpoint and returns the
// content URL other clients can resolve. Satisfies MediaUploader.
func (c *WSClient) Upload(ctx context.Context, chunk Chunk) (string, error) {
	response, err := c.request(ctx, &wsMessage{
		Type:     wsMsgUploadMedia,
		Data:     base64.StdEncoding.EncodeToString(chunk.Data),
		MimeType: chunk.MimeType,
	})
	if err != nil {
		return "", err
	}
	if response.URL == "" {
		return "", NewDataIntegrityError("upload returned no content url")
	}
	return response.URL, nil
}

// Resolve downloads the audio payload behind a chunk event. Satisfies
// MediaSource.
func (c *WSClient) Resolve(ctx context.Context, event *Event) (Chunk, error) {
	url := getString(event.Content, "url")
	if url == "" {
		return Chunk{}, NewDataIntegrityError("chunk event carries no content url").AddDetail("event_id", event.ID)
	}

	response, err := c.request(ctx, &wsMessage{Type: wsMsgFetchMedia, URL: url})
	if err != nil {
		return Chunk{}, err
	}
	data, err := base64.StdEncoding.DecodeString(response.Data)
	if err != nil {
		return Chunk{}, WrapError(err, ErrCodeDataIntegrity)
	}

	return Chunk{
		Data:     data,
		Duration: event.ChunkDuration(),
		MimeType: response.MimeType,
	}, nil
}

// Disconnect stops the read loop and closes the connection. Reconnection
// is disabled afterwards.
func (c *WSClient) Disconnect() {
	c.connMu.Lock()
	c.shouldReconnect = false
	c.cancel()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.setSyncState(SyncStateStopped)
}

// wsRoom caches one room's state and timeline as received from the
// gateway.
type wsRoom struct {
	id string

	mu               sync.Mutex
	state            map[string]map[string]*Event // type -> state key -> latest
	timeline         map[string]*Event
	relations        map[string][]*Event // parent event id -> children in arrival order
	powerToSendState map[string]bool     // user id -> allowed
	stateHandlers    handlerRegistry[func(*Event)]
	timelineHandlers handlerRegistry[func(*Event)]
}

func newWSRoom(id string) *wsRoom {
	return &wsRoom{
		id:               id,
		state:            make(map[string]map[string]*Event),
		timeline:         make(map[string]*Event),
		relations:        make(map[string][]*Event),
		powerToSendState: make(map[string]bool),
	}
}

func (r *wsRoom) ID() string { return r.id }

func (r *wsRoom) ingest(event *Event, isState bool) {
	r.mu.Lock()
	if _, seen := r.timeline[event.ID]; seen {
		r.mu.Unlock()
		return
	}
	r.timeline[event.ID] = event

	if isState {
		byKey, ok := r.state[event.Type]
		if !ok {
			byKey = make(map[string]*Event)
			r.state[event.Type] = byKey
		}
		byKey[event.StateKey] = event
	}
	if parentID := event.ReferencedEventID(); parentID != "" {
		r.relations[parentID] = append(r.relations[parentID], event)
	}
	r.mu.Unlock()

	if isState {
		r.stateHandlers.notify(func(fn func(*Event)) { fn(event) })
	} else {
		r.timelineHandlers.notify(func(fn func(*Event)) { fn(event) })
	}
}

func (r *wsRoom) CurrentStateEvent(eventType, stateKey string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byKey, ok := r.state[eventType]; ok {
		return byKey[stateKey]
	}
	return nil
}

func (r *wsRoom) CurrentStateEvents(eventType string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKey, ok := r.state[eventType]
	if !ok {
		return nil
	}
	events := make([]*Event, 0, len(byKey))
	for _, event := range byKey {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StateKey < events[j].StateKey })
	return events
}

func (r *wsRoom) FindEventByID(eventID string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeline[eventID]
}

func (r *wsRoom) RelationChildren(eventID, relType, eventType string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var children []*Event
	for _, event := range r.relations[eventID] {
		relatesTo := event.RelatesTo()
		if relatesTo == nil || relatesTo.RelType != relType {
			continue
		}
		if eventType != "" && event.Type != eventType {
			continue
		}
		children = append(children, event)
	}
	return children
}

func (r *wsRoom) CanSendStateEvent(eventType, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed, known := r.powerToSendState[userID]
	if !known {
		// Without power level data the server rejects unauthorized sends
		// anyway; default open so local checks do not block valid users.
		return true
	}
	return allowed
}

// SetCanSendStateEvent records a power level decision pushed by the
// gateway.
func (r *wsRoom) SetCanSendStateEvent(userID string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.powerToSendState[userID] = allowed
}

func (r *wsRoom) OnStateEvent(fn func(*Event)) (remove func()) {
	return r.stateHandlers.add(fn)
}

func (r *wsRoom) OnTimelineEvent(fn func(*Event)) (remove func()) {
	return r.timelineHandlers.add(fn)
}
