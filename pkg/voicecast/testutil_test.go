package voicecast

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fakes for the Client, Room, Dialog, ChunkPlayer, ChunkSource and
// MediaUploader surfaces. Tests drive them single-threaded unless noted.

type sentEvent struct {
	roomID    string
	eventType string
	stateKey  string
	content   map[string]interface{}
}

type fakeClient struct {
	mu sync.Mutex

	userID   string
	deviceID string
	sync     SyncState

	rooms map[string]*fakeRoom

	sentState    []sentEvent
	sentMessages []sentEvent
	sendStateErr error
	sendMsgErr   error
	// onSendState runs synchronously after a state event send is recorded,
	// before the event id is returned. Tests use it to simulate echoes.
	onSendState func(eventID string, content map[string]interface{})

	fetchable  map[string]*Event
	fetchErr   error
	fetchCalls int

	syncHandlers handlerRegistry[SyncStateHandler]

	nextID int
}

func newFakeClient(userID, deviceID string) *fakeClient {
	return &fakeClient{
		userID:    userID,
		deviceID:  deviceID,
		sync:      SyncStateSyncing,
		rooms:     make(map[string]*fakeRoom),
		fetchable: make(map[string]*Event),
	}
}

func (c *fakeClient) addRoom(room *fakeRoom) *fakeRoom {
	c.rooms[room.id] = room
	return room
}

func (c *fakeClient) UserID() string   { return c.userID }
func (c *fakeClient) DeviceID() string { return c.deviceID }

func (c *fakeClient) SyncState() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sync
}

func (c *fakeClient) setSyncState(state SyncState) {
	c.mu.Lock()
	c.sync = state
	c.mu.Unlock()
	c.syncHandlers.notify(func(fn SyncStateHandler) { fn(state) })
}

func (c *fakeClient) OnSyncStateChange(fn SyncStateHandler) (remove func()) {
	return c.syncHandlers.add(fn)
}

func (c *fakeClient) GetRoom(roomID string) Room {
	if room, ok := c.rooms[roomID]; ok {
		return room
	}
	return nil
}

func (c *fakeClient) Rooms() []Room {
	rooms := make([]Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (c *fakeClient) SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content map[string]interface{}) (string, error) {
	c.mu.Lock()
	if c.sendStateErr != nil {
		err := c.sendStateErr
		c.mu.Unlock()
		return "", err
	}
	c.nextID++
	eventID := fmt.Sprintf("$state-%d", c.nextID)
	c.sentState = append(c.sentState, sentEvent{roomID, eventType, stateKey, content})
	hook := c.onSendState
	c.mu.Unlock()

	if hook != nil {
		hook(eventID, content)
	}
	return eventID, nil
}

func (c *fakeClient) SendMessageEvent(ctx context.Context, roomID string, content map[string]interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendMsgErr != nil {
		return "", c.sendMsgErr
	}
	c.nextID++
	c.sentMessages = append(c.sentMessages, sentEvent{roomID: roomID, content: content})
	return fmt.Sprintf("$msg-%d", c.nextID), nil
}

func (c *fakeClient) FetchRoomEvent(ctx context.Context, roomID, eventID string) (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchCalls++
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	if event, ok := c.fetchable[eventID]; ok {
		return event, nil
	}
	return nil, NewDataIntegrityError("event not found")
}

type fakeRoom struct {
	id      string
	canSend bool

	state     map[string]map[string]*Event
	timeline  map[string]*Event
	relations map[string][]*Event

	stateHandlers    handlerRegistry[func(*Event)]
	timelineHandlers handlerRegistry[func(*Event)]
}

func newFakeRoom(id string) *fakeRoom {
	return &fakeRoom{
		id:        id,
		canSend:   true,
		state:     make(map[string]map[string]*Event),
		timeline:  make(map[string]*Event),
		relations: make(map[string][]*Event),
	}
}

func (r *fakeRoom) ID() string { return r.id }

// seedStateEvent records the event without notifying subscribers.
func (r *fakeRoom) seedStateEvent(event *Event) {
	byKey, ok := r.state[event.Type]
	if !ok {
		byKey = make(map[string]*Event)
		r.state[event.Type] = byKey
	}
	byKey[event.StateKey] = event
	r.timeline[event.ID] = event
	if parent := event.ReferencedEventID(); parent != "" {
		r.relations[parent] = append(r.relations[parent], event)
	}
}

// pushStateEvent records the event and notifies state subscribers.
func (r *fakeRoom) pushStateEvent(event *Event) {
	r.seedStateEvent(event)
	r.stateHandlers.notify(func(fn func(*Event)) { fn(event) })
}

// seedTimelineEvent records the event without notifying subscribers.
func (r *fakeRoom) seedTimelineEvent(event *Event) {
	r.timeline[event.ID] = event
	if parent := event.ReferencedEventID(); parent != "" {
		r.relations[parent] = append(r.relations[parent], event)
	}
}

// pushTimelineEvent records the event and notifies timeline subscribers.
func (r *fakeRoom) pushTimelineEvent(event *Event) {
	r.seedTimelineEvent(event)
	r.timelineHandlers.notify(func(fn func(*Event)) { fn(event) })
}

func (r *fakeRoom) CurrentStateEvent(eventType, stateKey string) *Event {
	if byKey, ok := r.state[eventType]; ok {
		return byKey[stateKey]
	}
	return nil
}

func (r *fakeRoom) CurrentStateEvents(eventType string) []*Event {
	byKey, ok := r.state[eventType]
	if !ok {
		return nil
	}
	events := make([]*Event, 0, len(byKey))
	for _, event := range byKey {
		events = append(events, event)
	}
	return events
}

func (r *fakeRoom) FindEventByID(eventID string) *Event {
	return r.timeline[eventID]
}

func (r *fakeRoom) RelationChildren(eventID, relType, eventType string) []*Event {
	var children []*Event
	for _, event := range r.relations[eventID] {
		rel := event.RelatesTo()
		if rel == nil || rel.RelType != relType {
			continue
		}
		if eventType != "" && event.Type != eventType {
			continue
		}
		children = append(children, event)
	}
	return children
}

func (r *fakeRoom) CanSendStateEvent(eventType, userID string) bool { return r.canSend }

func (r *fakeRoom) OnStateEvent(fn func(*Event)) (remove func()) {
	return r.stateHandlers.add(fn)
}

func (r *fakeRoom) OnTimelineEvent(fn func(*Event)) (remove func()) {
	return r.timelineHandlers.add(fn)
}

type shownDialog struct {
	title   string
	message string
}

type fakeDialog struct {
	shown []shownDialog
}

func (d *fakeDialog) ShowMessage(title, message string) {
	d.shown = append(d.shown, shownDialog{title, message})
}

type fakePlayer struct {
	mu sync.Mutex

	playCalls  []string
	playErr    error
	pauseCalls int
	stopCalls  int
	destroyed  bool

	finishedHandlers handlerRegistry[func(string)]
	progressHandlers handlerRegistry[func(string, time.Duration)]
}

func (p *fakePlayer) Play(ctx context.Context, event *Event, offset time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.playCalls = append(p.playCalls, event.ID)
	return nil
}

func (p *fakePlayer) Pause()  { p.mu.Lock(); p.pauseCalls++; p.mu.Unlock() }
func (p *fakePlayer) Resume() {}
func (p *fakePlayer) Stop()   { p.mu.Lock(); p.stopCalls++; p.mu.Unlock() }

func (p *fakePlayer) OnFinished(fn func(eventID string)) (remove func()) {
	return p.finishedHandlers.add(fn)
}

func (p *fakePlayer) OnProgress(fn func(eventID string, position time.Duration)) (remove func()) {
	return p.progressHandlers.add(fn)
}

func (p *fakePlayer) Destroy() { p.mu.Lock(); p.destroyed = true; p.mu.Unlock() }

func (p *fakePlayer) finish(eventID string) {
	p.finishedHandlers.notify(func(fn func(string)) { fn(eventID) })
}

func (p *fakePlayer) progress(eventID string, position time.Duration) {
	p.progressHandlers.notify(func(fn func(string, time.Duration)) { fn(eventID, position) })
}

func (p *fakePlayer) lastPlayed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.playCalls) == 0 {
		return ""
	}
	return p.playCalls[len(p.playCalls)-1]
}

type fakeSource struct {
	started int
	paused  int
	resumed int
	stopped int

	chunkHandlers handlerRegistry[ChunkHandler]
}

func (s *fakeSource) Start() error  { s.started++; return nil }
func (s *fakeSource) Pause() error  { s.paused++; return nil }
func (s *fakeSource) Resume() error { s.resumed++; return nil }
func (s *fakeSource) Stop() error   { s.stopped++; return nil }

func (s *fakeSource) OnChunk(fn ChunkHandler) (remove func()) {
	return s.chunkHandlers.add(fn)
}

func (s *fakeSource) emit(chunk Chunk) {
	s.chunkHandlers.notify(func(fn ChunkHandler) { fn(chunk) })
}

type fakeUploader struct {
	uploads int
	err     error
}

func (u *fakeUploader) Upload(ctx context.Context, chunk Chunk) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.uploads++
	return fmt.Sprintf("mxc://media/%d", u.uploads), nil
}

// Event builders. Timestamps are offsets from a fixed base so ordering in
// tests reads naturally.

var testBase = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newInfoEvent(id, roomID, sender string, state InfoState, tsOffset time.Duration, relatesToID string) *Event {
	return &Event{
		ID:        id,
		Type:      EventTypeVoiceBroadcastInfo,
		RoomID:    roomID,
		Sender:    sender,
		StateKey:  sender,
		Timestamp: testBase.Add(tsOffset),
		Content:   InfoEventContent(state, "DEVICE", 0, 0, relatesToID),
	}
}

func newChunkEvent(id, roomID string, sequence int, duration time.Duration, tsOffset time.Duration, startedID string) *Event {
	chunk := Chunk{Data: []byte{1, 2, 3}, Duration: duration, MimeType: "audio/ogg"}
	return &Event{
		ID:        id,
		Type:      EventTypeRoomMessage,
		RoomID:    roomID,
		Sender:    "@other:server",
		Timestamp: testBase.Add(tsOffset),
		Content:   ChunkEventContent(chunk, sequence, startedID, "mxc://media/"+id),
	}
}

func testConfig() *Config {
	return &Config{
		ChunkLength:          30 * time.Second,
		MaxBroadcastLength:   time.Hour,
		EchoTimeout:          time.Second,
		MaxReconnectAttempts: 1,
	}
}
