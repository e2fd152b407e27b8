package voicecast

import "time"

// Wire contract constants. These identifiers are shared with other clients
// of the same ecosystem and must not change.
const (
	EventTypeVoiceBroadcastInfo = "io.element.voice_broadcast_info"
	EventTypeRoomMessage        = "m.room.message"
	RelTypeReference            = "m.reference"
	MsgTypeAudio                = "m.audio"

	contentKeyState             = "state"
	contentKeyDeviceID          = "device_id"
	contentKeyChunkLength       = "chunk_length"
	contentKeyLastChunkSequence = "last_chunk_sequence"
	contentKeyRelatesTo         = "m.relates_to"
	contentKeyRelType           = "rel_type"
	contentKeyEventID           = "event_id"
	contentKeyMsgType           = "msgtype"
	contentKeyChunkMarker       = "io.element.voice_broadcast_chunk"
	contentKeySequence          = "sequence"
	contentKeyInfo              = "info"
	contentKeyDuration          = "duration"
)

// RelatesTo is the relation block of an event's content.
type RelatesTo struct {
	RelType string
	EventID string
}

// Event is the room event shape this SDK consumes. The surrounding client
// owns the timeline; events are treated as immutable snapshots.
type Event struct {
	ID        string
	Type      string
	RoomID    string
	Sender    string
	StateKey  string
	Timestamp time.Time
	Content   map[string]interface{}
	Redacted  bool
}

// InfoState returns the broadcast state carried by the event content.
// Unknown or missing values come back as-is; callers validate with
// ValidInfoState where it matters.
func (e *Event) InfoState() InfoState {
	if e == nil {
		return ""
	}
	return InfoState(getString(e.Content, contentKeyState))
}

// DeviceID returns the device that owns the broadcast.
func (e *Event) DeviceID() string {
	if e == nil {
		return ""
	}
	return getString(e.Content, contentKeyDeviceID)
}

// ChunkLength returns the recording-side configured chunk duration in
// seconds, or 0 when absent.
func (e *Event) ChunkLength() int {
	if e == nil {
		return 0
	}
	return getInt(e.Content, contentKeyChunkLength)
}

// LastChunkSequence returns the highest chunk sequence number announced by
// the sender, or 0 when absent.
func (e *Event) LastChunkSequence() int {
	if e == nil {
		return 0
	}
	return getInt(e.Content, contentKeyLastChunkSequence)
}

// RelatesTo returns the event's relation block, or nil when absent or
// malformed.
func (e *Event) RelatesTo() *RelatesTo {
	if e == nil {
		return nil
	}
	raw, ok := e.Content[contentKeyRelatesTo].(map[string]interface{})
	if !ok {
		return nil
	}
	rel := &RelatesTo{
		RelType: getString(raw, contentKeyRelType),
		EventID: getString(raw, contentKeyEventID),
	}
	if rel.RelType == "" && rel.EventID == "" {
		return nil
	}
	return rel
}

// ReferencedEventID returns the id of the reference relation target, or ""
// when the event carries no reference relation.
func (e *Event) ReferencedEventID() string {
	rel := e.RelatesTo()
	if rel == nil || rel.RelType != RelTypeReference {
		return ""
	}
	return rel.EventID
}

// IsInfoEvent reports whether the event is a voice broadcast info event.
func (e *Event) IsInfoEvent() bool {
	return e != nil && e.Type == EventTypeVoiceBroadcastInfo
}

// IsChunkEvent reports whether the event is an audio chunk of a broadcast:
// an audio room message tagged with the broadcast chunk marker.
func (e *Event) IsChunkEvent() bool {
	if e == nil || e.Type != EventTypeRoomMessage {
		return false
	}
	if getString(e.Content, contentKeyMsgType) != MsgTypeAudio {
		return false
	}
	_, ok := e.Content[contentKeyChunkMarker]
	return ok
}

// ChunkSequence returns the sequence number from the chunk marker, or 0
// when absent.
func (e *Event) ChunkSequence() int {
	if e == nil {
		return 0
	}
	marker, ok := e.Content[contentKeyChunkMarker].(map[string]interface{})
	if !ok {
		return 0
	}
	return getInt(marker, contentKeySequence)
}

// ChunkDuration returns the audio duration from the chunk's info block.
func (e *Event) ChunkDuration() time.Duration {
	if e == nil {
		return 0
	}
	info, ok := e.Content[contentKeyInfo].(map[string]interface{})
	if !ok {
		return 0
	}
	return time.Duration(getInt(info, contentKeyDuration)) * time.Millisecond
}

// InfoEventContent builds the wire content for a broadcast info state event.
// relatesToID is the Started event of the lineage; empty for the Started
// event itself. chunkLength and lastChunkSequence are omitted when zero.
func InfoEventContent(state InfoState, deviceID string, chunkLength, lastChunkSequence int, relatesToID string) map[string]interface{} {
	content := map[string]interface{}{
		contentKeyState:    string(state),
		contentKeyDeviceID: deviceID,
	}
	if chunkLength > 0 {
		content[contentKeyChunkLength] = chunkLength
	}
	if lastChunkSequence > 0 {
		content[contentKeyLastChunkSequence] = lastChunkSequence
	}
	if relatesToID != "" {
		content[contentKeyRelatesTo] = map[string]interface{}{
			contentKeyRelType: RelTypeReference,
			contentKeyEventID: relatesToID,
		}
	}
	return content
}

// ChunkEventContent builds the wire content for one audio chunk message,
// tagged with the broadcast chunk marker and a reference relation back to
// the lineage's Started event.
func ChunkEventContent(chunk Chunk, sequence int, startedEventID, url string) map[string]interface{} {
	return map[string]interface{}{
		"body":            "Voice message",
		contentKeyMsgType: MsgTypeAudio,
		"url":             url,
		contentKeyInfo: map[string]interface{}{
			contentKeyDuration: int(chunk.Duration / time.Millisecond),
			"mimetype":         chunk.MimeType,
			"size":             len(chunk.Data),
		},
		contentKeyChunkMarker: map[string]interface{}{
			contentKeySequence: sequence,
		},
		contentKeyRelatesTo: map[string]interface{}{
			contentKeyRelType: RelTypeReference,
			contentKeyEventID: startedEventID,
		},
	}
}

// Helper functions for type assertions
func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt(data map[string]interface{}, key string) int {
	if val, ok := data[key]; ok {
		if num, ok := val.(float64); ok {
			return int(num)
		}
		if num, ok := val.(int); ok {
			return num
		}
	}
	return 0
}
