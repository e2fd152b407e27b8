package voicecast

import (
	"testing"
	"time"
)

func TestWireEventToEvent(t *testing.T) {
	stateKey := "@u:s"
	wire := &wireEvent{
		ID:        "$e",
		Type:      EventTypeVoiceBroadcastInfo,
		RoomID:    "!r",
		Sender:    "@u:s",
		StateKey:  &stateKey,
		Timestamp: testBase.UnixMilli(),
		Content:   InfoEventContent(InfoStateStarted, "DEVICE", 120, 0, ""),
	}

	event := wire.toEvent()
	if !wire.isState() {
		t.Error("state event not recognized")
	}
	if event.StateKey != "@u:s" || !event.Timestamp.Equal(testBase) {
		t.Errorf("event = %+v", event)
	}
	if event.InfoState() != InfoStateStarted || event.ChunkLength() != 120 {
		t.Error("content lost in conversion")
	}

	wire.StateKey = nil
	if wire.isState() {
		t.Error("timeline event misclassified as state")
	}
}

func TestWSRoomIngest(t *testing.T) {
	room := newWSRoom("!r")

	var stateSeen, timelineSeen []string
	room.OnStateEvent(func(ev *Event) { stateSeen = append(stateSeen, ev.ID) })
	room.OnTimelineEvent(func(ev *Event) { timelineSeen = append(timelineSeen, ev.ID) })

	started := newInfoEvent("$start", "!r", "@u:s", InfoStateStarted, 0, "")
	room.ingest(started, true)
	room.ingest(started, true) // duplicate delivery

	chunk := newChunkEvent("$c1", "!r", 1, 10*time.Second, time.Minute, "$start")
	room.ingest(chunk, false)

	if len(stateSeen) != 1 || stateSeen[0] != "$start" {
		t.Errorf("stateSeen = %v", stateSeen)
	}
	if len(timelineSeen) != 1 || timelineSeen[0] != "$c1" {
		t.Errorf("timelineSeen = %v", timelineSeen)
	}

	if room.CurrentStateEvent(EventTypeVoiceBroadcastInfo, "@u:s") != started {
		t.Error("state lookup failed")
	}
	if room.FindEventByID("$c1") != chunk {
		t.Error("timeline lookup failed")
	}

	children := room.RelationChildren("$start", RelTypeReference, EventTypeRoomMessage)
	if len(children) != 1 || children[0] != chunk {
		t.Errorf("relation children = %v", children)
	}
}

func TestWSRoomLatestStateWins(t *testing.T) {
	room := newWSRoom("!r")

	room.ingest(newInfoEvent("$a", "!r", "@u:s", InfoStateStarted, 0, ""), true)
	stopped := newInfoEvent("$b", "!r", "@u:s", InfoStateStopped, time.Minute, "$a")
	room.ingest(stopped, true)

	if got := room.CurrentStateEvent(EventTypeVoiceBroadcastInfo, "@u:s"); got != stopped {
		t.Errorf("current state = %v, want the newer event", got)
	}
}

func TestWSRoomCanSendStateEvent(t *testing.T) {
	room := newWSRoom("!r")

	// unknown users default open; the server is the authority
	if !room.CanSendStateEvent(EventTypeVoiceBroadcastInfo, "@u:s") {
		t.Error("unknown user blocked locally")
	}

	room.SetCanSendStateEvent("@u:s", false)
	if room.CanSendStateEvent(EventTypeVoiceBroadcastInfo, "@u:s") {
		t.Error("denied user allowed")
	}
}
