package voicecast

import (
	"context"
	"testing"
	"time"
)

func TestDeriveLineageState(t *testing.T) {
	start := newInfoEvent("$start", "!r", "@u:s", InfoStateStarted, 0, "")
	paused := newInfoEvent("$p", "!r", "@u:s", InfoStatePaused, time.Minute, "$start")
	resumed := newInfoEvent("$r", "!r", "@u:s", InfoStateResumed, 2*time.Minute, "$start")
	stopped := newInfoEvent("$s", "!r", "@u:s", InfoStateStopped, 3*time.Minute, "$start")
	garbage := newInfoEvent("$g", "!r", "@u:s", InfoState("garbage"), 4*time.Minute, "$start")

	tests := []struct {
		name     string
		children []*Event
		want     InfoState
	}{
		{"no children", nil, InfoStateStarted},
		{"paused", []*Event{paused}, InfoStatePaused},
		{"paused then resumed", []*Event{paused, resumed}, InfoStateResumed},
		{"stopped absorbs later garbage", []*Event{paused, stopped, garbage}, InfoStateStopped},
		{"unknown states ignored", []*Event{garbage}, InfoStateStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveLineageState(start, tt.children); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			// arrival order must not matter
			reversed := make([]*Event, 0, len(tt.children))
			for i := len(tt.children) - 1; i >= 0; i-- {
				reversed = append(reversed, tt.children[i])
			}
			if got := DeriveLineageState(start, reversed); got != tt.want {
				t.Errorf("reversed order: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetrieveStartedInfoEventReturnsSelf(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	started := newInfoEvent("$start", "!r", "@u:s", InfoStateStarted, 0, "")

	if got := RetrieveStartedInfoEvent(context.Background(), client, started); got != started {
		t.Errorf("expected the started event itself, got %v", got)
	}
	if client.fetchCalls != 0 {
		t.Errorf("expected no fetch, got %d", client.fetchCalls)
	}
}

func TestRetrieveStartedInfoEventPrefersLocalTimeline(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))

	started := newInfoEvent("$start", "!r", "@u:s", InfoStateStarted, 0, "")
	room.seedStateEvent(started)
	paused := newInfoEvent("$p", "!r", "@u:s", InfoStatePaused, time.Minute, "$start")

	if got := RetrieveStartedInfoEvent(context.Background(), client, paused); got != started {
		t.Errorf("expected local started event, got %v", got)
	}
	if client.fetchCalls != 0 {
		t.Errorf("expected no fetch for locally known event, got %d", client.fetchCalls)
	}
}

func TestRetrieveStartedInfoEventFetchesExactlyOnce(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	client.addRoom(newFakeRoom("!r"))

	started := newInfoEvent("$start", "!r", "@u:s", InfoStateStarted, 0, "")
	client.fetchable["$start"] = started
	paused := newInfoEvent("$p", "!r", "@u:s", InfoStatePaused, time.Minute, "$start")

	if got := RetrieveStartedInfoEvent(context.Background(), client, paused); got != started {
		t.Errorf("expected fetched started event, got %v", got)
	}
	if client.fetchCalls != 1 {
		t.Errorf("expected exactly one fetch, got %d", client.fetchCalls)
	}
}

func TestRetrieveStartedInfoEventFailedFetchYieldsNil(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	client.fetchErr = NewConnectionError("gateway down")
	paused := newInfoEvent("$p", "!r", "@u:s", InfoStatePaused, time.Minute, "$start")

	if got := RetrieveStartedInfoEvent(context.Background(), client, paused); got != nil {
		t.Errorf("expected nil on failed fetch, got %v", got)
	}
}

func TestHasRoomLiveBroadcast(t *testing.T) {
	t.Run("empty room", func(t *testing.T) {
		client := newFakeClient("@u:s", "DEVICE")
		room := client.addRoom(newFakeRoom("!r"))

		result := HasRoomLiveBroadcast(context.Background(), client, room, "@u:s")
		if result.HasBroadcast {
			t.Error("empty room reported a live broadcast")
		}
	})

	t.Run("stopped lineage is not live", func(t *testing.T) {
		client := newFakeClient("@u:s", "DEVICE")
		room := client.addRoom(newFakeRoom("!r"))
		room.seedStateEvent(newInfoEvent("$s", "!r", "@other:s", InfoStateStopped, 0, "$start"))

		result := HasRoomLiveBroadcast(context.Background(), client, room, "@u:s")
		if result.HasBroadcast {
			t.Error("stopped lineage reported live")
		}
	})

	t.Run("redacted start is not live", func(t *testing.T) {
		client := newFakeClient("@u:s", "DEVICE")
		room := client.addRoom(newFakeRoom("!r"))
		redactedStart := newInfoEvent("$start", "!r", "@other:s", InfoStateStarted, 0, "")
		redactedStart.Redacted = true
		room.seedStateEvent(newInfoEvent("$p", "!r", "@other:s", InfoStatePaused, time.Minute, "$start"))
		room.timeline["$start"] = redactedStart

		result := HasRoomLiveBroadcast(context.Background(), client, room, "@u:s")
		if result.HasBroadcast {
			t.Error("lineage with redacted start reported live")
		}
	})

	t.Run("someone else live", func(t *testing.T) {
		client := newFakeClient("@u:s", "DEVICE")
		room := client.addRoom(newFakeRoom("!r"))
		room.seedStateEvent(newInfoEvent("$start", "!r", "@other:s", InfoStateStarted, 0, ""))

		result := HasRoomLiveBroadcast(context.Background(), client, room, "@u:s")
		if !result.HasBroadcast {
			t.Fatal("live broadcast not detected")
		}
		if result.StartedByUser {
			t.Error("foreign broadcast attributed to user")
		}
		if result.InfoEvent == nil || result.InfoEvent.ID != "$start" {
			t.Errorf("wrong info event: %v", result.InfoEvent)
		}
	})

	t.Run("own broadcast wins", func(t *testing.T) {
		client := newFakeClient("@u:s", "DEVICE")
		room := client.addRoom(newFakeRoom("!r"))
		room.seedStateEvent(newInfoEvent("$other", "!r", "@other:s", InfoStateStarted, 0, ""))
		room.seedStateEvent(newInfoEvent("$mine", "!r", "@u:s", InfoStateStarted, 0, ""))

		result := HasRoomLiveBroadcast(context.Background(), client, room, "@u:s")
		if !result.HasBroadcast || !result.StartedByUser {
			t.Errorf("own live broadcast not attributed: %+v", result)
		}
	})
}

func TestFindRoomLiveBroadcastFromUserAndDevice(t *testing.T) {
	room := newFakeRoom("!r")
	started := newInfoEvent("$start", "!r", "@u:s", InfoStateStarted, 0, "")
	room.seedStateEvent(started)

	if got := FindRoomLiveBroadcastFromUserAndDevice(room, "@u:s", "DEVICE"); got != started {
		t.Errorf("expected the live event, got %v", got)
	}
	if got := FindRoomLiveBroadcastFromUserAndDevice(room, "@u:s", "OTHER_DEVICE"); got != nil {
		t.Errorf("foreign device matched: %v", got)
	}
	if got := FindRoomLiveBroadcastFromUserAndDevice(room, "@nobody:s", "DEVICE"); got != nil {
		t.Errorf("unknown user matched: %v", got)
	}

	stoppedRoom := newFakeRoom("!r2")
	stoppedRoom.seedStateEvent(newInfoEvent("$stop", "!r2", "@u:s", InfoStateStopped, 0, "$start"))
	if got := FindRoomLiveBroadcastFromUserAndDevice(stoppedRoom, "@u:s", "DEVICE"); got != nil {
		t.Errorf("stopped lineage matched: %v", got)
	}
}

func TestLineageID(t *testing.T) {
	started := newInfoEvent("$start", "!r", "@u:s", InfoStateStarted, 0, "")
	paused := newInfoEvent("$p", "!r", "@u:s", InfoStatePaused, time.Minute, "$start")
	orphan := newInfoEvent("$o", "!r", "@u:s", InfoStatePaused, time.Minute, "")

	if got := LineageID(started); got != "$start" {
		t.Errorf("started lineage id = %q", got)
	}
	if got := LineageID(paused); got != "$start" {
		t.Errorf("reply lineage id = %q", got)
	}
	if got := LineageID(orphan); got != "" {
		t.Errorf("orphan lineage id = %q, want empty", got)
	}
	if got := LineageID(nil); got != "" {
		t.Errorf("nil lineage id = %q, want empty", got)
	}
}
