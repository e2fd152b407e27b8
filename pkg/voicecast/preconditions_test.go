package voicecast

import (
	"context"
	"testing"
	"time"
)

func TestPreConditionsPassOnQuietRoom(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	recordings := NewRecordingsStore(testConfig())
	dialog := &fakeDialog{}

	ok, err := CheckBroadcastPreConditions(context.Background(), room, client, recordings, dialog)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want pass", ok, err)
	}
	if len(dialog.shown) != 0 {
		t.Errorf("dialogs shown on pass: %v", dialog.shown)
	}
}

func TestPreConditionsOwnRecordingInProgress(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	recordings := NewRecordingsStore(testConfig())
	if err := recordings.SetCurrent(newTestRecording(t, client, InfoStateStarted)); err != nil {
		t.Fatalf("seed recording: %v", err)
	}
	dialog := &fakeDialog{}

	ok, err := CheckBroadcastPreConditions(context.Background(), room, client, recordings, dialog)
	if ok {
		t.Fatal("check passed despite own recording")
	}
	if !IsErrorCode(err, ErrCodeAlreadyRecording) {
		t.Errorf("err = %v", err)
	}
	if len(dialog.shown) != 1 || dialog.shown[0].title != "Can't start a new voice broadcast" {
		t.Errorf("dialog = %v", dialog.shown)
	}
	if len(client.sentState) != 0 {
		t.Error("precondition check must not send anything")
	}
}

func TestPreConditionsMissingPermission(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	room.canSend = false
	dialog := &fakeDialog{}

	ok, err := CheckBroadcastPreConditions(context.Background(), room, client, NewRecordingsStore(testConfig()), dialog)
	if ok {
		t.Fatal("check passed without permission")
	}
	if !IsErrorCode(err, ErrCodeNoPermission) {
		t.Errorf("err = %v", err)
	}
	if len(dialog.shown) != 1 {
		t.Errorf("dialog = %v", dialog.shown)
	}
}

func TestPreConditionsSomeoneElseLive(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	room.seedStateEvent(newInfoEvent("$other", "!r", "@other:s", InfoStateStarted, 0, ""))
	dialog := &fakeDialog{}

	ok, err := CheckBroadcastPreConditions(context.Background(), room, client, NewRecordingsStore(testConfig()), dialog)
	if ok {
		t.Fatal("check passed despite foreign live broadcast")
	}
	if !IsErrorCode(err, ErrCodeOthersRecording) {
		t.Errorf("err = %v", err)
	}
	if len(dialog.shown) != 1 {
		t.Errorf("dialog = %v", dialog.shown)
	}
}

func TestPreConditionsOwnLiveBroadcastElsewhere(t *testing.T) {
	// an own live lineage from another device blocks like a local
	// recording, with the "already recording" messaging
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	room.seedStateEvent(newInfoEvent("$mine", "!r", "@u:s", InfoStateStarted, 0, ""))
	dialog := &fakeDialog{}

	ok, err := CheckBroadcastPreConditions(context.Background(), room, client, NewRecordingsStore(testConfig()), dialog)
	if ok {
		t.Fatal("check passed despite own live broadcast in room state")
	}
	if !IsErrorCode(err, ErrCodeAlreadyRecording) {
		t.Errorf("err = %v, want already-recording", err)
	}
	if len(dialog.shown) != 1 || dialog.shown[0].title != "Can't start a new voice broadcast" {
		t.Errorf("dialog = %v", dialog.shown)
	}
}

func TestPreConditionsNoConnection(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	client.sync = SyncStateError
	room := client.addRoom(newFakeRoom("!r"))
	dialog := &fakeDialog{}

	ok, err := CheckBroadcastPreConditions(context.Background(), room, client, NewRecordingsStore(testConfig()), dialog)
	if ok {
		t.Fatal("check passed without connection")
	}
	if !IsErrorCode(err, ErrCodeNoConnection) {
		t.Errorf("err = %v", err)
	}
	if len(dialog.shown) != 1 || dialog.shown[0].title != "Connection error" {
		t.Errorf("dialog = %v", dialog.shown)
	}
	if len(client.sentState) != 0 {
		t.Error("no state event may be sent when the check fails")
	}
}

func TestPreConditionsNoConnectionBeforeLiveScan(t *testing.T) {
	// offline wins over a foreign live broadcast: the connection check
	// runs first, so the live scan (and its remote fetches) never happens
	client := newFakeClient("@u:s", "DEVICE")
	client.sync = SyncStateError
	room := client.addRoom(newFakeRoom("!r"))
	// a paused foreign lineage whose start event would need a remote fetch
	room.seedStateEvent(newInfoEvent("$other-p", "!r", "@other:s", InfoStatePaused, time.Minute, "$other-start"))
	dialog := &fakeDialog{}

	ok, err := CheckBroadcastPreConditions(context.Background(), room, client, NewRecordingsStore(testConfig()), dialog)
	if ok {
		t.Fatal("check passed without connection")
	}
	if !IsErrorCode(err, ErrCodeNoConnection) {
		t.Errorf("err = %v, want no-connection", err)
	}
	if len(dialog.shown) != 1 || dialog.shown[0].title != "Connection error" {
		t.Errorf("dialog = %v", dialog.shown)
	}
	if client.fetchCalls != 0 {
		t.Errorf("live scan fetched remotely while offline, fetches = %d", client.fetchCalls)
	}
}

func TestPreConditionsNilDialog(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	client.sync = SyncStateError
	room := client.addRoom(newFakeRoom("!r"))

	// must not panic without a dialog implementation
	if ok, _ := CheckBroadcastPreConditions(context.Background(), room, client, NewRecordingsStore(testConfig()), nil); ok {
		t.Fatal("check passed without connection")
	}
}
