package voicecast

import (
	"context"
	"testing"
)

func newTestPreRecording(client *fakeClient, room *fakeRoom) *PreRecording {
	playbacks, _ := newTestPlaybacksStore(client)
	recordings := NewRecordingsStore(testConfig())
	return NewPreRecording(room, client.userID, client, testConfig(), NoopDialog{}, playbacks, recordings)
}

func TestPreRecordingStoreDismissalClears(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	store := NewPreRecordingStore()

	var changes []*PreRecording
	store.OnCurrentChanged(func(p *PreRecording) { changes = append(changes, p) })

	pre := newTestPreRecording(client, room)
	store.SetCurrent(pre)
	if store.Current() != pre {
		t.Fatal("current not set")
	}

	pre.Cancel()
	if store.Current() != nil {
		t.Error("dismissal did not clear the store")
	}
	if len(changes) != 2 || changes[1] != nil {
		t.Errorf("changes = %v", changes)
	}
}

func TestPreRecordingStoreReplacementReleasesOldListener(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	store := NewPreRecordingStore()

	first := newTestPreRecording(client, room)
	second := newTestPreRecording(client, room)

	store.SetCurrent(first)
	store.SetCurrent(second)

	// the replaced pre-recording's dismissal must not clear the new one
	first.Cancel()
	if store.Current() != second {
		t.Error("stale dismissal cleared the replacement")
	}

	second.Cancel()
	if store.Current() != nil {
		t.Error("dismissal of the active pre-recording did not clear")
	}
}

func TestPreRecordingDismissesExactlyOnce(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	room := client.addRoom(newFakeRoom("!r"))
	pre := newTestPreRecording(client, room)

	dismissals := 0
	pre.OnDismiss(func(*PreRecording) { dismissals++ })

	pre.Cancel()
	pre.Cancel()

	if dismissals != 1 {
		t.Errorf("dismissals = %d, want 1", dismissals)
	}
}

func TestPreRecordingStartDismissesOnFailure(t *testing.T) {
	client := newFakeClient("@u:s", "DEVICE")
	client.sendStateErr = NewConnectionError("gateway down")
	room := client.addRoom(newFakeRoom("!r"))
	pre := newTestPreRecording(client, room)

	dismissed := false
	pre.OnDismiss(func(*PreRecording) { dismissed = true })

	if err := pre.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}
	if !dismissed {
		t.Error("failed start must still dismiss the pre-recording")
	}
}
