package voicecast

import (
	"context"
	"sync"
	"time"
)

// StartNewBroadcastRecording starts a brand-new broadcast in the room:
// it re-checks the preconditions, silences the current playback, sends
// the Started info event, waits for that event to echo back through room
// state, and registers the resulting recording as current. The echoed
// event, not the locally built content, seeds the recording so its
// lineage id matches what every other client sees.
func StartNewBroadcastRecording(ctx context.Context, room Room, client Client, config *Config, dialog Dialog, playbacks *PlaybacksStore, recordings *RecordingsStore) (*Recording, error) {
	logger := GetGlobalLogger().WithComponent("Orchestration").WithField("room_id", room.ID())

	// The gate runs here as well as at pre-recording setup: room state may
	// have changed in between, and direct callers skip the setup entirely.
	ok, err := CheckBroadcastPreConditions(ctx, room, client, recordings, dialog)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewInvalidStateError("broadcast preconditions not met")
	}

	// Listening and broadcasting are mutually exclusive.
	if playbacks != nil {
		playbacks.PauseAndClearCurrent()
	}

	// Subscribe before sending so a fast echo cannot slip past us. Until
	// the event id is known, candidate echoes are buffered under the lock
	// and re-checked once the send response arrives.
	echoCh := make(chan *Event, 1)
	var echoMu sync.Mutex
	var sentEventID string
	var early []*Event
	removeSub := room.OnStateEvent(func(event *Event) {
		if event.Type != EventTypeVoiceBroadcastInfo {
			return
		}
		echoMu.Lock()
		if sentEventID == "" {
			early = append(early, event)
			echoMu.Unlock()
			return
		}
		match := event.ID == sentEventID
		echoMu.Unlock()
		if match {
			select {
			case echoCh <- event:
			default:
			}
		}
	})
	defer removeSub()

	chunkLength := int(config.GetChunkLength().Seconds())
	content := InfoEventContent(InfoStateStarted, client.DeviceID(), chunkLength, 0, "")

	eventID, err := client.SendStateEvent(ctx, room.ID(), EventTypeVoiceBroadcastInfo, client.UserID(), content)
	if err != nil {
		vErr := WrapError(err, ErrCodeConnection)
		logger.LogError(vErr)
		return nil, vErr
	}

	echoMu.Lock()
	sentEventID = eventID
	var echoed *Event
	for _, event := range early {
		if event.ID == eventID {
			echoed = event
			break
		}
	}
	early = nil
	echoMu.Unlock()

	// The echo may also have landed in room state before the subscription
	// could see it buffered.
	if echoed == nil {
		echoed = room.FindEventByID(eventID)
	}
	if echoed != nil {
		select {
		case echoCh <- echoed:
		default:
		}
	}

	logger.WithField("event_id", eventID).Debug("Broadcast start sent, awaiting echo")

	timer := time.NewTimer(config.GetEchoTimeout())
	defer timer.Stop()

	var infoEvent *Event
	select {
	case infoEvent = <-echoCh:
	case <-timer.C:
		return nil, NewEchoTimeoutError("broadcast start event did not echo back in time").
			AddDetail("event_id", eventID)
	case <-ctx.Done():
		return nil, WrapError(ctx.Err(), ErrCodeConnection)
	}

	recording := NewRecording(infoEvent, client, config, WithInitialState(InfoStateStarted))
	if err := recordings.SetCurrent(recording); err != nil {
		return nil, err
	}

	logger.LogBroadcastEvent("broadcast_started", InfoStateStarted, map[string]interface{}{
		"event_id": infoEvent.ID,
	})
	return recording, nil
}

// SetupPreRecording runs the start preconditions and, when they pass,
// registers a pre-recording for the room. A failed precondition has
// already surfaced its dialog; the returned error carries the reason.
func SetupPreRecording(ctx context.Context, room Room, client Client, config *Config, dialog Dialog, playbacks *PlaybacksStore, recordings *RecordingsStore, preRecordings *PreRecordingStore) (*PreRecording, error) {
	ok, err := CheckBroadcastPreConditions(ctx, room, client, recordings, dialog)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewInvalidStateError("broadcast preconditions not met")
	}

	preRecording := NewPreRecording(room, client.UserID(), client, config, dialog, playbacks, recordings)
	preRecordings.SetCurrent(preRecording)
	return preRecording, nil
}
