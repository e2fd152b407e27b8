package voicecast

import (
	"context"

	"github.com/samber/lo"
)

// RetrieveStartedInfoEvent resolves the Started event that began the given
// event's lineage. The local timeline is checked before falling back to a
// remote fetch. This is best-effort enrichment: a failed fetch yields nil.
func RetrieveStartedInfoEvent(ctx context.Context, client Client, event *Event) *Event {
	if event == nil {
		return nil
	}

	if IsStartedInfoEvent(event) {
		return event
	}

	targetID := event.ReferencedEventID()
	if targetID == "" {
		return nil
	}

	if room := client.GetRoom(event.RoomID); room != nil {
		if found := room.FindEventByID(targetID); found != nil {
			return found
		}
	}

	fetched, err := client.FetchRoomEvent(ctx, event.RoomID, targetID)
	if err != nil {
		GetGlobalLogger().WithComponent("lineage").WithError(err).
			Debugf("failed to fetch started info event %s", targetID)
		return nil
	}
	return fetched
}

// DeriveLineageState re-derives the current state of a lineage from a
// snapshot of its relation children. Arrival order is irrelevant: a Stopped
// child is absorbing, otherwise the newest valid child wins, otherwise the
// Started event itself.
func DeriveLineageState(startEvent *Event, children []*Event) InfoState {
	valid := lo.Filter(children, func(ev *Event, _ int) bool {
		return ev.IsInfoEvent() && ValidInfoState(ev.InfoState())
	})

	if lo.SomeBy(valid, func(ev *Event) bool { return ev.InfoState() == InfoStateStopped }) {
		return InfoStateStopped
	}

	latest := lo.MaxBy(valid, func(a, b *Event) bool {
		return a.Timestamp.After(b.Timestamp)
	})
	if latest != nil {
		return latest.InfoState()
	}

	if startEvent != nil && ValidInfoState(startEvent.InfoState()) {
		return startEvent.InfoState()
	}
	return InfoStateStarted
}

// RoomLiveBroadcast is the result of scanning a room for live broadcasts.
type RoomLiveBroadcast struct {
	HasBroadcast  bool
	InfoEvent     *Event
	StartedByUser bool
}

// HasRoomLiveBroadcast scans the room's current broadcast info state events
// for live lineages. When userID is non-empty and one of the live lineages
// belongs to that user, the scan short-circuits with StartedByUser set.
func HasRoomLiveBroadcast(ctx context.Context, client Client, room Room, userID string) RoomLiveBroadcast {
	result := RoomLiveBroadcast{}
	if room == nil {
		return result
	}

	for _, event := range room.CurrentStateEvents(EventTypeVoiceBroadcastInfo) {
		if event.InfoState() == InfoStateStopped {
			continue
		}

		startedEvent := RetrieveStartedInfoEvent(ctx, client, event)
		if startedEvent == nil || startedEvent.Redacted {
			// without an intact Started event the lineage is not live
			continue
		}

		result.HasBroadcast = true
		result.InfoEvent = startedEvent

		if userID != "" && event.StateKey == userID {
			result.StartedByUser = true
			// at most one broadcast per sender, nothing more to find
			break
		}
	}

	return result
}

// FindRoomLiveBroadcastFromUserAndDevice returns the user's current live
// broadcast info event in the room, but only when it belongs to the given
// device. Synchronous; no relation traversal.
func FindRoomLiveBroadcastFromUserAndDevice(room Room, userID, deviceID string) *Event {
	if room == nil {
		return nil
	}

	event := room.CurrentStateEvent(EventTypeVoiceBroadcastInfo, userID)
	if event == nil {
		return nil
	}
	if event.InfoState() == InfoStateStopped {
		return nil
	}
	if event.DeviceID() != deviceID {
		return nil
	}
	return event
}

// LineageID returns the id of the Started event that identifies the
// lineage the given info event belongs to, or "" when it cannot be
// determined.
func LineageID(event *Event) string {
	if event == nil {
		return ""
	}
	if IsStartedInfoEvent(event) {
		return event.ID
	}
	return event.ReferencedEventID()
}
