package voicecast

import "context"

const startBroadcastDialogTitle = "Can't start a new voice broadcast"

// CheckBroadcastPreConditions decides whether a new broadcast may start in
// the room. Each failed check surfaces a user-facing dialog and resolves
// to false; no network write happens here. Checks run in a fixed order,
// short-circuiting: own recording in progress, permission, connection,
// then the room-wide live scan. The connection check runs before the scan
// so an offline client never attempts the scan's remote fetches.
func CheckBroadcastPreConditions(ctx context.Context, room Room, client Client, recordings *RecordingsStore, dialog Dialog) (bool, error) {
	if dialog == nil {
		dialog = NoopDialog{}
	}
	logger := GetGlobalLogger().WithComponent("Preconditions").WithField("room_id", room.ID())

	if recordings.Current() != nil {
		logger.Info("Broadcast blocked, own recording in progress")
		dialog.ShowMessage(
			startBroadcastDialogTitle,
			"You are already recording a voice broadcast. Please end your current voice broadcast to start a new one.",
		)
		return false, NewAlreadyRecordingError()
	}

	if !room.CanSendStateEvent(EventTypeVoiceBroadcastInfo, client.UserID()) {
		logger.Info("Broadcast blocked, missing permission")
		dialog.ShowMessage(
			startBroadcastDialogTitle,
			"You don't have the required permissions to start a voice broadcast in this room. Contact a room administrator to upgrade your permissions.",
		)
		return false, NewNoPermissionError()
	}

	if client.SyncState() == SyncStateError {
		logger.Warn("Broadcast blocked, no connection")
		dialog.ShowMessage(
			"Connection error",
			"Unfortunately we're unable to start a recording right now. Please try again later.",
		)
		return false, NewNoConnectionError()
	}

	if live := HasRoomLiveBroadcast(ctx, client, room, client.UserID()); live.HasBroadcast {
		// a live lineage of this user, e.g. from another device, blocks
		// just like a local recording would
		if live.StartedByUser {
			logger.Info("Broadcast blocked, user already live from another session")
			dialog.ShowMessage(
				startBroadcastDialogTitle,
				"You are already recording a voice broadcast. Please end your current voice broadcast to start a new one.",
			)
			return false, NewAlreadyRecordingError()
		}
		logger.Info("Broadcast blocked, someone else is live")
		dialog.ShowMessage(
			startBroadcastDialogTitle,
			"Someone else is already recording a voice broadcast. Wait for their voice broadcast to end to start a new one.",
		)
		return false, NewOthersRecordingError()
	}

	return true, nil
}
