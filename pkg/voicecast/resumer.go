package voicecast

import (
	"context"
	"sync"
)

// Resumer cleans up broadcasts this device left dangling, typically after
// a crash or a killed process. On the first completed sync it walks every
// known room and sends a Stopped event for any live broadcast started by
// this user and device. The sweep runs at most once per Resumer.
type Resumer struct {
	client Client
	config *Config
	logger *Logger

	mu        sync.Mutex
	removeSub func()
	swept     bool
	destroyed bool
}

func NewResumer(client Client, config *Config) *Resumer {
	r := &Resumer{
		client: client,
		config: config,
		logger: GetGlobalLogger().WithComponent("Resumer"),
	}

	if client.SyncState() == SyncStateSyncing {
		r.sweep()
		return r
	}

	r.mu.Lock()
	r.removeSub = client.OnSyncStateChange(r.onSyncStateChange)
	r.mu.Unlock()
	return r
}

func (r *Resumer) onSyncStateChange(state SyncState) {
	if state != SyncStateSyncing {
		return
	}
	r.sweep()
}

func (r *Resumer) sweep() {
	r.mu.Lock()
	if r.swept || r.destroyed {
		r.mu.Unlock()
		return
	}
	r.swept = true
	removeSub := r.removeSub
	r.removeSub = nil
	r.mu.Unlock()

	if removeSub != nil {
		removeSub()
	}

	userID := r.client.UserID()
	deviceID := r.client.DeviceID()
	if userID == "" || deviceID == "" {
		r.logger.Debug("No user or device id, skipping dangling broadcast sweep")
		return
	}

	ctx := context.Background()
	for _, room := range r.client.Rooms() {
		infoEvent := FindRoomLiveBroadcastFromUserAndDevice(room, userID, deviceID)
		if infoEvent == nil {
			continue
		}
		r.stopDangling(ctx, room, infoEvent)
	}
}

func (r *Resumer) stopDangling(ctx context.Context, room Room, infoEvent *Event) {
	// the latest state event may be a Paused/Resumed child; the Stopped
	// event must reference the lineage's Started event
	target := LineageID(infoEvent)
	if target == "" {
		target = infoEvent.ID
	}

	logger := r.logger.WithFields(map[string]interface{}{
		"room_id":  room.ID(),
		"event_id": target,
	})
	logger.Info("Stopping dangling broadcast from previous session")

	content := InfoEventContent(InfoStateStopped, r.client.DeviceID(), 0, 0, target)
	if _, err := r.client.SendStateEvent(ctx, room.ID(), EventTypeVoiceBroadcastInfo, r.client.UserID(), content); err != nil {
		logger.WithError(err).Error("Failed to stop dangling broadcast")
	}
}

// Destroy releases the sync subscription. Safe to call more than once.
func (r *Resumer) Destroy() {
	r.mu.Lock()
	r.destroyed = true
	removeSub := r.removeSub
	r.removeSub = nil
	r.mu.Unlock()

	if removeSub != nil {
		removeSub()
	}
}
