package voicecast

import (
	"context"
	"sync"
)

// PreRecording is the transient object between "user requested to
// broadcast" and "recording actually started". It is dismissed exactly
// once, either through Start or through Cancel.
type PreRecording struct {
	room   Room
	sender string
	client Client
	config *Config
	dialog Dialog

	playbacks  *PlaybacksStore
	recordings *RecordingsStore

	logger          *Logger
	dismissOnce     sync.Once
	dismissHandlers handlerRegistry[func(*PreRecording)]
}

func NewPreRecording(room Room, sender string, client Client, config *Config, dialog Dialog, playbacks *PlaybacksStore, recordings *RecordingsStore) *PreRecording {
	return &PreRecording{
		room:       room,
		sender:     sender,
		client:     client,
		config:     config,
		dialog:     dialog,
		playbacks:  playbacks,
		recordings: recordings,
		logger:     GetGlobalLogger().WithComponent("PreRecording"),
	}
}

// Room returns the room the broadcast would go to.
func (p *PreRecording) Room() Room {
	return p.room
}

// Sender returns the user that requested the broadcast.
func (p *PreRecording) Sender() string {
	return p.sender
}

// OnDismiss subscribes to the dismissal signal and returns a disposer.
// The signal fires exactly once per pre-recording.
func (p *PreRecording) OnDismiss(fn func(*PreRecording)) (remove func()) {
	return p.dismissHandlers.add(fn)
}

// Start turns the pre-recording into an actual broadcast recording. The
// pre-recording dismisses regardless of the outcome; a failed start is
// reported via the returned error.
func (p *PreRecording) Start(ctx context.Context) error {
	defer p.dismiss()

	_, err := StartNewBroadcastRecording(ctx, p.room, p.client, p.config, p.dialog, p.playbacks, p.recordings)
	return err
}

// Cancel dismisses the pre-recording without starting anything.
func (p *PreRecording) Cancel() {
	p.dismiss()
}

func (p *PreRecording) dismiss() {
	p.dismissOnce.Do(func() {
		p.logger.WithField("room_id", p.room.ID()).Debug("Pre-recording dismissed")
		p.dismissHandlers.notify(func(fn func(*PreRecording)) { fn(p) })
	})
}
