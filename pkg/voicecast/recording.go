package voicecast

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Recording is the recording-side state machine of one broadcast lineage:
// Started -> {Paused <-> Resumed} -> Stopped. Every transition is persisted
// as an info state event referencing the lineage's Started event; local
// state only advances once the server acknowledged the send.
type Recording struct {
	// InfoEvent is the Started event that identifies this lineage.
	InfoEvent *Event

	client Client
	config *Config
	logger *Logger

	mu             sync.Mutex
	state          InfoState
	inFlight       bool
	inFlightTarget InfoState
	sequence       int
	recordedLength time.Duration
	source         ChunkSource
	uploader       MediaUploader
	removeChunkSub func()

	stateHandlers handlerRegistry[RecordingStateHandler]
	errorHandlers handlerRegistry[ErrorHandler]
}

// RecordingOption configures a Recording at construction time.
type RecordingOption func(*Recording)

// WithInitialState skips the relation graph walk and seeds the state
// machine explicitly. Used by orchestration right after the Started event
// echoed back.
func WithInitialState(state InfoState) RecordingOption {
	return func(r *Recording) {
		r.state = state
	}
}

// NewRecording wraps the given Started info event. Without an explicit
// initial state the current state is re-derived from the locally known
// relation children, so a Stopped reply wins over the literal content of
// the Started event.
func NewRecording(infoEvent *Event, client Client, config *Config, opts ...RecordingOption) *Recording {
	r := &Recording{
		InfoEvent: infoEvent,
		client:    client,
		config:    config,
		logger:    GetGlobalLogger().WithComponent("Recording"),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.state == "" {
		r.state = r.deriveState()
	}

	return r
}

func (r *Recording) deriveState() InfoState {
	var children []*Event
	if room := r.client.GetRoom(r.InfoEvent.RoomID); room != nil {
		children = room.RelationChildren(r.InfoEvent.ID, RelTypeReference, EventTypeVoiceBroadcastInfo)
	}
	return DeriveLineageState(r.InfoEvent, children)
}

// LineageID returns the id of the lineage's Started event, or "" when it
// cannot be determined.
func (r *Recording) LineageID() string {
	return LineageID(r.InfoEvent)
}

// GetState returns the current recording state.
func (r *Recording) GetState() InfoState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnStateChanged subscribes to state transitions and returns a disposer.
func (r *Recording) OnStateChanged(fn RecordingStateHandler) (remove func()) {
	return r.stateHandlers.add(fn)
}

// OnError subscribes to error conditions, most notably connection errors
// on failed sends, and returns a disposer.
func (r *Recording) OnError(fn ErrorHandler) (remove func()) {
	return r.errorHandlers.add(fn)
}

// BindSource attaches a chunk source and uploader. Completed chunks are
// uploaded and sent as chunk messages of this lineage. Capture starts
// immediately when the recording is live.
func (r *Recording) BindSource(source ChunkSource, uploader MediaUploader) error {
	r.mu.Lock()
	if r.source != nil {
		r.mu.Unlock()
		return NewInvalidStateError("recording already has a chunk source")
	}
	r.source = source
	r.uploader = uploader
	r.removeChunkSub = source.OnChunk(r.handleChunk)
	live := r.state == InfoStateStarted || r.state == InfoStateResumed
	r.mu.Unlock()

	if live {
		return source.Start()
	}
	return nil
}

func (r *Recording) handleChunk(chunk Chunk) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var url string
	if r.uploader != nil {
		var err error
		url, err = r.uploader.Upload(ctx, chunk)
		if err != nil {
			r.logger.WithError(err).Error("Chunk upload failed")
			r.emitError(WrapError(err, ErrCodeConnection))
			return
		}
	}

	r.mu.Lock()
	r.sequence++
	sequence := r.sequence
	r.recordedLength += chunk.Duration
	exceeded := r.recordedLength >= r.config.GetMaxBroadcastLength()
	r.mu.Unlock()

	content := ChunkEventContent(chunk, sequence, r.InfoEvent.ID, url)
	if _, err := r.client.SendMessageEvent(ctx, r.InfoEvent.RoomID, content); err != nil {
		r.logger.WithError(err).Error("Failed to send chunk message")
		r.emitError(WrapError(err, ErrCodeConnection))
		return
	}

	r.logger.LogBroadcastEvent("chunk_sent", r.GetState(), map[string]interface{}{
		"sequence": sequence,
		"duration": chunk.Duration.String(),
	})

	if exceeded {
		r.logger.Warn("Maximum broadcast length reached, stopping")
		if err := r.Stop(ctx); err != nil {
			r.logger.WithError(err).Error("Failed to stop broadcast at maximum length")
		}
	}
}

// Pause pauses the broadcast. Only legal from Started or Resumed; calling
// it while already paused is a no-op. A concurrent transition to the same
// target coalesces into a no-op; a conflicting one errors.
func (r *Recording) Pause(ctx context.Context) error {
	return r.transition(ctx, InfoStatePaused, func(state InfoState) error {
		switch state {
		case InfoStatePaused:
			return errAlreadyThere
		case InfoStateStarted, InfoStateResumed:
			return nil
		default:
			return NewInvalidStateError(fmt.Sprintf("cannot pause broadcast in state %q", state))
		}
	})
}

// Resume resumes a paused broadcast.
func (r *Recording) Resume(ctx context.Context) error {
	return r.transition(ctx, InfoStateResumed, func(state InfoState) error {
		switch state {
		case InfoStateStarted, InfoStateResumed:
			return errAlreadyThere
		case InfoStatePaused:
			return nil
		default:
			return NewInvalidStateError(fmt.Sprintf("cannot resume broadcast in state %q", state))
		}
	})
}

// Stop ends the broadcast. Stopped is terminal: repeated calls are no-ops
// and send nothing.
func (r *Recording) Stop(ctx context.Context) error {
	return r.transition(ctx, InfoStateStopped, func(state InfoState) error {
		if state == InfoStateStopped {
			return errAlreadyThere
		}
		return nil
	})
}

// errAlreadyThere marks transitions coalesced into no-ops.
var errAlreadyThere = NewInvalidStateError("already in target state")

func (r *Recording) transition(ctx context.Context, target InfoState, check func(InfoState) error) error {
	r.mu.Lock()
	if err := check(r.state); err != nil {
		r.mu.Unlock()
		if err == errAlreadyThere {
			return nil
		}
		return err
	}
	if r.inFlight {
		// a transition to the same target is already on the wire; coalesce.
		// A different target cannot be queued behind it.
		pending := r.inFlightTarget
		r.mu.Unlock()
		if pending == target {
			return nil
		}
		return NewInvalidStateError(fmt.Sprintf("transition to %q already in flight", pending))
	}
	r.inFlight = true
	r.inFlightTarget = target
	sequence := r.sequence
	r.mu.Unlock()

	content := InfoEventContent(target, r.client.DeviceID(), 0, sequence, r.InfoEvent.ID)
	_, err := r.client.SendStateEvent(ctx, r.InfoEvent.RoomID, EventTypeVoiceBroadcastInfo, r.client.UserID(), content)

	r.mu.Lock()
	r.inFlight = false
	r.inFlightTarget = ""
	if err != nil {
		// local state stays where it was
		r.mu.Unlock()
		vErr := WrapError(err, ErrCodeConnection)
		r.logger.WithError(err).Errorf("Failed to send %s info event", target)
		r.emitError(vErr)
		return vErr
	}
	r.state = target
	source := r.source
	r.mu.Unlock()

	if source != nil {
		r.driveSource(source, target)
	}

	r.logger.LogBroadcastEvent("state_changed", target, map[string]interface{}{
		"lineage_id": r.LineageID(),
	})
	r.emitStateChanged(target)
	return nil
}

func (r *Recording) driveSource(source ChunkSource, state InfoState) {
	var err error
	switch state {
	case InfoStatePaused:
		err = source.Pause()
	case InfoStateResumed:
		err = source.Resume()
	case InfoStateStopped:
		err = source.Stop()
	}
	if err != nil {
		r.logger.WithError(err).Error("Chunk source transition failed")
		r.emitError(WrapError(err, ErrCodeAudioDevice))
	}
}

func (r *Recording) emitStateChanged(state InfoState) {
	r.stateHandlers.notify(func(fn RecordingStateHandler) { fn(state, r) })
}

func (r *Recording) emitError(err *VoicecastError) {
	r.errorHandlers.notify(func(fn ErrorHandler) { fn(err) })
}

// Destroy releases the chunk source subscription and all listeners. It
// does not send anything.
func (r *Recording) Destroy() {
	r.mu.Lock()
	source := r.source
	removeSub := r.removeChunkSub
	r.source = nil
	r.removeChunkSub = nil
	r.mu.Unlock()

	if removeSub != nil {
		removeSub()
	}
	if source != nil {
		if err := source.Stop(); err != nil {
			r.logger.WithError(err).Warn("Failed to stop chunk source on destroy")
		}
	}
	r.stateHandlers.clear()
	r.errorHandlers.clear()
}
