package voicecast

import (
	"context"
	"sync"
	"time"
)

// PlaybackTimes carries the timing snapshot emitted on every position or
// duration change.
type PlaybackTimes struct {
	DurationSeconds float64
	TimeSeconds     float64
	TimeLeftSeconds float64
}

// Playback is the listening-side state machine of one broadcast lineage:
// Stopped -> Playing <-> Paused/Buffering -> Stopped, with Error reachable
// from anywhere. A playback of a live lineage tails new chunks as they
// arrive; a stopped lineage plays as a fixed-length, scrub-able recording.
type Playback struct {
	// InfoEvent is the Started event that identifies this lineage.
	InfoEvent *Event

	client Client
	player ChunkPlayer
	logger *Logger

	mu            sync.Mutex
	state         PlaybackState
	infoState     InfoState
	liveness      Liveness
	lastInfoEvent *Event
	chunks        *ChunkEvents
	current       *Event
	position      time.Duration
	duration      time.Duration

	disposers []func()

	stateHandlers     handlerRegistry[PlaybackStateHandler]
	livenessHandlers  handlerRegistry[LivenessHandler]
	timesHandlers     handlerRegistry[TimesHandler]
	infoStateHandlers handlerRegistry[func(InfoState)]
}

// NewPlayback wraps the given Started info event for listening. Locally
// known info and chunk relation children are replayed immediately; new
// ones are tracked through room subscriptions.
func NewPlayback(infoEvent *Event, client Client, player ChunkPlayer) *Playback {
	p := &Playback{
		InfoEvent: infoEvent,
		client:    client,
		player:    player,
		logger:    GetGlobalLogger().WithComponent("Playback"),
		state:     PlaybackStateStopped,
		liveness:  LivenessNotLive,
		chunks:    NewChunkEvents(),
	}

	p.addInfoEvent(infoEvent)
	p.loadRelations()

	p.disposers = append(p.disposers,
		player.OnFinished(p.onChunkFinished),
		player.OnProgress(p.onChunkProgress),
	)

	return p
}

func (p *Playback) loadRelations() {
	room := p.client.GetRoom(p.InfoEvent.RoomID)
	if room == nil {
		return
	}

	for _, ev := range room.RelationChildren(p.InfoEvent.ID, RelTypeReference, EventTypeVoiceBroadcastInfo) {
		p.addInfoEvent(ev)
	}
	for _, ev := range room.RelationChildren(p.InfoEvent.ID, RelTypeReference, EventTypeRoomMessage) {
		p.addChunkEvent(ev)
	}

	p.disposers = append(p.disposers,
		room.OnStateEvent(func(ev *Event) {
			if ev.IsInfoEvent() && ev.ReferencedEventID() == p.InfoEvent.ID {
				p.addInfoEvent(ev)
			}
		}),
		room.OnTimelineEvent(func(ev *Event) {
			if ev.ReferencedEventID() == p.InfoEvent.ID {
				p.addChunkEvent(ev)
			}
		}),
	)
}

// addInfoEvent folds a lineage info event into the playback. Older events
// and unknown states are ignored, so arrival order does not matter.
func (p *Playback) addInfoEvent(event *Event) {
	if event == nil || !ValidInfoState(event.InfoState()) {
		return
	}

	p.mu.Lock()
	if p.lastInfoEvent != nil && !event.Timestamp.After(p.lastInfoEvent.Timestamp) {
		p.mu.Unlock()
		return
	}
	p.lastInfoEvent = event
	changed := p.infoState != event.InfoState()
	p.infoState = event.InfoState()
	newLiveness := DetermineLiveness(p.infoState)
	livenessChanged := p.liveness != newLiveness
	p.liveness = newLiveness
	infoState := p.infoState
	p.mu.Unlock()

	if changed {
		p.infoStateHandlers.notify(func(fn func(InfoState)) { fn(infoState) })
	}
	if livenessChanged {
		p.livenessHandlers.notify(func(fn LivenessHandler) { fn(newLiveness) })
	}
}

func (p *Playback) addChunkEvent(event *Event) {
	if !event.IsChunkEvent() || event.ID == "" {
		return
	}

	p.mu.Lock()
	if !p.chunks.Add(event) {
		p.mu.Unlock()
		return
	}
	p.duration = p.chunks.Length()
	buffering := p.state == PlaybackStateBuffering
	p.mu.Unlock()

	p.emitTimes()

	if buffering {
		// a tailing playback was waiting for this chunk
		p.playEvent(context.Background(), event, 0)
	}
}

// GetState returns the current playback state.
func (p *Playback) GetState() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// GetInfoState returns the lineage state as last seen.
func (p *Playback) GetInfoState() InfoState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infoState
}

// GetLiveness returns the lineage's current liveness.
func (p *Playback) GetLiveness() Liveness {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveness
}

// Times returns the current timing snapshot.
func (p *Playback) Times() PlaybackTimes {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timesLocked()
}

func (p *Playback) timesLocked() PlaybackTimes {
	duration := p.duration.Seconds()
	position := p.position.Seconds()
	timeLeft := duration - position
	if timeLeft < 0 {
		timeLeft = 0
	}
	return PlaybackTimes{
		DurationSeconds: duration,
		TimeSeconds:     position,
		TimeLeftSeconds: timeLeft,
	}
}

func (p *Playback) OnStateChanged(fn PlaybackStateHandler) (remove func()) {
	return p.stateHandlers.add(fn)
}

func (p *Playback) OnLivenessChanged(fn LivenessHandler) (remove func()) {
	return p.livenessHandlers.add(fn)
}

func (p *Playback) OnTimesChanged(fn TimesHandler) (remove func()) {
	return p.timesHandlers.add(fn)
}

func (p *Playback) OnInfoStateChanged(fn func(InfoState)) (remove func()) {
	return p.infoStateHandlers.add(fn)
}

// Toggle is the single entry point used by the UI: stopped starts,
// playing/buffering pauses, paused resumes. Error is final.
func (p *Playback) Toggle(ctx context.Context) {
	switch p.GetState() {
	case PlaybackStateError:
		return
	case PlaybackStateStopped:
		p.Start(ctx)
	case PlaybackStatePaused:
		p.Resume(ctx)
	default:
		p.Pause()
	}
}

// Start begins playback: a stopped lineage plays from the beginning, a
// live lineage tails from the newest chunk. With no chunks yet the
// playback buffers.
func (p *Playback) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == PlaybackStatePlaying {
		p.mu.Unlock()
		return
	}
	var toPlay *Event
	if p.infoState == InfoStateStopped {
		toPlay = p.chunks.First()
	} else {
		toPlay = p.chunks.Last()
	}
	p.mu.Unlock()

	if toPlay == nil {
		p.setState(PlaybackStateBuffering)
		return
	}
	p.playEvent(ctx, toPlay, 0)
}

func (p *Playback) playEvent(ctx context.Context, event *Event, offset time.Duration) {
	p.setState(PlaybackStateBuffering)

	if err := p.player.Play(ctx, event, offset); err != nil {
		p.logger.WithError(err).WithField("chunk_id", event.ID).Error("Unable to load broadcast chunk")
		p.setError()
		return
	}

	p.mu.Lock()
	p.current = event
	p.position = p.chunks.LengthTo(event) + offset
	p.mu.Unlock()

	p.setState(PlaybackStatePlaying)
	p.emitTimes()
}

func (p *Playback) onChunkFinished(eventID string) {
	p.mu.Lock()
	if p.current == nil || p.current.ID != eventID {
		p.mu.Unlock()
		return
	}
	next := p.chunks.Next(p.current)
	atLast := p.chunks.SequenceFor(p.current) >= p.lastChunkSequenceLocked()
	stoppedLineage := p.infoState == InfoStateStopped
	p.mu.Unlock()

	if next != nil {
		p.playEvent(context.Background(), next, 0)
		return
	}
	if stoppedLineage && atLast {
		p.Stop()
		return
	}
	// broadcast still running but no chunk to play yet
	p.setState(PlaybackStateBuffering)
}

// lastChunkSequenceLocked returns the sequence announced by the latest
// info event, falling back to the number of received chunks.
func (p *Playback) lastChunkSequenceLocked() int {
	if p.lastInfoEvent != nil {
		if seq := p.lastInfoEvent.LastChunkSequence(); seq > 0 {
			return seq
		}
	}
	return p.chunks.Len()
}

func (p *Playback) onChunkProgress(eventID string, chunkPosition time.Duration) {
	p.mu.Lock()
	if p.current == nil || p.current.ID != eventID {
		p.mu.Unlock()
		return
	}
	newPosition := p.chunks.LengthTo(p.current) + chunkPosition
	// do not jump backwards when transiting between chunks
	if newPosition < p.position {
		p.mu.Unlock()
		return
	}
	p.position = newPosition
	p.mu.Unlock()

	p.emitTimes()
}

// SkipTo seeks within the known chunk timeline. A target beyond all known
// chunks logs and leaves the position untouched.
func (p *Playback) SkipTo(ctx context.Context, position time.Duration) {
	if p.GetState() == PlaybackStateError {
		return
	}

	p.mu.Lock()
	target := p.chunks.FindByTime(position)
	p.mu.Unlock()

	if target == nil {
		p.logger.WithField("position", position.String()).Warn("Chunk to skip to not found")
		return
	}

	p.mu.Lock()
	offset := position - p.chunks.LengthTo(target)
	wasPlaying := p.state == PlaybackStatePlaying
	p.mu.Unlock()

	if err := p.player.Play(ctx, target, offset); err != nil {
		p.logger.WithError(err).Error("Unable to skip to broadcast chunk")
		p.setError()
		return
	}

	p.mu.Lock()
	p.current = target
	p.position = position
	p.mu.Unlock()

	if !wasPlaying {
		p.player.Pause()
		p.setState(PlaybackStatePaused)
	} else {
		p.setState(PlaybackStatePlaying)
	}
	p.emitTimes()
}

// Pause pauses playback. Stopped broadcasts cannot be paused; Error is
// final.
func (p *Playback) Pause() {
	state := p.GetState()
	if state == PlaybackStateError || state == PlaybackStateStopped {
		return
	}

	p.player.Pause()
	p.setState(PlaybackStatePaused)
}

// Resume continues a paused playback, starting from the beginning when
// nothing was playing yet.
func (p *Playback) Resume(ctx context.Context) {
	if p.GetState() == PlaybackStateError {
		return
	}

	p.mu.Lock()
	hasCurrent := p.current != nil
	p.mu.Unlock()

	if !hasCurrent {
		p.Start(ctx)
		return
	}

	p.player.Resume()
	p.setState(PlaybackStatePlaying)
}

// Stop ends playback and rewinds. Error is final.
func (p *Playback) Stop() {
	if p.GetState() == PlaybackStateError {
		return
	}

	p.player.Stop()

	p.mu.Lock()
	p.current = nil
	p.position = 0
	p.mu.Unlock()

	p.setState(PlaybackStateStopped)
	p.emitTimes()
}

func (p *Playback) setState(state PlaybackState) {
	p.mu.Lock()
	if p.state == state {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.mu.Unlock()

	p.logger.LogPlaybackEvent("state_changed", state, map[string]interface{}{
		"lineage_id": p.InfoEvent.ID,
	})
	p.stateHandlers.notify(func(fn PlaybackStateHandler) { fn(state, p) })
}

// setError stops the current chunk and enters the final Error state.
func (p *Playback) setError() {
	p.player.Stop()

	p.mu.Lock()
	p.current = nil
	p.position = 0
	p.mu.Unlock()

	p.setState(PlaybackStateError)
}

// Destroy releases subscriptions, the player and all listeners.
func (p *Playback) Destroy() {
	for _, dispose := range p.disposers {
		dispose()
	}
	p.disposers = nil
	p.player.Destroy()
	p.stateHandlers.clear()
	p.livenessHandlers.clear()
	p.timesHandlers.clear()
	p.infoStateHandlers.clear()
}

func (p *Playback) emitTimes() {
	p.mu.Lock()
	times := p.timesLocked()
	p.mu.Unlock()
	p.timesHandlers.notify(func(fn TimesHandler) { fn(times) })
}
