package voicecast

import "sync"

// PlayerFactory builds the audio player for one playback. Injected so the
// store stays independent of the concrete audio backend.
type PlayerFactory func(infoEvent *Event) ChunkPlayer

// PlaybacksStore tracks every playback by lineage id and enforces that at
// most one lineage plays at a time. Construct one per application root
// and thread it through; there is no package-level instance.
type PlaybacksStore struct {
	client    Client
	newPlayer PlayerFactory
	logger    *Logger

	mu            sync.Mutex
	current       *Playback
	byLineage     map[string]*Playback
	subscriptions map[string]func()
	changeHandler handlerRegistry[func(*Playback)]
}

func NewPlaybacksStore(client Client, newPlayer PlayerFactory) *PlaybacksStore {
	return &PlaybacksStore{
		client:        client,
		newPlayer:     newPlayer,
		logger:        GetGlobalLogger().WithComponent("PlaybacksStore"),
		byLineage:     make(map[string]*Playback),
		subscriptions: make(map[string]func()),
	}
}

// Current returns the playback currently holding the audio output, or nil.
func (s *PlaybacksStore) Current() *Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnCurrentChanged subscribes to current-playback changes (nil on clear)
// and returns a disposer.
func (s *PlaybacksStore) OnCurrentChanged(fn func(*Playback)) (remove func()) {
	return s.changeHandler.add(fn)
}

// GetOrCreate returns the playback for the given lineage, constructing it
// on first use so the same broadcast never gets duplicate model instances.
func (s *PlaybacksStore) GetOrCreate(infoEvent *Event) (*Playback, error) {
	lineageID := LineageID(infoEvent)
	if lineageID == "" {
		return nil, NewDataIntegrityError("info event lacks a resolvable lineage id")
	}

	s.mu.Lock()
	if existing, ok := s.byLineage[lineageID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	playback := NewPlayback(infoEvent, s.client, s.newPlayer(infoEvent))

	s.mu.Lock()
	if existing, ok := s.byLineage[lineageID]; ok {
		// lost the construction race
		s.mu.Unlock()
		playback.Destroy()
		return existing, nil
	}
	s.byLineage[lineageID] = playback
	s.subscriptions[lineageID] = playback.OnStateChanged(s.onPlaybackStateChanged)
	s.mu.Unlock()

	return playback, nil
}

// onPlaybackStateChanged keeps the mutual exclusion invariant: a playback
// entering Buffering or Playing pauses every other playback before being
// promoted to current; the current playback stopping clears current.
func (s *PlaybacksStore) onPlaybackStateChanged(state PlaybackState, playback *Playback) {
	switch state {
	case PlaybackStateBuffering, PlaybackStatePlaying:
		s.promote(playback)
	case PlaybackStateStopped, PlaybackStateError:
		s.mu.Lock()
		if s.current != playback {
			s.mu.Unlock()
			return
		}
		s.current = nil
		s.mu.Unlock()
		s.emitCurrentChanged(nil)
	}
}

func (s *PlaybacksStore) promote(playback *Playback) {
	s.mu.Lock()
	if s.current == playback {
		s.mu.Unlock()
		return
	}
	others := make([]*Playback, 0, len(s.byLineage))
	for _, other := range s.byLineage {
		if other != playback {
			others = append(others, other)
		}
	}
	s.mu.Unlock()

	// every other playback is silenced before this one takes the slot
	for _, other := range others {
		other.Pause()
	}

	s.mu.Lock()
	if s.current == playback {
		s.mu.Unlock()
		return
	}
	s.current = playback
	s.mu.Unlock()

	s.logger.WithField("lineage_id", playback.InfoEvent.ID).Debug("Current playback promoted")
	s.emitCurrentChanged(playback)
}

// PauseAndClearCurrent pauses the current playback, if any, and clears the
// slot. Used when a recording takes priority over listening.
func (s *PlaybacksStore) PauseAndClearCurrent() {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current == nil {
		return
	}
	current.Pause()
	s.emitCurrentChanged(nil)
}

func (s *PlaybacksStore) emitCurrentChanged(playback *Playback) {
	s.changeHandler.notify(func(fn func(*Playback)) { fn(playback) })
}

// Destroy drops all playbacks and listeners.
func (s *PlaybacksStore) Destroy() {
	s.mu.Lock()
	playbacks := s.byLineage
	subscriptions := s.subscriptions
	s.byLineage = make(map[string]*Playback)
	s.subscriptions = make(map[string]func())
	s.current = nil
	s.mu.Unlock()

	for _, dispose := range subscriptions {
		dispose()
	}
	for _, playback := range playbacks {
		playback.Destroy()
	}
	s.changeHandler.clear()
}
