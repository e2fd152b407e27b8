package voicecast

import "sync"

// RecordingsStore tracks the one in-progress broadcast recording of this
// session plus every recording it handed out, keyed by lineage id.
// Construct one per application root and thread it through; there is no
// package-level instance.
type RecordingsStore struct {
	config *Config
	logger *Logger

	mu            sync.Mutex
	current       *Recording
	byLineage     map[string]*Recording
	releaseSub    func()
	changeHandler handlerRegistry[func(*Recording)]
}

func NewRecordingsStore(config *Config) *RecordingsStore {
	return &RecordingsStore{
		config:    config,
		logger:    GetGlobalLogger().WithComponent("RecordingsStore"),
		byLineage: make(map[string]*Recording),
	}
}

// Current returns the recording in progress, or nil.
func (s *RecordingsStore) Current() *Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnCurrentChanged subscribes to current-recording changes (nil on clear)
// and returns a disposer.
func (s *RecordingsStore) OnCurrentChanged(fn func(*Recording)) (remove func()) {
	return s.changeHandler.add(fn)
}

// SetCurrent promotes the recording to current. A recording without a
// resolvable lineage id indicates a protocol bug upstream and fails
// loudly. The store subscribes to the recording and clears itself when
// the recording stops.
func (s *RecordingsStore) SetCurrent(recording *Recording) error {
	if recording == nil {
		return NewDataIntegrityError("cannot set nil recording as current")
	}
	lineageID := recording.LineageID()
	if lineageID == "" {
		return NewDataIntegrityError("recording lacks a resolvable lineage id")
	}

	s.mu.Lock()
	if s.current == recording {
		s.mu.Unlock()
		return nil
	}
	if s.releaseSub != nil {
		s.releaseSub()
		s.releaseSub = nil
	}
	s.current = recording
	s.byLineage[lineageID] = recording
	s.releaseSub = recording.OnStateChanged(s.onRecordingStateChanged)
	s.mu.Unlock()

	s.logger.WithField("lineage_id", lineageID).Info("Current recording set")
	s.emitCurrentChanged(recording)
	return nil
}

// onRecordingStateChanged reacts to the store's own subscription: a stop
// on the current recording clears it. This is the only path that clears
// current.
func (s *RecordingsStore) onRecordingStateChanged(state InfoState, recording *Recording) {
	if state != InfoStateStopped {
		return
	}

	s.mu.Lock()
	if s.current != recording {
		s.mu.Unlock()
		return
	}
	s.current = nil
	if s.releaseSub != nil {
		s.releaseSub()
		s.releaseSub = nil
	}
	s.mu.Unlock()

	s.logger.Info("Current recording stopped, cleared")
	s.emitCurrentChanged(nil)
}

// GetByInfoEvent returns the recording for the given lineage, creating it
// when unknown. Fails loudly when the lineage id cannot be determined.
func (s *RecordingsStore) GetByInfoEvent(infoEvent *Event, client Client) (*Recording, error) {
	lineageID := LineageID(infoEvent)
	if lineageID == "" {
		return nil, NewDataIntegrityError("info event lacks a resolvable lineage id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byLineage[lineageID]; ok {
		return existing, nil
	}
	recording := NewRecording(infoEvent, client, s.config)
	s.byLineage[lineageID] = recording
	return recording, nil
}

func (s *RecordingsStore) emitCurrentChanged(recording *Recording) {
	s.changeHandler.notify(func(fn func(*Recording)) { fn(recording) })
}

// Destroy drops all recordings and listeners.
func (s *RecordingsStore) Destroy() {
	s.mu.Lock()
	if s.releaseSub != nil {
		s.releaseSub()
		s.releaseSub = nil
	}
	recordings := s.byLineage
	s.byLineage = make(map[string]*Recording)
	s.current = nil
	s.mu.Unlock()

	for _, recording := range recordings {
		recording.Destroy()
	}
	s.changeHandler.clear()
}
