package voicecast

import "sync"

// PreRecordingStore holds at most one pending pre-recording. The only
// removal trigger is the pre-recording's own dismissal signal; the store
// never clears current on its own, which keeps start and cancel from
// racing a double removal. Construct one per application root.
type PreRecordingStore struct {
	logger *Logger

	mu             sync.Mutex
	current        *PreRecording
	releaseDismiss func()
	changeHandler  handlerRegistry[func(*PreRecording)]
}

func NewPreRecordingStore() *PreRecordingStore {
	return &PreRecordingStore{
		logger: GetGlobalLogger().WithComponent("PreRecordingStore"),
	}
}

// Current returns the pending pre-recording, or nil.
func (s *PreRecordingStore) Current() *PreRecording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnCurrentChanged subscribes to current changes (nil on dismissal) and
// returns a disposer.
func (s *PreRecordingStore) OnCurrentChanged(fn func(*PreRecording)) (remove func()) {
	return s.changeHandler.add(fn)
}

// SetCurrent replaces the pending pre-recording. The previous one's
// dismissal listener is released first so it cannot clear the new one.
func (s *PreRecordingStore) SetCurrent(preRecording *PreRecording) {
	s.mu.Lock()
	if s.current == preRecording {
		s.mu.Unlock()
		return
	}
	if s.releaseDismiss != nil {
		s.releaseDismiss()
		s.releaseDismiss = nil
	}
	s.current = preRecording
	if preRecording != nil {
		s.releaseDismiss = preRecording.OnDismiss(s.onDismissed)
	}
	s.mu.Unlock()

	s.emitCurrentChanged(preRecording)
}

func (s *PreRecordingStore) onDismissed(preRecording *PreRecording) {
	s.mu.Lock()
	if s.current != preRecording {
		s.mu.Unlock()
		return
	}
	s.current = nil
	if s.releaseDismiss != nil {
		s.releaseDismiss()
		s.releaseDismiss = nil
	}
	s.mu.Unlock()

	s.logger.Debug("Pre-recording dismissed, cleared")
	s.emitCurrentChanged(nil)
}

func (s *PreRecordingStore) emitCurrentChanged(preRecording *PreRecording) {
	s.changeHandler.notify(func(fn func(*PreRecording)) { fn(preRecording) })
}

// Destroy releases the dismissal listener and all subscribers.
func (s *PreRecordingStore) Destroy() {
	s.mu.Lock()
	if s.releaseDismiss != nil {
		s.releaseDismiss()
		s.releaseDismiss = nil
	}
	s.current = nil
	s.mu.Unlock()
	s.changeHandler.clear()
}
