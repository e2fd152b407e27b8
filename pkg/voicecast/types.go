package voicecast

import "time"

// InfoState is the state carried by a voice broadcast info event.
type InfoState string

const (
	InfoStateStarted InfoState = "started"
	InfoStatePaused  InfoState = "paused"
	InfoStateResumed InfoState = "resumed"
	InfoStateStopped InfoState = "stopped"
)

// ValidInfoState reports whether s is one of the known broadcast states.
func ValidInfoState(s InfoState) bool {
	switch s {
	case InfoStateStarted, InfoStatePaused, InfoStateResumed, InfoStateStopped:
		return true
	}
	return false
}

// Liveness classifies the on-air status of a broadcast lineage.
type Liveness string

const (
	LivenessLive    Liveness = "live"
	LivenessGrey    Liveness = "grey"
	LivenessNotLive Liveness = "not-live"
)

// PlaybackState enum
type PlaybackState string

const (
	PlaybackStateStopped   PlaybackState = "stopped"
	PlaybackStateBuffering PlaybackState = "buffering"
	PlaybackStatePlaying   PlaybackState = "playing"
	PlaybackStatePaused    PlaybackState = "paused"
	PlaybackStateError     PlaybackState = "error"
)

// SyncState mirrors the client's sync lifecycle.
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateSyncing SyncState = "syncing"
	SyncStateError   SyncState = "error"
	SyncStateStopped SyncState = "stopped"
)

// VoicecastError struct
type VoicecastError struct {
	Message   string
	Code      string
	Timestamp float64
	err       error
	Details   map[string]interface{} // Additional details about the error
}

func (e *VoicecastError) Error() string {
	if e.err != nil {
		return e.Message + ": " + e.err.Error()
	}
	return e.Message
}

func (e *VoicecastError) Unwrap() error {
	return e.err
}

func NewVoicecastError(message, code string) *VoicecastError {
	return &VoicecastError{
		Message:   message,
		Code:      code,
		Timestamp: float64(time.Now().UnixMilli()),
	}
}

// Chunk is one captured audio segment of a broadcast.
type Chunk struct {
	Data       []byte
	Duration   time.Duration
	SampleRate int
	MimeType   string
}

// Handler types
type RecordingStateHandler func(state InfoState, recording *Recording)
type PlaybackStateHandler func(state PlaybackState, playback *Playback)
type LivenessHandler func(liveness Liveness)
type TimesHandler func(times PlaybackTimes)
type ErrorHandler func(err *VoicecastError)
type SyncStateHandler func(state SyncState)
type ChunkHandler func(chunk Chunk)
