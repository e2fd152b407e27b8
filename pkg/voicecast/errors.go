package voicecast

// Error codes as constants
const (
	ErrCodeAlreadyRecording = "ALREADY_RECORDING"
	ErrCodeNoPermission     = "INSUFFICIENT_PERMISSION"
	ErrCodeNoConnection     = "NO_CONNECTION"
	ErrCodeOthersRecording  = "OTHERS_ALREADY_RECORDING"
	ErrCodeConnection       = "CONNECTION_ERROR"
	ErrCodeEchoTimeout      = "ECHO_TIMEOUT"
	ErrCodeInvalidState     = "INVALID_STATE"
	ErrCodeDataIntegrity    = "DATA_INTEGRITY"
	ErrCodePlayback         = "PLAYBACK_ERROR"
	ErrCodeAudioDevice      = "AUDIO_DEVICE_ERROR"
	ErrCodeWebSocket        = "WEBSOCKET_ERROR"
	ErrCodeNotConnected     = "NOT_CONNECTED"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeTokenExpired     = "TOKEN_EXPIRED"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeUnknown          = "UNKNOWN_ERROR"
)

// Specific error creators with common codes
func NewAlreadyRecordingError() *VoicecastError {
	return NewVoicecastError("a voice broadcast recording is already in progress", ErrCodeAlreadyRecording)
}

func NewNoPermissionError() *VoicecastError {
	return NewVoicecastError("missing permission to start a voice broadcast in this room", ErrCodeNoPermission)
}

func NewOthersRecordingError() *VoicecastError {
	return NewVoicecastError("someone else is already recording a voice broadcast in this room", ErrCodeOthersRecording)
}

func NewNoConnectionError() *VoicecastError {
	return NewVoicecastError("no connection to the homeserver", ErrCodeNoConnection)
}

func NewConnectionError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeConnection)
}

func NewInvalidStateError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeInvalidState)
}

func NewDataIntegrityError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeDataIntegrity)
}

func NewPlaybackError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodePlayback)
}

func NewAudioError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeAudioDevice)
}

func NewWebSocketError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeWebSocket)
}

func NewEchoTimeoutError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeEchoTimeout)
}

func NewAuthError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeAuthFailed)
}

func NewConfigError(message string) *VoicecastError {
	return NewVoicecastError(message, ErrCodeConfigInvalid)
}

// Helper to wrap any error as VoicecastError
func WrapError(err error, code string) *VoicecastError {
	if err == nil {
		return nil
	}
	vErr := NewVoicecastError(err.Error(), code)
	vErr.err = err
	return vErr
}

// Helper to check if error has specific code
func IsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	vErr, ok := err.(*VoicecastError)
	if !ok {
		return false
	}
	return vErr.Code == code
}

// Helper to add details to existing VoicecastError
func (e *VoicecastError) AddDetail(key string, value interface{}) *VoicecastError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Helper to get error details
func (e *VoicecastError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// Helper to check if error is retryable
func IsRetryableError(err error) bool {
	vErr, ok := err.(*VoicecastError)
	if !ok {
		return false
	}
	retryableCodes := []string{
		ErrCodeConnection,
		ErrCodeNoConnection,
		ErrCodeWebSocket,
		ErrCodeEchoTimeout,
		ErrCodeNotConnected,
	}
	for _, code := range retryableCodes {
		if vErr.Code == code {
			return true
		}
	}
	return false
}

// Helper to check if error is critical
func IsCriticalError(err error) bool {
	vErr, ok := err.(*VoicecastError)
	if !ok {
		return false
	}
	criticalCodes := []string{
		ErrCodeAuthFailed,
		ErrCodeTokenExpired,
		ErrCodeConfigInvalid,
		ErrCodeDataIntegrity,
	}
	for _, code := range criticalCodes {
		if vErr.Code == code {
			return true
		}
	}
	return false
}
