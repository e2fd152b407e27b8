package voicecast

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Compiled-in defaults. MaxBroadcastLength falls back to the hardcoded
// four hours when neither the env nor the config provides a value.
const (
	DefaultChunkLength        = 120 * time.Second
	DefaultMaxBroadcastLength = 4 * time.Hour
	DefaultEchoTimeout        = 30 * time.Second
	fallbackMaxBroadcastLen   = 4 * time.Hour
)

type Config struct {
	MaxBroadcastLength   time.Duration     `json:"max_broadcast_length"`
	ChunkLength          time.Duration     `json:"chunk_length"`
	EchoTimeout          time.Duration     `json:"echo_timeout"`
	WsEndpoint           *string           `json:"ws_endpoint,omitempty"`
	Headers              map[string]string `json:"headers,omitempty"`
	MaxReconnectAttempts int               `json:"max_reconnect_attempts"`
	ReconnectDelay       float64           `json:"reconnect_delay"`
	UseTokenAuth         bool              `json:"use_token_auth"`
	DebugWebsocket       bool              `json:"debug_websocket"`
	DebugAudio           bool              `json:"debug_audio"`
	AudioDeviceID        *int              `json:"audio_device_id,omitempty"`
}

func NewConfig() *Config {
	c := &Config{
		ChunkLength:          DefaultChunkLength,
		EchoTimeout:          DefaultEchoTimeout,
		MaxReconnectAttempts: 3,
		ReconnectDelay:       1.0,
		UseTokenAuth:         true,
		Headers:              make(map[string]string),
	}

	// Load from env
	c.loadFromEnv()

	return c
}

func (c *Config) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if wsEndpoint := os.Getenv("VOICECAST_WS_ENDPOINT"); wsEndpoint != "" {
		c.WsEndpoint = &wsEndpoint
	}

	if maxLen := os.Getenv("VOICECAST_MAX_BROADCAST_LENGTH"); maxLen != "" {
		if val, err := strconv.Atoi(maxLen); err == nil && val > 0 {
			c.MaxBroadcastLength = time.Duration(val) * time.Second
		}
	}

	if chunkLen := os.Getenv("VOICECAST_CHUNK_LENGTH"); chunkLen != "" {
		if val, err := strconv.Atoi(chunkLen); err == nil && val > 0 {
			c.ChunkLength = time.Duration(val) * time.Second
		}
	}

	if echo := os.Getenv("VOICECAST_ECHO_TIMEOUT"); echo != "" {
		if val, err := strconv.Atoi(echo); err == nil && val > 0 {
			c.EchoTimeout = time.Duration(val) * time.Second
		}
	}

	if maxReconnect := os.Getenv("VOICECAST_MAX_RECONNECT_ATTEMPTS"); maxReconnect != "" {
		if val, err := strconv.Atoi(maxReconnect); err == nil {
			c.MaxReconnectAttempts = val
		}
	}

	if delay := os.Getenv("VOICECAST_RECONNECT_DELAY"); delay != "" {
		if val, err := strconv.ParseFloat(delay, 64); err == nil {
			c.ReconnectDelay = val
		}
	}

	c.UseTokenAuth = os.Getenv("VOICECAST_USE_TOKEN_AUTH") != "false"
	c.DebugWebsocket = os.Getenv("VOICECAST_DEBUG_WEBSOCKET") == "true"
	c.DebugAudio = os.Getenv("VOICECAST_DEBUG_AUDIO") == "true"

	if deviceIDStr := os.Getenv("VOICECAST_AUDIO_DEVICE_ID"); deviceIDStr != "" {
		if deviceID, err := strconv.Atoi(deviceIDStr); err == nil {
			c.AudioDeviceID = &deviceID
		}
	}
}

// GetMaxBroadcastLength resolves the maximum broadcast length:
// configured value, then compiled-in default, then the four hour fallback.
func (c *Config) GetMaxBroadcastLength() time.Duration {
	if c != nil && c.MaxBroadcastLength > 0 {
		return c.MaxBroadcastLength
	}
	if DefaultMaxBroadcastLength > 0 {
		return DefaultMaxBroadcastLength
	}
	return fallbackMaxBroadcastLen
}

// GetChunkLength resolves the configured chunk length in seconds.
func (c *Config) GetChunkLength() time.Duration {
	if c != nil && c.ChunkLength > 0 {
		return c.ChunkLength
	}
	return DefaultChunkLength
}

// GetEchoTimeout bounds the wait for a sent state event to echo back
// through room state.
func (c *Config) GetEchoTimeout() time.Duration {
	if c != nil && c.EchoTimeout > 0 {
		return c.EchoTimeout
	}
	return DefaultEchoTimeout
}

// Validate returns list of issues
func (c *Config) Validate() []string {
	issues := []string{}

	if c.WsEndpoint != nil && !strings.HasPrefix(*c.WsEndpoint, "ws") {
		issues = append(issues, "Invalid WebSocket endpoint format")
	}

	if c.ChunkLength <= 0 {
		issues = append(issues, fmt.Sprintf("Invalid chunk length: %v", c.ChunkLength))
	}

	if c.ChunkLength > c.GetMaxBroadcastLength() {
		issues = append(issues, "Chunk length exceeds maximum broadcast length")
	}

	if c.MaxReconnectAttempts < 0 {
		issues = append(issues, "Max reconnect attempts must not be negative")
	}

	return issues
}
