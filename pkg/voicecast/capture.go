package voicecast

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ChunkSource produces fixed-length audio chunks for a broadcast
// recording. Implementations own the capture device.
type ChunkSource interface {
	Start() error
	Pause() error
	Resume() error
	Stop() error
	// OnChunk subscribes to completed chunks and returns a disposer.
	OnChunk(fn ChunkHandler) (remove func())
}

// MediaUploader stores chunk payloads and returns a content URL for the
// chunk message. The surrounding client provides the real media store.
type MediaUploader interface {
	Upload(ctx context.Context, chunk Chunk) (url string, err error)
}

// MediaSource resolves a chunk event back to its audio payload.
type MediaSource interface {
	Resolve(ctx context.Context, event *Event) (Chunk, error)
}

// MicChunkSource captures microphone audio via PortAudio and cuts it into
// chunks of the configured length.
type MicChunkSource struct {
	config        *AudioConfig
	chunkLength   time.Duration
	logger        *Logger
	chunkHandlers handlerRegistry[ChunkHandler]

	mu        sync.Mutex
	stream    *portaudio.Stream
	capturing bool
	paused    bool
	buf       bytes.Buffer
	buffered  time.Duration
}

// AudioConfig holds capture parameters.
type AudioConfig struct {
	SampleRate int
	Channels   int
	Format     string
	BufferSize int
	DeviceID   *int
}

func NewAudioConfig() *AudioConfig {
	return &AudioConfig{
		SampleRate: 24000,
		Channels:   1,
		Format:     "pcm_f32le",
		BufferSize: 1024,
	}
}

func NewMicChunkSource(config *AudioConfig, chunkLength time.Duration) *MicChunkSource {
	if config == nil {
		config = NewAudioConfig()
	}
	if chunkLength <= 0 {
		chunkLength = DefaultChunkLength
	}
	return &MicChunkSource{
		config:      config,
		chunkLength: chunkLength,
		logger:      GetGlobalLogger().WithComponent("MicChunkSource"),
	}
}

func (m *MicChunkSource) OnChunk(fn ChunkHandler) (remove func()) {
	return m.chunkHandlers.add(fn)
}

func (m *MicChunkSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capturing {
		return NewAudioError("capture already running")
	}

	if err := portaudio.Initialize(); err != nil {
		return WrapError(err, ErrCodeAudioDevice)
	}

	stream, err := portaudio.OpenDefaultStream(
		m.config.Channels, 0, float64(m.config.SampleRate), m.config.BufferSize,
		m.onFrames,
	)
	if err != nil {
		return WrapError(err, ErrCodeAudioDevice)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return WrapError(err, ErrCodeAudioDevice)
	}

	m.stream = stream
	m.capturing = true
	m.paused = false
	m.logger.Info("Capture started")
	return nil
}

func (m *MicChunkSource) onFrames(in []float32) {
	m.mu.Lock()
	if !m.capturing || m.paused {
		m.mu.Unlock()
		return
	}

	for _, sample := range in {
		bits := math.Float32bits(sample)
		binary.Write(&m.buf, binary.LittleEndian, bits)
	}
	m.buffered += time.Duration(len(in)/m.config.Channels) * time.Second /
		time.Duration(m.config.SampleRate)

	var done *Chunk
	if m.buffered >= m.chunkLength {
		done = m.cutChunkLocked()
	}
	m.mu.Unlock()

	if done != nil {
		m.emitChunk(*done)
	}
}

// cutChunkLocked drains the buffer into a chunk. Caller holds the lock.
func (m *MicChunkSource) cutChunkLocked() *Chunk {
	if m.buf.Len() == 0 {
		return nil
	}
	data := make([]byte, m.buf.Len())
	copy(data, m.buf.Bytes())
	chunk := &Chunk{
		Data:       data,
		Duration:   m.buffered,
		SampleRate: m.config.SampleRate,
		MimeType:   "audio/pcm",
	}
	m.buf.Reset()
	m.buffered = 0
	return chunk
}

func (m *MicChunkSource) emitChunk(chunk Chunk) {
	m.chunkHandlers.notify(func(fn ChunkHandler) { fn(chunk) })
}

func (m *MicChunkSource) Pause() error {
	m.mu.Lock()
	if !m.capturing {
		m.mu.Unlock()
		return nil
	}
	m.paused = true
	// flush the partial chunk so pauses land on chunk boundaries
	done := m.cutChunkLocked()
	m.mu.Unlock()

	if done != nil {
		m.emitChunk(*done)
	}
	return nil
}

func (m *MicChunkSource) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.capturing {
		return NewAudioError("capture not running")
	}
	m.paused = false
	return nil
}

func (m *MicChunkSource) Stop() error {
	m.mu.Lock()
	if !m.capturing {
		m.mu.Unlock()
		return nil
	}
	m.capturing = false
	done := m.cutChunkLocked()

	var err error
	if m.stream != nil {
		if stopErr := m.stream.Stop(); stopErr != nil {
			err = WrapError(stopErr, ErrCodeAudioDevice)
		}
		if closeErr := m.stream.Close(); closeErr != nil && err == nil {
			err = WrapError(closeErr, ErrCodeAudioDevice)
		}
		m.stream = nil
	}
	m.mu.Unlock()

	if done != nil {
		m.emitChunk(*done)
	}
	portaudio.Terminate()
	m.logger.Info("Capture stopped")
	return err
}
