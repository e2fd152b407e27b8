package voicecast

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ChunkPlayer plays the audio payload of chunk events one at a time.
// Playback drives it; implementations own the output device.
type ChunkPlayer interface {
	// Play starts playing the given chunk event from the given offset,
	// replacing whatever was playing before.
	Play(ctx context.Context, event *Event, offset time.Duration) error
	Pause()
	Resume()
	Stop()
	// OnFinished subscribes to end-of-chunk notifications.
	OnFinished(fn func(eventID string)) (remove func())
	// OnProgress subscribes to position updates within the current chunk.
	OnProgress(fn func(eventID string, position time.Duration)) (remove func())
	Destroy()
}

// PCMChunkPlayer plays PCM f32le chunks through the default PortAudio
// output device. Chunk payloads are resolved through a MediaSource.
type PCMChunkPlayer struct {
	media            MediaSource
	logger           *Logger
	finishedHandlers handlerRegistry[func(string)]
	progressHandlers handlerRegistry[func(string, time.Duration)]

	mu       sync.Mutex
	stream   *portaudio.Stream
	samples  []float32
	cursor   int
	rate     int
	eventID  string
	paused   bool
	playing  bool
	position time.Duration
}

func NewPCMChunkPlayer(media MediaSource) *PCMChunkPlayer {
	return &PCMChunkPlayer{
		media:  media,
		logger: GetGlobalLogger().WithComponent("PCMChunkPlayer"),
	}
}

func (p *PCMChunkPlayer) OnFinished(fn func(eventID string)) (remove func()) {
	return p.finishedHandlers.add(fn)
}

func (p *PCMChunkPlayer) OnProgress(fn func(eventID string, position time.Duration)) (remove func()) {
	return p.progressHandlers.add(fn)
}

func (p *PCMChunkPlayer) Play(ctx context.Context, event *Event, offset time.Duration) error {
	if event == nil || event.ID == "" {
		return NewPlaybackError("chunk event without id")
	}

	chunk, err := p.media.Resolve(ctx, event)
	if err != nil {
		return WrapError(err, ErrCodePlayback)
	}

	samples := decodePCMF32LE(chunk.Data)
	rate := chunk.SampleRate
	if rate <= 0 {
		rate = 24000
	}

	p.Stop()

	p.mu.Lock()
	p.samples = samples
	p.rate = rate
	p.eventID = event.ID
	p.cursor = int(offset.Seconds() * float64(rate))
	if p.cursor < 0 {
		p.cursor = 0
	}
	if p.cursor > len(samples) {
		p.cursor = len(samples)
	}
	p.paused = false
	p.playing = true
	p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return WrapError(err, ErrCodeAudioDevice)
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), 1024, p.onOutFrames)
	if err != nil {
		return WrapError(err, ErrCodeAudioDevice)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return WrapError(err, ErrCodeAudioDevice)
	}

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()
	return nil
}

func (p *PCMChunkPlayer) onOutFrames(out []float32) {
	p.mu.Lock()
	if !p.playing || p.paused {
		for i := range out {
			out[i] = 0
		}
		p.mu.Unlock()
		return
	}

	finished := false
	for i := range out {
		if p.cursor < len(p.samples) {
			out[i] = p.samples[p.cursor]
			p.cursor++
		} else {
			out[i] = 0
			finished = true
		}
	}
	p.position = time.Duration(p.cursor) * time.Second / time.Duration(p.rate)
	eventID := p.eventID
	position := p.position
	if finished {
		p.playing = false
	}
	p.mu.Unlock()

	p.progressHandlers.notify(func(fn func(string, time.Duration)) { fn(eventID, position) })
	if finished {
		p.finishedHandlers.notify(func(fn func(string)) { fn(eventID) })
	}
}

func (p *PCMChunkPlayer) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *PCMChunkPlayer) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *PCMChunkPlayer) Stop() {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.playing = false
	p.samples = nil
	p.cursor = 0
	p.position = 0
	p.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
		portaudio.Terminate()
	}
}

func (p *PCMChunkPlayer) Destroy() {
	p.Stop()
	p.finishedHandlers.clear()
	p.progressHandlers.clear()
}

func decodePCMF32LE(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		bits := binary.LittleEndian.Uint32(data[i : i+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
